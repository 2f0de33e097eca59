package vm

import (
	"github.com/pkg/errors"

	"njvm/heap"
)

// Sentinel error classes shared across the vm package, mirroring the
// handful of failure categories the original njvm CLI distinguishes when
// deciding its process exit status. ErrInvalidArgument and ErrOutOfMemory
// are the heap package's own sentinels, so allocation failures match them.
var (
	ErrInvalidArgument = heap.ErrInvalidArgument
	ErrOutOfRange      = errors.New("value out of range")
	ErrOverflow        = errors.New("stack overflow or underflow")
	ErrOutOfMemory     = heap.ErrOutOfMemory
	ErrIO              = errors.New("i/o error")
	ErrLogic           = errors.New("logic error")
)
