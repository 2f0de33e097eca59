// Package bigint adapts Go's math/big arbitrary-precision arithmetic to the
// Ninja VM's heap. In the original C implementation this boundary is a
// separate C library that calls back into the VM (via newPrimObject) every
// time it needs storage for an operand or a result; nothing in the VM ever
// touches the bigint library's own memory directly. This package preserves
// that shape: every operation here takes an Allocator and returns heap
// references, never holding on to a *big.Int across a call.
package bigint

import (
	"bufio"
	"fmt"
	"io"
	"math/big"

	"github.com/pkg/errors"

	"njvm/heap"
)

// ErrFormat is returned when rdint cannot parse a decimal integer from the
// input stream.
var ErrFormat = errors.New("malformed integer literal")

// Allocator is the callback surface the bigint adapter needs from the VM:
// storage for a new integer object's payload, and read access to an
// existing one's. This mirrors newPrimObject/getPrimObjectDataPointer from
// the original bigint<->VM boundary.
type Allocator interface {
	NewInteger(byteCount int) (heap.Ref, error)
	Payload(r heap.Ref) []byte
}

const (
	signPositive byte = 0x00
	signNegative byte = 0x01
)

func decode(payload []byte) *big.Int {
	v := new(big.Int).SetBytes(payload[1:])
	if len(payload) > 0 && payload[0] == signNegative {
		v.Neg(v)
	}
	return v
}

func encode(a Allocator, v *big.Int) (heap.Ref, error) {
	mag := v.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}

	ref, err := a.NewInteger(1 + len(mag))
	if err != nil {
		return heap.Nil, err
	}

	payload := a.Payload(ref)
	if v.Sign() < 0 {
		payload[0] = signNegative
	} else {
		payload[0] = signPositive
	}
	copy(payload[1:], mag)
	return ref, nil
}

// FromInt64 allocates a new heap integer object holding v.
func FromInt64(a Allocator, v int64) (heap.Ref, error) {
	return encode(a, big.NewInt(v))
}

// ToInt32 narrows a heap integer object to an int32, matching bigToInt's
// truncating contract (used by brf/brt/wrchr/index operands).
func ToInt32(a Allocator, x heap.Ref) int32 {
	v := decode(a.Payload(x))
	return int32(v.Int64())
}

// Add, Sub, Mul each allocate and return a fresh heap integer holding the
// result of the corresponding arithmetic operation.
func Add(a Allocator, x, y heap.Ref) (heap.Ref, error) {
	return encode(a, new(big.Int).Add(decode(a.Payload(x)), decode(a.Payload(y))))
}

func Sub(a Allocator, x, y heap.Ref) (heap.Ref, error) {
	return encode(a, new(big.Int).Sub(decode(a.Payload(x)), decode(a.Payload(y))))
}

func Mul(a Allocator, x, y heap.Ref) (heap.Ref, error) {
	return encode(a, new(big.Int).Mul(decode(a.Payload(x)), decode(a.Payload(y))))
}

// DivMod computes both the quotient and remainder of x/y in one call,
// matching the original's single bigDiv invocation shared by the "div" and
// "mod" opcodes. Truncates toward zero, C-style, per spec.md's divi/modi
// framing of the underlying bigDiv contract.
//
// rootQuotient is called with the quotient's heap reference as soon as it is
// allocated, before the remainder is allocated. The caller must use it to
// store the quotient somewhere the VM's root set reaches (e.g. a scratch
// register) — otherwise a collection triggered by the remainder's own
// allocation would see the quotient as unreachable garbage and reuse its
// bytes, corrupting it. This mirrors the original bigDiv writing bip.res
// before computing bip.rem.
func DivMod(a Allocator, x, y heap.Ref, rootQuotient func(heap.Ref)) (remainder heap.Ref, err error) {
	xv, yv := decode(a.Payload(x)), decode(a.Payload(y))
	if yv.Sign() == 0 {
		return heap.Nil, errors.New("division by zero")
	}

	q, r := new(big.Int), new(big.Int)
	q.QuoRem(xv, yv, r)

	quotient, err := encode(a, q)
	if err != nil {
		return heap.Nil, err
	}
	rootQuotient(quotient)

	remainder, err = encode(a, r)
	if err != nil {
		return heap.Nil, err
	}
	return remainder, nil
}

// Cmp returns the sign of x-y: negative, zero, or positive.
func Cmp(a Allocator, x, y heap.Ref) int {
	return decode(a.Payload(x)).Cmp(decode(a.Payload(y)))
}

// Read parses one decimal integer (optionally signed) from r and allocates
// it as a heap integer object.
func Read(a Allocator, r *bufio.Reader) (heap.Ref, error) {
	var buf []byte
	neg := false

	skipSpace(r)
	b, err := r.ReadByte()
	if err != nil {
		return heap.Nil, errors.Wrap(ErrFormat, err.Error())
	}
	if b == '-' || b == '+' {
		neg = b == '-'
		b, err = r.ReadByte()
		if err != nil {
			return heap.Nil, errors.Wrap(ErrFormat, err.Error())
		}
	}
	for b >= '0' && b <= '9' {
		buf = append(buf, b)
		b, err = r.ReadByte()
		if err != nil {
			break
		}
	}
	if err == nil {
		_ = r.UnreadByte()
	}
	if len(buf) == 0 {
		return heap.Nil, ErrFormat
	}

	v, ok := new(big.Int).SetString(string(buf), 10)
	if !ok {
		return heap.Nil, ErrFormat
	}
	if neg {
		v.Neg(v)
	}
	return encode(a, v)
}

func skipSpace(r *bufio.Reader) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			_ = r.UnreadByte()
			return
		}
	}
}

// Write prints the decimal representation of x to w.
func Write(w io.Writer, a Allocator, x heap.Ref) error {
	_, err := fmt.Fprint(w, decode(a.Payload(x)).String())
	return err
}
