// Package loader reads the Ninja binary program format (NJBF) and
// produces the initial program word stream and static-data slot count a
// VM is constructed with.
package loader

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// MaxVersion is the highest NJBF version this loader accepts.
const MaxVersion = 8

var magic = [4]byte{'N', 'J', 'B', 'F'}

// ErrFormat marks a malformed or unsupported binary file.
var ErrFormat = errors.New("malformed binary file")

// Program is the result of loading an NJBF file: the instruction stream
// and the number of static_data slots it requires (every slot starts nil).
type Program struct {
	Instructions []uint32
	StaticVars   int
	Version      uint32
}

type fileHeader struct {
	Magic            [4]byte
	Version          uint32
	InstructionCount uint32
	StaticVarsCount  uint32
}

// Load opens filename and decodes its NJBF header and instruction stream.
func Load(filename string) (*Program, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "unable to open file: %v", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses an NJBF stream from r.
func Decode(r io.Reader) (*Program, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(ErrFormat, "failed to read header from input file")
	}
	if !bytes.Equal(hdr.Magic[:], magic[:]) {
		return nil, errors.Wrap(ErrFormat, "invalid header in input file")
	}
	if hdr.Version > MaxVersion {
		return nil, errors.Wrap(ErrFormat, "unsupported binary version")
	}

	instructions := make([]uint32, hdr.InstructionCount)
	if hdr.InstructionCount > 0 {
		if err := binary.Read(r, binary.LittleEndian, instructions); err != nil {
			return nil, errors.Wrap(ErrFormat, "failed to read program from input file")
		}
	}

	return &Program{
		Instructions: instructions,
		StaticVars:   int(hdr.StaticVarsCount),
		Version:      hdr.Version,
	}, nil
}
