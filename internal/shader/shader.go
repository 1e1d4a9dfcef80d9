// Package shader loads shader bytecode for pipeline creation.
//
// Files are read as SPIR-V word streams in either byte order. Files with
// a .wgsl extension are compiled to SPIR-V with naga first.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math/bits"
	"os"
	"path"
	"strings"

	"github.com/gogpu/naga"
	"github.com/vs-ude/spirv"

	"github.com/gogpu/rhi"
)

// headerWords is the length of the SPIR-V module header.
const headerWords = 5

var (
	// ErrInvalidSPIRV is returned for byte streams that are not SPIR-V modules.
	ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V")

	// ErrCompile is returned when WGSL source fails to compile.
	ErrCompile = errors.New("shader: compile failed")
)

// Module is loaded shader bytecode.
type Module struct {
	Name   string
	Words  []uint32
	Header spirv.Header
	// FromWGSL is set when Words were compiled from WGSL source.
	FromWGSL bool
}

// Load reads the shader at the given file system path.
func Load(name string) (*Module, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rhi.ErrIO, err)
	}
	return decode(name, data)
}

// LoadFS reads the shader name from fsys.
func LoadFS(fsys fs.FS, name string) (*Module, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rhi.ErrIO, err)
	}
	return decode(name, data)
}

func decode(name string, data []byte) (*Module, error) {
	if strings.EqualFold(path.Ext(name), ".wgsl") {
		words, err := Compile(string(data))
		if err != nil {
			return nil, err
		}
		m, err := Parse(wordsToBytes(words))
		if err != nil {
			return nil, err
		}
		m.Name = name
		m.FromWGSL = true
		return m, nil
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.Name = name
	return m, nil
}

// Parse converts a SPIR-V byte stream to host-order words and validates
// the module header. Big-endian streams are byte-swapped.
func Parse(data []byte) (*Module, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrInvalidSPIRV, len(data))
	}
	if len(data) < headerWords*4 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidSPIRV, len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	switch words[0] {
	case spirv.MagicLE:
	case spirv.MagicBE:
		for i := range words {
			words[i] = bits.ReverseBytes32(words[i])
		}
	default:
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidSPIRV, words[0])
	}

	h := spirv.Header{
		Magic:          words[0],
		Version:        words[1],
		GeneratorMagic: words[2],
		Bound:          spirv.Id(words[3]),
		Reserved:       words[4],
	}
	if h.Bound == 0 {
		return nil, fmt.Errorf("%w: zero id bound", ErrInvalidSPIRV)
	}
	if h.Reserved != 0 {
		return nil, fmt.Errorf("%w: reserved header word is 0x%x", ErrInvalidSPIRV, h.Reserved)
	}
	return &Module{Words: words, Header: h}, nil
}

// Compile compiles WGSL source to SPIR-V words.
func Compile(source string) ([]uint32, error) {
	out, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(out)%4 != 0 {
		return nil, fmt.Errorf("%w: compiler produced %d bytes", ErrInvalidSPIRV, len(out))
	}
	words := make([]uint32, len(out)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(out[i*4:])
	}
	return words, nil
}

// Version returns the SPIR-V version as major, minor.
func (m *Module) Version() (major, minor uint8) {
	return uint8(m.Header.Version >> 16), uint8(m.Header.Version >> 8)
}

// Size returns the module size in bytes.
func (m *Module) Size() int { return len(m.Words) * 4 }

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
