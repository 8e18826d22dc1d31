// Package testimage builds minimal executable images in memory for tests.
// The images are just valid enough for the standard container parsers and
// carry code at their entry point.
package testimage

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Symbol is a named address. Flags is only used by Mach-O export tries.
type Symbol struct {
	Name  string
	Value uint64
	Flags uint64
}

var le = binary.LittleEndian

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func sortedSymbols(syms []Symbol) []Symbol {
	out := append([]Symbol(nil), syms...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Instruction encodings used across the test suites.

// MovImm64 encodes mov r64, imm64 for the low eight registers (0 = rax).
func MovImm64(reg byte, v uint64) []byte {
	b := []byte{0x48, 0xB8 + reg&7, 0, 0, 0, 0, 0, 0, 0, 0}
	le.PutUint64(b[2:], v)
	return b
}

// Syscall encodes the syscall instruction.
func Syscall() []byte { return []byte{0x0F, 0x05} }

// Exit encodes mov rdi, code; mov rax, 0x3c; syscall.
func Exit(code uint64) []byte {
	return Concat(MovImm64(7, code), MovImm64(0, 0x3c), Syscall())
}

// Concat joins instruction encodings.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
