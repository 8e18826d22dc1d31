// Package decode drives an x86 instruction cursor over a raw image.
package decode

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

var (
	// ErrNoMoreBytes is returned when the cursor reaches the end of the image.
	ErrNoMoreBytes = errors.New("no more bytes to decode")
	// ErrInvalidInstruction is returned for bytes that do not form a complete
	// instruction, including truncated encodings.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Decoder tracks the instruction pointer and byte position of the next
// instruction. The two move together on Decode and are repositioned together
// after a control transfer.
type Decoder struct {
	data    []byte
	bitness int
	ip      uint64
	pos     int
}

// New returns a decoder over data in the given mode (16, 32 or 64) with the
// cursor at position 0 and instruction pointer ip.
func New(bitness int, data []byte, ip uint64) *Decoder {
	return &Decoder{data: data, bitness: bitness, ip: ip}
}

// Decode decodes the instruction at the cursor and advances past it.
func (d *Decoder) Decode() (x86asm.Inst, error) {
	if d.pos >= len(d.data) {
		return x86asm.Inst{}, ErrNoMoreBytes
	}
	inst, err := x86asm.Decode(d.data[d.pos:], d.bitness)
	if err != nil {
		return x86asm.Inst{}, fmt.Errorf("decode at 0x%x: %w", d.ip, err)
	}
	// x86asm reports a lone prefix or a truncated encoding as an instruction
	// with no mnemonic.
	if inst.Op == 0 {
		return x86asm.Inst{}, fmt.Errorf("decode at 0x%x: %w", d.ip, ErrInvalidInstruction)
	}
	d.pos += inst.Len
	d.ip += uint64(inst.Len)
	return inst, nil
}

// Bytes returns the image the cursor walks. Position indexes into it.
func (d *Decoder) Bytes() []byte { return d.data }

// IP returns the instruction pointer of the next instruction.
func (d *Decoder) IP() uint64 { return d.ip }

// SetIP sets the instruction pointer without moving the byte position.
func (d *Decoder) SetIP(ip uint64) { d.ip = ip }

// Position returns the byte offset of the next instruction.
func (d *Decoder) Position() int { return d.pos }

// SetPosition moves the cursor. pos may equal Len, leaving nothing to decode.
func (d *Decoder) SetPosition(pos int) error {
	if pos < 0 || pos > len(d.data) {
		return fmt.Errorf("position %d out of range [0, %d]", pos, len(d.data))
	}
	d.pos = pos
	return nil
}

// Bitness returns the decoding mode.
func (d *Decoder) Bitness() int { return d.bitness }

// Len returns the length of the underlying image.
func (d *Decoder) Len() int { return len(d.data) }
