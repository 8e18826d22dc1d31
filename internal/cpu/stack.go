package cpu

import (
	"encoding/binary"

	"golang.org/x/arch/x86/x86asm"
)

// slotAlign is the stack slot size. Values are padded up to it on push.
const slotAlign = 8

func alignment(n uint64) uint64 {
	return (slotAlign - n%slotAlign) % slotAlign
}

// PushStackValue writes data below RSP so that data[0] ends up at the lowest
// address. RSP first moves down by the alignment padding, then one byte per
// value byte.
func (c *Cpu) PushStackValue(data []byte) error {
	n := uint64(len(data))
	if n > uint64(len(c.Stack)) {
		return ErrStackOverflowWrite
	}
	sp := c.Registers.RSP.Sub(alignment(n))
	for i := len(data) - 1; i >= 0; i-- {
		sp = sp.Sub(1)
		c.Stack[sp.Value()] = data[i]
	}
	c.Registers.RSP = sp
	return nil
}

// PopStackValue reads size bytes upwards from RSP and then skips the
// alignment padding added by PushStackValue.
func (c *Cpu) PopStackValue(size uint64) ([]byte, error) {
	if size > uint64(len(c.Stack)) {
		return nil, ErrStackOverflowRead
	}
	out := make([]byte, size)
	sp := c.Registers.RSP
	for i := range out {
		out[i] = c.Stack[sp.Value()]
		sp = sp.Add(1)
	}
	c.Registers.RSP = sp.Add(alignment(size))
	return out, nil
}

// ReadStack copies count bytes starting at offset without moving RSP.
// The offset wraps like any other stack address.
func (c *Cpu) ReadStack(offset, count uint64) ([]byte, error) {
	if count > uint64(len(c.Stack)) {
		return nil, ErrStackOverflowRead
	}
	out := make([]byte, count)
	sp := c.Registers.RSP
	sp.SetWrapping(offset)
	for i := range out {
		out[i] = c.Stack[sp.Value()]
		sp = sp.Add(1)
	}
	return out, nil
}

func (c *Cpu) pushRegister(reg x86asm.Reg) error {
	width, err := RegisterWidth(reg)
	if err != nil {
		return err
	}
	v, err := c.Register(reg)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return c.PushStackValue(buf[:width])
}

func (c *Cpu) popRegister(reg x86asm.Reg) error {
	width, err := RegisterWidth(reg)
	if err != nil {
		return err
	}
	raw, err := c.PopStackValue(uint64(width))
	if err != nil {
		return err
	}
	v, err := decodeLE(raw)
	if err != nil {
		return err
	}
	return c.SetRegister(reg, v)
}

func decodeLE(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, &UnimplementedRegisterSizeError{Size: len(b)}
}
