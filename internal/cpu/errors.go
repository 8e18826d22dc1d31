package cpu

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

var (
	ErrStackOverflowRead  = errors.New("attempted to read a value larger than the stack from the stack")
	ErrStackOverflowWrite = errors.New("attempted to write a value larger than the stack to the stack")
)

// UnimplementedRegisterError reports a register name with no backing slot.
type UnimplementedRegisterError struct {
	Reg x86asm.Reg
}

func (e *UnimplementedRegisterError) Error() string {
	return fmt.Sprintf("register %v is not implemented", e.Reg)
}

// UnimplementedRegisterSizeError reports a register width that cannot be
// encoded as a little-endian integer.
type UnimplementedRegisterSizeError struct {
	Size int
}

func (e *UnimplementedRegisterSizeError) Error() string {
	return fmt.Sprintf("register with size %d is not implemented", e.Size)
}

// UnimplementedInstructionError carries the rejected instruction for diagnostics.
type UnimplementedInstructionError struct {
	Inst x86asm.Inst
}

func (e *UnimplementedInstructionError) Error() string {
	return fmt.Sprintf("opcode %v (0x%x) is not implemented (in instruction %v)",
		e.Inst.Op, e.Inst.Opcode>>24, e.Inst)
}
