// Package cpu implements the x86-64 register file, the bounded stack and the
// handful of instruction forms the emulator understands.
package cpu

import (
	"github.com/zboralski/xemu/internal/mem"
	"golang.org/x/arch/x86/x86asm"
)

// DefaultStackSize is the stack capacity used by New.
const DefaultStackSize = 1024 // 1 KiB

// Cpu owns a zeroed stack buffer and the register file. RSP starts at offset 0
// so the first push wraps to the top of the buffer.
type Cpu struct {
	Stack     []byte
	Registers Registers
}

// New creates a CPU with a DefaultStackSize stack.
func New() *Cpu {
	return NewWithStackSize(DefaultStackSize)
}

// NewWithStackSize creates a CPU with a stack of size bytes.
// It panics if size is not positive.
func NewWithStackSize(size int) *Cpu {
	if size <= 0 {
		panic("cpu: stack size must be positive")
	}
	c := &Cpu{Stack: make([]byte, size)}
	c.Registers.RSP = mem.NewStackPointer(0, uint64(size))
	return c
}

// Code identifies an instruction form by opcode and operand shape.
type Code int

const (
	CodeUnknown Code = iota
	CodeMovR64Imm64
	CodeMovRm64R64
	CodePushR64
	CodePushImm8
	CodePopR64
	CodeJmpRel8
	CodeJmpRel32
	CodeXorRm32R32
	CodeSyscall
)

var codeNames = [...]string{
	CodeUnknown:     "unknown",
	CodeMovR64Imm64: "mov r64, imm64",
	CodeMovRm64R64:  "mov r/m64, r64",
	CodePushR64:     "push r64",
	CodePushImm8:    "push imm8",
	CodePopR64:      "pop r64",
	CodeJmpRel8:     "jmp rel8",
	CodeJmpRel32:    "jmp rel32",
	CodeXorRm32R32:  "xor r/m32, r32",
	CodeSyscall:     "syscall",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "unknown"
	}
	return codeNames[c]
}

// Classify maps a decoded instruction onto one of the supported forms.
// Everything outside 64-bit mode, apart from syscall, is CodeUnknown.
func Classify(inst x86asm.Inst) Code {
	if inst.Op == x86asm.SYSCALL {
		return CodeSyscall
	}
	if inst.Mode != 64 {
		return CodeUnknown
	}

	op := byte(inst.Opcode >> 24)
	switch inst.Op {
	case x86asm.MOV:
		if op >= 0xB8 && op <= 0xBF && isReg64(inst.Args[0]) {
			if _, ok := inst.Args[1].(x86asm.Imm); ok {
				return CodeMovR64Imm64
			}
		}
		if op == 0x89 && isReg64(inst.Args[1]) {
			return CodeMovRm64R64
		}
	case x86asm.PUSH:
		if op >= 0x50 && op <= 0x57 && isReg64(inst.Args[0]) {
			return CodePushR64
		}
		if op == 0x6A {
			if _, ok := inst.Args[0].(x86asm.Imm); ok {
				return CodePushImm8
			}
		}
	case x86asm.POP:
		if op >= 0x58 && op <= 0x5F && isReg64(inst.Args[0]) {
			return CodePopR64
		}
	case x86asm.JMP:
		if _, ok := inst.Args[0].(x86asm.Rel); ok {
			switch op {
			case 0xEB:
				return CodeJmpRel8
			case 0xE9:
				return CodeJmpRel32
			}
		}
	case x86asm.XOR:
		if op == 0x31 && isReg32(inst.Args[1]) {
			return CodeXorRm32R32
		}
	}
	return CodeUnknown
}

func isReg64(arg x86asm.Arg) bool {
	r, ok := arg.(x86asm.Reg)
	return ok && r >= x86asm.RAX && r <= x86asm.R15
}

func isReg32(arg x86asm.Arg) bool {
	r, ok := arg.(x86asm.Reg)
	return ok && r >= x86asm.EAX && r <= x86asm.R15L
}

// ExecuteInstruction applies one non-syscall instruction to the CPU state.
// Jumps only update RIP; repositioning the decoder is the caller's job.
func (c *Cpu) ExecuteInstruction(inst x86asm.Inst) error {
	switch Classify(inst) {
	case CodeMovR64Imm64:
		dst := inst.Args[0].(x86asm.Reg)
		return c.SetRegister(dst, uint64(inst.Args[1].(x86asm.Imm)))

	case CodeMovRm64R64:
		dst, ok := inst.Args[0].(x86asm.Reg)
		if !ok {
			return &UnimplementedInstructionError{Inst: inst}
		}
		v, err := c.Register(inst.Args[1].(x86asm.Reg))
		if err != nil {
			return err
		}
		return c.SetRegister(dst, v)

	case CodePushR64:
		return c.pushRegister(inst.Args[0].(x86asm.Reg))

	case CodePushImm8:
		imm := inst.Args[0].(x86asm.Imm)
		return c.PushStackValue([]byte{byte(imm)})

	case CodePopR64:
		return c.popRegister(inst.Args[0].(x86asm.Reg))

	case CodeJmpRel8, CodeJmpRel32:
		rel := inst.Args[0].(x86asm.Rel)
		c.Registers.RIP += uint64(int64(rel))
		return nil

	case CodeXorRm32R32:
		dst, ok := inst.Args[0].(x86asm.Reg)
		if !ok {
			return &UnimplementedInstructionError{Inst: inst}
		}
		a, err := c.Register(dst)
		if err != nil {
			return err
		}
		b, err := c.Register(inst.Args[1].(x86asm.Reg))
		if err != nil {
			return err
		}
		return c.SetRegister(dst, a^b)
	}
	return &UnimplementedInstructionError{Inst: inst}
}
