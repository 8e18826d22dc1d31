package cpu

import (
	"fmt"
	"strings"

	"github.com/zboralski/xemu/internal/mem"
	"golang.org/x/arch/x86/x86asm"
)

// General purpose register indices, in x86 encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Registers is the architectural register file.
//
// Every register name maps onto exactly one slot regardless of its width:
// EAX, AX, AL and AH all read and write the RAX slot, and a write through any
// of them replaces the whole slot.
type Registers struct {
	// RIP is the instruction pointer.
	RIP uint64
	// GPR holds the general purpose registers by encoding index. GPR[RSP] is
	// unused; the stack pointer lives in RSP.
	GPR [16]uint64
	// RSP is the current position in the stack buffer, growing downwards.
	RSP mem.StackPointer
	// Seg holds ES, CS, SS, DS, FS and GS in that order.
	Seg [6]uint16
	// RFlags has no register name and is never written by the supported
	// instructions.
	RFlags uint64
	CR     [16]uint64
	DR     [16]uint64
	TR     [8]uint32
}

// RAX returns the syscall number register.
func (r *Registers) RAX() uint64 { return r.GPR[RAX] }

// RDI returns the first syscall argument register.
func (r *Registers) RDI() uint64 { return r.GPR[RDI] }

// RSI returns the second syscall argument register.
func (r *Registers) RSI() uint64 { return r.GPR[RSI] }

// RDX returns the third syscall argument register.
func (r *Registers) RDX() uint64 { return r.GPR[RDX] }

var gprNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Registers) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rip=0x%x", r.RIP)
	for i, v := range r.GPR {
		if i == RSP {
			fmt.Fprintf(&sb, " rsp=0x%x", r.RSP.Value())
			continue
		}
		fmt.Fprintf(&sb, " %s=0x%x", gprNames[i], v)
	}
	return sb.String()
}

type slotKind uint8

const (
	slotNone slotKind = iota
	slotGPR
	slotRSP
	slotRIP
	slotSeg
	slotCR
	slotDR
	slotTR
)

type regInfo struct {
	kind  slotKind
	index uint8
	width uint8 // bytes
}

// regTable maps every supported register name to its slot and declared width.
// Entries with kind slotNone are unsupported.
var regTable [x86asm.TR7 + 1]regInfo

func setGPR(reg x86asm.Reg, index, width int) {
	kind := slotGPR
	if index == RSP {
		kind = slotRSP
	}
	regTable[reg] = regInfo{kind: kind, index: uint8(index), width: uint8(width)}
}

func init() {
	for i := 0; i < 16; i++ {
		setGPR(x86asm.AX+x86asm.Reg(i), i, 2)
		setGPR(x86asm.EAX+x86asm.Reg(i), i, 4)
		setGPR(x86asm.RAX+x86asm.Reg(i), i, 8)
	}

	byteRegs := []struct {
		reg   x86asm.Reg
		index int
	}{
		{x86asm.AL, RAX}, {x86asm.CL, RCX}, {x86asm.DL, RDX}, {x86asm.BL, RBX},
		{x86asm.AH, RAX}, {x86asm.CH, RCX}, {x86asm.DH, RDX}, {x86asm.BH, RBX},
		{x86asm.SPB, RSP}, {x86asm.BPB, RBP}, {x86asm.SIB, RSI}, {x86asm.DIB, RDI},
	}
	for _, b := range byteRegs {
		setGPR(b.reg, b.index, 1)
	}
	for i := 0; i < 8; i++ {
		setGPR(x86asm.R8B+x86asm.Reg(i), R8+i, 1)
	}

	regTable[x86asm.IP] = regInfo{kind: slotRIP, width: 2}
	regTable[x86asm.EIP] = regInfo{kind: slotRIP, width: 4}
	regTable[x86asm.RIP] = regInfo{kind: slotRIP, width: 8}

	for i := 0; i < 6; i++ {
		regTable[x86asm.ES+x86asm.Reg(i)] = regInfo{kind: slotSeg, index: uint8(i), width: 2}
	}
	for i := 0; i < 16; i++ {
		regTable[x86asm.CR0+x86asm.Reg(i)] = regInfo{kind: slotCR, index: uint8(i), width: 8}
		regTable[x86asm.DR0+x86asm.Reg(i)] = regInfo{kind: slotDR, index: uint8(i), width: 8}
	}
	for i := 0; i < 8; i++ {
		regTable[x86asm.TR0+x86asm.Reg(i)] = regInfo{kind: slotTR, index: uint8(i), width: 4}
	}
}

func lookup(reg x86asm.Reg) (regInfo, error) {
	if int(reg) >= len(regTable) || regTable[reg].kind == slotNone {
		return regInfo{}, &UnimplementedRegisterError{Reg: reg}
	}
	return regTable[reg], nil
}

// RegisterWidth returns the declared width of reg in bytes.
func RegisterWidth(reg x86asm.Reg) (int, error) {
	info, err := lookup(reg)
	if err != nil {
		return 0, err
	}
	return int(info.width), nil
}

// Register returns the 64-bit value of the slot backing reg.
func (c *Cpu) Register(reg x86asm.Reg) (uint64, error) {
	info, err := lookup(reg)
	if err != nil {
		return 0, err
	}
	r := &c.Registers
	switch info.kind {
	case slotGPR:
		return r.GPR[info.index], nil
	case slotRSP:
		return r.RSP.Value(), nil
	case slotRIP:
		return r.RIP, nil
	case slotSeg:
		return uint64(r.Seg[info.index]), nil
	case slotCR:
		return r.CR[info.index], nil
	case slotDR:
		return r.DR[info.index], nil
	case slotTR:
		return uint64(r.TR[info.index]), nil
	}
	return 0, &UnimplementedRegisterError{Reg: reg}
}

// SetRegister overwrites the slot backing reg with value. Narrow slots
// (segments, test registers) keep the low bits; RSP wraps into the stack.
func (c *Cpu) SetRegister(reg x86asm.Reg, value uint64) error {
	info, err := lookup(reg)
	if err != nil {
		return err
	}
	r := &c.Registers
	switch info.kind {
	case slotGPR:
		r.GPR[info.index] = value
	case slotRSP:
		r.RSP = mem.NewStackPointer(value, uint64(len(c.Stack)))
	case slotRIP:
		r.RIP = value
	case slotSeg:
		r.Seg[info.index] = uint16(value)
	case slotCR:
		r.CR[info.index] = value
	case slotDR:
		r.DR[info.index] = value
	case slotTR:
		r.TR[info.index] = uint32(value)
	default:
		return &UnimplementedRegisterError{Reg: reg}
	}
	return nil
}
