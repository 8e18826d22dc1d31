package decode

import (
	"errors"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeAdvances(t *testing.T) {
	code := []byte{0x31, 0xFF, 0x0F, 0x05}
	d := New(64, code, 0x401000)

	inst, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if inst.Op != x86asm.XOR {
		t.Errorf("expected XOR, got %v", inst.Op)
	}
	if d.IP() != 0x401002 || d.Position() != 2 {
		t.Errorf("cursor at ip=0x%x pos=%d", d.IP(), d.Position())
	}

	inst, err = d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if inst.Op != x86asm.SYSCALL {
		t.Errorf("expected SYSCALL, got %v", inst.Op)
	}
	if d.Position() != len(d.Bytes()) {
		t.Error("expected end of data")
	}
	if _, err := d.Decode(); !errors.Is(err, ErrNoMoreBytes) {
		t.Errorf("expected ErrNoMoreBytes, got %v", err)
	}
}

func TestSetPosition(t *testing.T) {
	d := New(64, []byte{0x90, 0x90, 0x90}, 0x1000)

	if err := d.SetPosition(2); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	d.SetIP(0x1002)
	if _, err := d.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.IP() != 0x1003 {
		t.Errorf("ip = 0x%x", d.IP())
	}
	if err := d.SetPosition(3); err != nil {
		t.Errorf("SetPosition(len): %v", err)
	}
	if err := d.SetPosition(4); err == nil {
		t.Error("expected error past end")
	}
	if d.Bitness() != 64 || d.Len() != 3 {
		t.Errorf("bitness=%d len=%d", d.Bitness(), d.Len())
	}
}

func TestDecodeInvalid(t *testing.T) {
	// mov rax, imm64 cut short
	d := New(64, []byte{0x48, 0xB8, 0x01}, 0)
	_, err := d.Decode()
	if !errors.Is(err, ErrInvalidInstruction) {
		t.Fatalf("expected invalid instruction, got %v", err)
	}
	if d.Position() != 0 {
		t.Errorf("cursor moved to %d on failure", d.Position())
	}
}
