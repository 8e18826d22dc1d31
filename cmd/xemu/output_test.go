package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/xemu/internal/loader"
	"github.com/zboralski/xemu/internal/testimage"
	"github.com/zboralski/xemu/internal/trace"
)

func TestFormatLine(t *testing.T) {
	t.Setenv("XEMU_NO_COLOR", "1")

	ev := trace.NewEvent(0x401000, "io", "write", `fd=1 "A"`)
	ev.Annotate("fd", "1")
	trace.DefaultEnricher(ev)

	line := formatLine(tracedInsn{
		addr: 0x401000,
		code: []byte{0x0F, 0x05},
		dis:  "syscall",
		op:   x86asm.SYSCALL,
		fn:   "_start",
	}, []*trace.Event{ev})

	assert.Contains(t, line, "00401000  0F05")
	assert.Contains(t, line, `; #io #syscall #stdout fd=1 "A"`)
	assert.Contains(t, line, "<_start> write")
}

func TestFormatLineLongEncoding(t *testing.T) {
	t.Setenv("XEMU_NO_COLOR", "1")
	line := formatLine(tracedInsn{
		addr: 0x401000,
		code: []byte{0x48, 0xB8, 1, 2, 3, 4, 5, 6, 7, 8},
		dis:  "mov rax, 0x807060504030201",
		op:   x86asm.MOV,
	}, nil)
	assert.Contains(t, line, "48B80102030405060708  mov")
	assert.NotContains(t, line, ";")
}

func TestInstructionTags(t *testing.T) {
	assert.Equal(t, []string{"#xor"}, instructionTags(x86asm.XOR))
	assert.Equal(t, []string{"#stack"}, instructionTags(x86asm.POP))
	assert.Nil(t, instructionTags(x86asm.MOV))
}

func TestSymbolizer(t *testing.T) {
	byAddr, lookup := symbolizer(loader.Exports{
		"win_function":  0x401100,
		"_win_function": 0x401100,
		"main":          0x401000,
	})
	assert.Equal(t, "main", byAddr[0x401000])
	assert.Equal(t, "win_function", byAddr[0x401100])

	name, base := lookup(0x401100)
	assert.Equal(t, "win_function", name)
	assert.Equal(t, uint64(0x401100), base)

	name, _ = lookup(0x1)
	assert.Empty(t, name)
}

func TestInstructionBytesFatMachO(t *testing.T) {
	code := testimage.Exit(3)
	arm := testimage.MachO{Cpu: testimage.CPUArm64, Code: []byte{0xC0, 0x03, 0x5F, 0xD6}}
	data := testimage.Fat(arm.Bytes(), testimage.MachO{Code: code}.Bytes())

	entry, err := loader.ResolveEntry(data)
	require.NoError(t, err)
	inst, err := entry.Decoder.Decode()
	require.NoError(t, err)

	assert.Equal(t, code[:inst.Len], instructionBytes(entry, entry.EntryPoint, inst.Len))
	assert.Nil(t, instructionBytes(entry, entry.Base+uint64(len(entry.Decoder.Bytes())), 1))
	assert.Nil(t, instructionBytes(entry, entry.Base-1, 1))
}
