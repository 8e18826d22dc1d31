package colorize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabled(t *testing.T) {
	t.Setenv("XEMU_NO_COLOR", "1")
	assert.True(t, IsDisabled())
	assert.Equal(t, "mov rax, 0x1", Instruction("mov rax, 0x1"))
	assert.Equal(t, "00401000", Address(0x401000))
	assert.Equal(t, "#syscall", Tag("#syscall"))
}

func TestEnabled(t *testing.T) {
	t.Setenv("XEMU_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")
	assert.False(t, IsDisabled())

	got := Instruction("mov rax, 0x1")
	assert.Contains(t, got, "\033[")
	assert.Contains(t, got, "rax")
	assert.False(t, strings.HasSuffix(got, "\n"))

	assert.Equal(t, "\033[38;2;255;200;0m00401000\033[0m", Address(0x401000))
}

func TestSummary(t *testing.T) {
	t.Setenv("XEMU_NO_COLOR", "1")

	out := Summary{Binary: "a.out", ExitCode: 3, Stdout: "A", Steps: 12}.Render()
	assert.Contains(t, out, "a.out")
	assert.Contains(t, out, "exit   3")
	assert.Contains(t, out, `stdout "A"`)
	assert.Contains(t, out, "steps  12")
	assert.NotContains(t, out, "stderr")
	assert.Contains(t, out, "╭")

	failed := Summary{Steps: 1, Err: errors.New("boom")}.Render()
	assert.Contains(t, failed, "error  boom")
	assert.NotContains(t, failed, "exit")
}
