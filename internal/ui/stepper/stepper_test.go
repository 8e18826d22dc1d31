package stepper

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/xemu/internal/decode"
	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/testimage"
)

func press(m *Model, k string) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return cmd
}

// drain feeds the messages produced by cmd back into m until none remain.
func drain(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		_, cmd = m.Update(cmd())
	}
}

func newModel(t *testing.T, code ...[]byte) *Model {
	return newModelSteps(t, 100, code...)
}

func newModelSteps(t *testing.T, maxSteps uint64, code ...[]byte) *Model {
	t.Helper()
	t.Setenv("XEMU_NO_COLOR", "1")
	data := testimage.ELF{Code: testimage.Concat(code...)}.Bytes()
	dec := decode.New(64, data, testimage.ELFEntry)
	require.NoError(t, dec.SetPosition(testimage.ELFCodeOffset))
	return New(emulator.New(dec, emulator.Options{MaxSteps: maxSteps}), nil)
}

func TestStepAndContinue(t *testing.T) {
	m := newModel(t,
		[]byte{0x6A, 0x41},       // push 0x41
		[]byte{0x48, 0x89, 0xE6}, // mov rsi, rsp
		testimage.MovImm64(2, 1),
		testimage.MovImm64(7, 1),
		testimage.MovImm64(0, 1),
		testimage.Syscall(),
		testimage.Exit(5),
	)

	view := m.View()
	assert.Contains(t, view, "▶ 00400078  push")
	assert.Contains(t, view, "steps 0")

	press(m, "n")
	view = m.View()
	assert.Contains(t, view, "00400078  push")
	assert.Contains(t, view, "▶ 0040007A  mov rsi, rsp")
	assert.Contains(t, view, "rsp  00000000000003f8")
	assert.Contains(t, view, "41 00 00 00 00 00 00 00")

	drain(m, press(m, "c"))
	exec, err := m.Result()
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, uint64(5), exec.ExitCode)

	view = m.View()
	assert.Contains(t, view, `stdout "A"`)
	assert.Contains(t, view, "exited 5")

	// Stepping a finished program is a no-op.
	press(m, "n")
	_, err = m.Result()
	assert.NoError(t, err)
}

func TestErrorShown(t *testing.T) {
	m := newModel(t, []byte{0x90})
	press(m, "n")
	_, err := m.Result()
	require.Error(t, err)
	assert.Contains(t, m.View(), "error: ")
}

func TestHistoryBounded(t *testing.T) {
	m := newModel(t, []byte{0xEB, 0xFE}) // jmp $
	for i := 0; i < HistorySize+5; i++ {
		press(m, "n")
	}
	assert.Len(t, m.history, HistorySize)
}

func TestQuitAndHelp(t *testing.T) {
	m := newModel(t, testimage.Exit(0))
	assert.Nil(t, press(m, "?"))
	assert.True(t, m.help.ShowAll)

	cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestContinueUnbounded(t *testing.T) {
	m := newModelSteps(t, 0, []byte{0xEB, 0xFE}) // jmp $

	cmd := press(m, "c")
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "running")

	_, cmd = m.Update(cmd())
	require.NotNil(t, cmd)
	assert.Equal(t, uint64(RunBatch), m.emu.Steps())

	quit := press(m, "q")
	require.NotNil(t, quit)
	assert.IsType(t, tea.QuitMsg{}, quit())

	// Continue again pauses.
	press(m, "c")
	_, cmd = m.Update(cmd())
	assert.Nil(t, cmd)
	assert.Equal(t, uint64(RunBatch), m.emu.Steps())
}
