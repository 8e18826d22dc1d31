// Package stepper is an interactive single-step debugger for the emulator.
package stepper

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/xemu/internal/cpu"
	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/ui/colorize"
)

// HistorySize is the number of executed instructions kept on screen.
const HistorySize = 12

// stackWindow is the number of stack bytes shown from RSP.
const stackWindow = 32

// RunBatch is the number of instructions a continue executes per message.
// Keys are handled between batches.
const RunBatch = 10_000

type continueMsg struct{}

func continueCmd() tea.Msg { return continueMsg{} }

var shownRegisters = []struct {
	name  string
	index int
}{
	{"rax", cpu.RAX}, {"rbx", cpu.RBX}, {"rcx", cpu.RCX}, {"rdx", cpu.RDX},
	{"rsi", cpu.RSI}, {"rdi", cpu.RDI}, {"rbp", cpu.RBP}, {"rsp", cpu.RSP},
}

type keyMap struct {
	Step key.Binding
	Run  key.Binding
	Help key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Step, k.Run, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Step, k.Run}, {k.Help, k.Quit}}
}

var keys = keyMap{
	Step: key.NewBinding(key.WithKeys("n", "s", "enter"), key.WithHelp("n", "step")),
	Run:  key.NewBinding(key.WithKeys("c", "r"), key.WithHelp("c", "continue/pause")),
	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

var (
	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(colorize.ColorBorder)).
		Padding(0, 1)
	title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#569CD6"))
)

// Model is the bubbletea model of a stepping session.
type Model struct {
	emu     *emulator.Emulator
	symname x86asm.SymLookup

	history []string
	exec    *emulator.Execution
	err     error
	running bool

	help help.Model
}

// New creates a model over emu. symname may be nil.
func New(emu *emulator.Emulator, symname x86asm.SymLookup) *Model {
	m := &Model{emu: emu, symname: symname, help: help.New()}
	emu.HookCode(func(_ *emulator.Emulator, addr uint64, inst x86asm.Inst) {
		m.history = append(m.history, m.line(addr, inst))
		if len(m.history) > HistorySize {
			m.history = m.history[len(m.history)-HistorySize:]
		}
	})
	return m
}

func (m *Model) line(addr uint64, inst x86asm.Inst) string {
	return fmt.Sprintf("%s  %s", colorize.Address(addr), colorize.Instruction(x86asm.IntelSyntax(inst, addr, m.symname)))
}

// Result returns the execution and error once the program finished.
func (m *Model) Result() (*emulator.Execution, error) {
	return m.exec, m.err
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, keys.Step):
			m.running = false
			m.step()
		case key.Matches(msg, keys.Run):
			if m.running || m.emu.Done() {
				m.running = false
				return m, nil
			}
			m.running = true
			return m, continueCmd
		}
	case continueMsg:
		if !m.running {
			return m, nil
		}
		for i := 0; i < RunBatch && !m.emu.Done(); i++ {
			m.step()
		}
		if m.emu.Done() {
			m.running = false
			return m, nil
		}
		return m, continueCmd
	}
	return m, nil
}

func (m *Model) step() {
	if m.emu.Done() {
		return
	}
	exec, err := m.emu.Step()
	if exec != nil {
		m.exec = exec
	}
	if err != nil {
		m.err = err
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(title.Render("xemu step"))
	b.WriteString(fmt.Sprintf("  %s %d\n", colorize.Detail("steps"), m.emu.Steps()))

	code := strings.Join(m.history, "\n")
	if !m.emu.Done() {
		if addr, inst, err := m.emu.Peek(); err == nil {
			if code != "" {
				code += "\n"
			}
			code += colorize.Header("▶ ") + m.line(addr, inst)
		}
	}
	if code == "" {
		code = colorize.Detail("no instructions")
	}

	regs := m.registers()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panel.Render(code), panel.Render(regs)))
	b.WriteByte('\n')

	stdout, stderr := m.emu.Output()
	b.WriteString(fmt.Sprintf("%s %s\n", colorize.Detail("stdout"), colorize.String(fmt.Sprintf("%q", stdout))))
	if stderr != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", colorize.Detail("stderr"), colorize.Error(fmt.Sprintf("%q", stderr))))
	}

	switch {
	case m.running:
		b.WriteString(colorize.Detail("running") + "\n")
	case m.err != nil:
		b.WriteString(colorize.Error("error: "+m.err.Error()) + "\n")
	case m.exec != nil:
		b.WriteString(fmt.Sprintf("%s %d\n", colorize.Detail("exited"), m.exec.ExitCode))
	}

	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) registers() string {
	c := m.emu.Cpu()
	r := &c.Registers

	var b strings.Builder
	for _, reg := range shownRegisters {
		v := r.GPR[reg.index]
		if reg.index == cpu.RSP {
			v = r.RSP.Value()
		}
		fmt.Fprintf(&b, "%-4s %016x\n", reg.name, v)
	}
	fmt.Fprintf(&b, "%-4s %016x\n", "rip", r.RIP)

	n := uint64(stackWindow)
	if n > uint64(len(c.Stack)) {
		n = uint64(len(c.Stack))
	}
	if data, err := c.ReadStack(r.RSP.Value(), n); err == nil {
		b.WriteString(colorize.Detail("stack"))
		for i, v := range data {
			if i%8 == 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%02x ", v)
		}
	}
	return strings.TrimRight(b.String(), " \n")
}
