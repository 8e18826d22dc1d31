package colorize

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Summary is the result panel printed after a run.
type Summary struct {
	Binary   string
	ExitCode uint64
	Stdout   string
	Stderr   string
	Steps    uint64
	Err      error
}

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Width(7)
)

// Render draws the summary in a rounded box.
func (s Summary) Render() string {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, labelStyle.Render(label)+value)
	}

	if s.Binary != "" {
		row("binary", FuncName(s.Binary))
	}
	if s.Err != nil {
		row("error", Error(s.Err.Error()))
	} else {
		row("exit", fmt.Sprint(s.ExitCode))
		row("stdout", String(fmt.Sprintf("%q", s.Stdout)))
		if s.Stderr != "" {
			row("stderr", Error(fmt.Sprintf("%q", s.Stderr)))
		}
	}
	row("steps", Detail(fmt.Sprint(s.Steps)))

	style := boxStyle
	if !IsDisabled() {
		style = style.BorderForeground(lipgloss.Color(ColorBorder))
	}
	return style.Render(strings.Join(rows, "\n"))
}
