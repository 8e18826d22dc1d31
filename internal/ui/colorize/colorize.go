package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
)

// IsDisabled reports whether colors are disabled via XEMU_NO_COLOR or NO_COLOR.
func IsDisabled() bool {
	return os.Getenv("XEMU_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func lexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas"} {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	return nil
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// Instruction highlights an Intel-syntax x86 instruction.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}
	l := lexer()
	if l == nil {
		return insn
	}
	it, err := l.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, Disasm, it); err != nil {
		return insn
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func rgb(r, g, b int, s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", r, g, b, s)
}

// Address formats an address in yellow
func Address(addr uint64) string {
	return rgb(255, 200, 0, fmt.Sprintf("%08X", addr))
}

// Tag formats a hashtag in light pink
func Tag(tag string) string { return rgb(255, 180, 200, tag) }

// FuncName formats a symbol or syscall name in yellow
func FuncName(name string) string { return rgb(255, 200, 0, name) }

// Detail formats detail text in light gray
func Detail(detail string) string { return rgb(180, 180, 180, detail) }

// Border formats border characters in dark gray
func Border(s string) string { return rgb(80, 80, 80, s) }

// Comment formats trailing comments
func Comment(s string) string { return rgb(255, 255, 255, s) }

// Header formats header text in blue
func Header(s string) string { return rgb(86, 156, 214, s) }

// HexBytes formats opcode bytes in light gray
func HexBytes(s string) string { return rgb(180, 180, 180, s) }

// Error formats error messages in pink
func Error(s string) string { return rgb(255, 128, 192, s) }

// String formats program output in green
func String(s string) string { return rgb(0, 255, 0, s) }
