// Package colorize styles disassembly and emulation results for the terminal.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// Palette
const (
	ColorAddress  = "#808080"
	ColorMnemonic = "#FFFFFF"
	ColorRegister = "#87CEEB"
	ColorNumber   = "#FF80C0"
	ColorLabel    = "#FFC800"
	ColorComment  = "#FF8000"
	ColorString   = "#00FF00"
	ColorBorder   = "#505050"
)

// Disasm is the chroma style used for NASM-lexed x86 instructions.
var Disasm = styles.Register(chroma.MustNewStyle("xemu-disasm", chroma.StyleEntries{
	chroma.Text:           ColorMnemonic,
	chroma.Background:     "bg:#000000",
	chroma.Comment:        ColorComment,
	chroma.CommentPreproc: ColorComment,

	chroma.Keyword:       ColorMnemonic,
	chroma.KeywordPseudo: ColorMnemonic,
	chroma.Name:          ColorRegister,
	chroma.NameBuiltin:   ColorRegister, // rax, rsp, ...
	chroma.NameVariable:  ColorRegister,
	chroma.NameFunction:  ColorMnemonic, // NASM lexes mnemonics as functions
	chroma.NameLabel:     ColorLabel,

	chroma.LiteralNumber:        ColorNumber,
	chroma.LiteralNumberHex:     ColorNumber,
	chroma.LiteralNumberBin:     ColorNumber,
	chroma.LiteralNumberOct:     ColorNumber,
	chroma.LiteralNumberInteger: ColorNumber,

	chroma.Operator:    ColorMnemonic,
	chroma.Punctuation: ColorMnemonic,
	chroma.String:      ColorString,
}))
