package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/xemu/internal/loader"
	"github.com/zboralski/xemu/internal/trace"
	"github.com/zboralski/xemu/internal/ui/colorize"
)

type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

// Write queues a line. Lines are dropped when the writer falls behind.
func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func instructionTags(op x86asm.Op) []string {
	switch op {
	case x86asm.XOR:
		return []string{"#xor"}
	case x86asm.JMP:
		return []string{"#jmp"}
	case x86asm.PUSH, x86asm.POP:
		return []string{"#stack"}
	}
	return nil
}

// tracedInsn is an executed instruction waiting for the events it caused.
type tracedInsn struct {
	addr uint64
	code []byte
	dis  string
	op   x86asm.Op
	fn   string
}

const (
	hexCol  = 10 * 2
	insnCol = 52
)

func formatLine(in tracedInsn, events []*trace.Event) string {
	var b strings.Builder
	b.Grow(256)

	b.WriteString(colorize.Address(in.addr))
	b.WriteString("  ")

	hex := fmt.Sprintf("%X", in.code)
	if len(hex) > hexCol {
		hex = hex[:hexCol-1] + "+"
	}
	b.WriteString(colorize.HexBytes(hex))
	b.WriteString(strings.Repeat(" ", hexCol-len(hex)+2))

	b.WriteString(colorize.Instruction(in.dis))
	visibleLen := 8 + 2 + hexCol + 2 + len(in.dis)
	for visibleLen < insnCol {
		b.WriteByte(' ')
		visibleLen++
	}

	tags := instructionTags(in.op)
	var details []string
	for _, e := range events {
		for _, t := range e.Tags.Strings() {
			if !contains(tags, t) {
				tags = append(tags, t)
			}
		}
		if e.Detail != "" {
			details = append(details, e.Detail)
		}
	}

	if len(tags) > 0 || len(details) > 0 {
		var parts []string
		if len(tags) > 0 {
			parts = append(parts, colorize.Tag(strings.Join(tags, " ")))
		}
		if len(details) > 0 {
			parts = append(parts, colorize.Comment(strings.Join(details, ", ")))
		}
		b.WriteString(colorize.Comment("; "))
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("  ")
	}

	if in.fn != "" {
		b.WriteString(colorize.FuncName("<" + in.fn + ">"))
	}
	for _, e := range events {
		if e.Name != "" && e.Tags.Has(trace.Syscall) {
			b.WriteByte(' ')
			b.WriteString(colorize.FuncName(e.Name))
		}
	}
	return b.String()
}

func contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func relPath(binary string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, binary); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return binary
}

func printHeader(w *outputWriter, binary string, entry *loader.Entry, numExports int) {
	w.Write("")
	w.Write(fmt.Sprintf("%s xemu %s x86-64 emulation trace", colorize.Header("▶"), colorize.Border("─")))
	w.Write(fmt.Sprintf("  %s %s", colorize.Detail("Loading:"), relPath(binary)))
	w.Write(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Format:"), colorize.FuncName(entry.Format.String()),
		colorize.Detail("Bits:"), colorize.FuncName(fmt.Sprint(entry.Bitness))))
	w.Write(fmt.Sprintf("  %s %s  %s %s  %s %s",
		colorize.Detail("Base:"), colorize.Address(entry.Base),
		colorize.Detail("Entry:"), colorize.Address(entry.EntryPoint),
		colorize.Detail("Exports:"), colorize.FuncName(fmt.Sprint(numExports))))
	w.Write(colorize.Border(strings.Repeat("─", insnCol)))
}

// instructionBytes returns the encoding of the n-byte instruction at addr,
// read from the decoded image (the x86 slice of a fat Mach-O).
func instructionBytes(entry *loader.Entry, addr uint64, n int) []byte {
	img := entry.Decoder.Bytes()
	pos := addr - entry.Base
	if pos >= uint64(len(img)) || uint64(n) > uint64(len(img))-pos {
		return nil
	}
	return img[pos : pos+uint64(n)]
}

// symbolizer names addresses for x86asm.IntelSyntax.
func symbolizer(exports loader.Exports) (map[uint64]string, x86asm.SymLookup) {
	byAddr := make(map[uint64]string, len(exports))
	for _, e := range exports.Sorted() {
		if existing, ok := byAddr[e.Addr]; !ok || len(e.Name) < len(existing) {
			byAddr[e.Addr] = e.Name
		}
	}
	return byAddr, func(addr uint64) (string, uint64) {
		if name, ok := byAddr[addr]; ok {
			return name, addr
		}
		return "", 0
	}
}
