// Package loader recognizes ELF, PE and Mach-O images, positions a decoder at
// their entry point and extracts their exported symbols.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zboralski/xemu/internal/decode"
	glog "github.com/zboralski/xemu/internal/log"
)

// Format is a binary container kind.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
	FormatMachO
	FormatFatMachO
	FormatArchive
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	case FormatFatMachO:
		return "fat Mach-O"
	case FormatArchive:
		return "ar archive"
	}
	return "unknown"
}

// Detect identifies the container format from its magic bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		return FormatELF
	case bytes.HasPrefix(data, []byte("MZ")):
		return FormatPE
	case bytes.HasPrefix(data, []byte("!<arch>\n")):
		return FormatArchive
	}
	if len(data) < 4 {
		return FormatUnknown
	}
	be := binary.BigEndian.Uint32(data)
	le := binary.LittleEndian.Uint32(data)
	switch {
	case be == 0xcafebabe:
		return FormatFatMachO
	case be == 0xfeedface, be == 0xfeedfacf, le == 0xfeedface, le == 0xfeedfacf:
		return FormatMachO
	}
	return FormatUnknown
}

// Entry is a resolved entry point.
type Entry struct {
	// Decoder is positioned at the entry instruction.
	Decoder *decode.Decoder
	Format  Format
	Bitness int
	// Base is the virtual address corresponding to file offset zero.
	Base       uint64
	EntryPoint uint64
}

// ResolveEntry parses data and returns a decoder positioned at its entry point.
// Fat Mach-O images resolve through their x86 slice.
func ResolveEntry(data []byte) (*Entry, error) {
	var (
		entry *Entry
		err   error
	)
	switch Detect(data) {
	case FormatELF:
		entry, err = resolveELF(data)
	case FormatPE:
		entry, err = resolvePE(data)
	case FormatMachO:
		entry, err = resolveMachO(data)
	case FormatFatMachO:
		slice, serr := fatSlice(data)
		if serr != nil {
			return nil, serr
		}
		entry, err = ResolveEntry(slice)
	default:
		return nil, ErrUnimplementedBinaryFormat
	}
	if err != nil {
		return nil, err
	}

	if glog.L != nil {
		glog.L.Loaded(entry.Format.String(), entry.Bitness, entry.Base, entry.EntryPoint)
	}
	return entry, nil
}

func newEntry(format Format, bitness int, data []byte, ip, pos uint64) (*Entry, error) {
	if pos > uint64(len(data)) {
		return nil, fmt.Errorf("%w: offset 0x%x, image size 0x%x", ErrEntryOutsideImage, pos, len(data))
	}
	d := decode.New(bitness, data, ip)
	if err := d.SetPosition(int(pos)); err != nil {
		return nil, err
	}
	return &Entry{
		Decoder:    d,
		Format:     format,
		Bitness:    bitness,
		Base:       ip - pos,
		EntryPoint: ip,
	}, nil
}

// ResolveExports returns the exported symbols of data.
func ResolveExports(data []byte) (Exports, error) {
	switch Detect(data) {
	case FormatELF:
		return elfExports(data)
	case FormatPE:
		return peExports(data)
	case FormatMachO:
		return machoExports(data)
	case FormatFatMachO:
		slice, err := fatSlice(data)
		if err != nil {
			return nil, err
		}
		return ResolveExports(slice)
	}
	return nil, ErrUnimplementedBinaryFormat
}

// Info summarizes an image.
type Info struct {
	Format     Format
	Bitness    int
	Base       uint64
	EntryPoint uint64
	Exports    Exports
}

// Inspect resolves both the entry point and the exports of data.
func Inspect(data []byte) (*Info, error) {
	entry, err := ResolveEntry(data)
	if err != nil {
		return nil, fmt.Errorf("resolve entry: %w", err)
	}
	exports, err := ResolveExports(data)
	if err != nil {
		return nil, fmt.Errorf("resolve exports: %w", err)
	}
	format := entry.Format
	if Detect(data) == FormatFatMachO {
		format = FormatFatMachO
	}
	return &Info{
		Format:     format,
		Bitness:    entry.Bitness,
		Base:       entry.Base,
		EntryPoint: entry.EntryPoint,
		Exports:    exports,
	}, nil
}
