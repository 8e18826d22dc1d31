package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/pkg/trie"
	"github.com/blacktop/go-macho/types"
)

func openMachO(data []byte) (*macho.File, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse Mach-O: %w", err)
	}
	return f, nil
}

func entryPoint(f *macho.File) *macho.EntryPoint {
	for _, l := range f.Loads {
		if ep, ok := l.(*macho.EntryPoint); ok {
			return ep
		}
	}
	return nil
}

func resolveMachO(data []byte) (*Entry, error) {
	f, err := openMachO(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ep := entryPoint(f)
	if ep == nil {
		return nil, ErrMachOLoadCommandMissing
	}

	// EntryOffset is a file offset; __TEXT maps it to a virtual address.
	entryoff := ep.EntryOffset
	ip := entryoff
	if text := f.Segment("__TEXT"); text != nil && entryoff >= text.Offset {
		ip = text.Addr + (entryoff - text.Offset)
	}

	bitness := 32
	if f.Magic == types.Magic64 {
		bitness = 64
	}
	return newEntry(FormatMachO, bitness, data, ip, entryoff)
}

// fatSlice returns the first 32-bit x86 slice, or failing that the first
// x86-64 slice, of a fat image. Only the fat_arch table is read, so a
// broken slice for another architecture does not get in the way.
func fatSlice(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)
	var hdr struct {
		Magic types.Magic
		Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMachFatNoX86, err)
	}
	if hdr.Magic != types.MagicFat {
		return nil, fmt.Errorf("%w: magic 0x%x", ErrMachFatNoX86, uint32(hdr.Magic))
	}
	if uint64(hdr.Count)*uint64(binary.Size(macho.FatArchHeader{})) > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d fat_arch entries past end of image", ErrMachFatNoX86, hdr.Count)
	}
	arches := make([]macho.FatArchHeader, hdr.Count)
	if err := binary.Read(r, binary.BigEndian, arches); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMachFatNoX86, err)
	}

	for _, cpu := range []types.CPU{types.CPUI386, types.CPUAmd64} {
		for _, a := range arches {
			if a.CPU != cpu {
				continue
			}
			start := uint64(a.Offset)
			end := start + uint64(a.Size)
			if start >= uint64(len(data)) || end > uint64(len(data)) {
				return nil, fmt.Errorf("%w: slice [0x%x, 0x%x) outside 0x%x bytes", ErrMachFatNoX86, start, end, len(data))
			}
			return data[start:end], nil
		}
	}
	return nil, ErrMachFatNoX86
}

// machoExports reads the dyld export trie, from LC_DYLD_EXPORTS_TRIE or
// LC_DYLD_INFO(_ONLY), and keeps regular exports as offsets from __TEXT.
// Re-exports and stub resolvers are skipped.
func machoExports(data []byte) (Exports, error) {
	f, err := openMachO(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var syms []trie.TrieExport
	switch {
	case f.DyldExportsTrie() != nil:
		syms, err = f.DyldExports()
	case f.DyldInfo() != nil, f.DyldInfoOnly() != nil:
		syms, err = f.GetExports()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExportTrie, err)
	}

	base := f.GetBaseAddress()
	exports := make(Exports)
	for _, s := range syms {
		if s.Flags.ReExport() || s.Flags.StubAndResolver() {
			continue
		}
		addr := s.Address
		if (s.Flags.Regular() || s.Flags.ThreadLocal()) && addr >= base {
			addr -= base
		}
		if s.Name != "" && addr != 0 {
			exports[s.Name] = addr
		}
	}
	return exports, nil
}
