package loader

import (
	"bytes"
	"fmt"

	"github.com/Binject/debug/pe"
)

func openPE(data []byte) (*pe.File, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse PE: %w", err)
	}
	return f, nil
}

type peHeader struct {
	imageBase  uint64
	entryRVA   uint32
	bitness    int
	optional64 bool
}

func readPEHeader(f *pe.File) (peHeader, error) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		if oh == nil {
			break
		}
		return peHeader{imageBase: oh.ImageBase, entryRVA: oh.AddressOfEntryPoint, bitness: 64, optional64: true}, nil
	case *pe.OptionalHeader32:
		if oh == nil {
			break
		}
		return peHeader{imageBase: uint64(oh.ImageBase), entryRVA: oh.AddressOfEntryPoint, bitness: 32}, nil
	}
	return peHeader{}, ErrPEOptionalHeaderMissing
}

// rvaToOffset maps an RVA to a file offset through the section table.
// RVAs outside every section's raw data (headers) map to themselves.
func rvaToOffset(f *pe.File, rva uint32) uint64 {
	for _, s := range f.Sections {
		size := s.VirtualSize
		if size == 0 {
			size = s.Size
		}
		if rva < s.VirtualAddress || rva >= s.VirtualAddress+size {
			continue
		}
		if off := rva - s.VirtualAddress; off < s.Size {
			return uint64(s.Offset) + uint64(off)
		}
	}
	return uint64(rva)
}

func resolvePE(data []byte) (*Entry, error) {
	f, err := openPE(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return peEntry(f, data)
}

func peEntry(f *pe.File, data []byte) (*Entry, error) {
	h, err := readPEHeader(f)
	if err != nil {
		return nil, err
	}
	ip := h.imageBase + uint64(h.entryRVA)
	return newEntry(FormatPE, h.bitness, data, ip, rvaToOffset(f, h.entryRVA))
}

// peExports maps named exports to their RVA. Ordinal-only and forwarded
// entries with no address are skipped.
func peExports(data []byte) (Exports, error) {
	f, err := openPE(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := readPEHeader(f)
	if err != nil {
		return nil, err
	}
	// The export reader picks the optional header layout from the machine.
	if h.optional64 != (f.Machine == pe.IMAGE_FILE_MACHINE_AMD64) {
		return nil, fmt.Errorf("read PE exports: optional header does not match machine 0x%x", f.Machine)
	}

	list, err := f.Exports()
	if err != nil {
		return nil, fmt.Errorf("read PE exports: %w", err)
	}
	exports := make(Exports, len(list))
	for _, exp := range list {
		if exp.Name == "" || exp.VirtualAddress == 0 {
			continue
		}
		exports[exp.Name] = uint64(exp.VirtualAddress)
	}
	return exports, nil
}
