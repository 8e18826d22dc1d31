package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"strings"
)

func openELF(data []byte) (*elf.File, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	return f, nil
}

func resolveELF(data []byte) (*Entry, error) {
	f, err := openELF(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Load base is the lowest PT_LOAD vaddr
	base, found := uint64(0), false
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if !found || prog.Vaddr < base {
			base = prog.Vaddr
			found = true
		}
	}
	if !found {
		return nil, ErrELFLoadHeaderMissing
	}

	bitness := 32
	if f.Class == elf.ELFCLASS64 {
		bitness = 64
	}

	var pos uint64
	if f.Entry > base {
		pos = f.Entry - base
	}
	return newEntry(FormatELF, bitness, data, f.Entry, pos)
}

// elfExports reads .dynsym and then .symtab; .symtab wins on conflicts.
// Versioned names are also stored without their @VERSION suffix.
func elfExports(data []byte) (Exports, error) {
	f, err := openELF(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	exports := make(Exports)
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			exports[sym.Name] = sym.Value
			if name := stripVersion(sym.Name); name != sym.Name && name != "" {
				exports[name] = sym.Value
			}
		}
	}

	dyn, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("read dynamic symbols: %w", err)
	}
	add(dyn)

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	add(syms)

	return exports, nil
}

func stripVersion(name string) string {
	if idx := strings.Index(name, "@"); idx != -1 {
		return name[:idx]
	}
	return name
}
