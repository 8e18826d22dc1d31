package testimage

import (
	"bytes"
	"debug/elf"
)

const (
	ELFBase       = 0x400000
	ELFCodeOffset = 64 + 56
	ELFEntry      = ELFBase + ELFCodeOffset
)

// ELF describes an ELF64 x86-64 executable with a single PT_LOAD segment
// mapping the whole file at ELFBase.
type ELF struct {
	Code []byte
	// Symbols go to .symtab. No section headers are written when empty.
	Symbols []Symbol
	// NoLoad omits the program header table.
	NoLoad bool
	// Entry overrides ELFEntry when non-zero.
	Entry uint64
}

// Bytes serializes the image.
func (e ELF) Bytes() []byte {
	var buf bytes.Buffer
	// The program header slot is reserved even with NoLoad so code always
	// sits at ELFCodeOffset.
	buf.Write(make([]byte, 64+56))
	buf.Write(e.Code)
	codeEnd := buf.Len()

	var shoff, shnum, shstrndx int
	if len(e.Symbols) > 0 {
		shoff, shnum, shstrndx = writeSymbolSections(&buf, e.Symbols)
	}

	out := buf.Bytes()
	copy(out[0:4], elf.ELFMAG)
	out[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	out[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(out[16:], uint16(elf.ET_EXEC))
	le.PutUint16(out[18:], uint16(elf.EM_X86_64))
	le.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	entry := e.Entry
	if entry == 0 {
		entry = ELFEntry
	}
	le.PutUint64(out[24:], entry)
	if !e.NoLoad {
		le.PutUint64(out[32:], 64) // e_phoff
	}
	le.PutUint64(out[40:], uint64(shoff))
	le.PutUint16(out[52:], 64) // e_ehsize
	le.PutUint16(out[54:], 56) // e_phentsize
	if !e.NoLoad {
		le.PutUint16(out[56:], 1)
	}
	le.PutUint16(out[58:], 64) // e_shentsize
	le.PutUint16(out[60:], uint16(shnum))
	le.PutUint16(out[62:], uint16(shstrndx))

	if !e.NoLoad {
		ph := out[64:120]
		le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
		le.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
		le.PutUint64(ph[8:], 0)
		le.PutUint64(ph[16:], ELFBase)
		le.PutUint64(ph[24:], ELFBase)
		le.PutUint64(ph[32:], uint64(codeEnd))
		le.PutUint64(ph[40:], uint64(codeEnd))
		le.PutUint64(ph[48:], 0x1000)
	}
	return out
}

// writeSymbolSections appends .symtab, .strtab, .shstrtab and the section
// header table. It returns e_shoff, e_shnum and e_shstrndx.
func writeSymbolSections(buf *bytes.Buffer, syms []Symbol) (int, int, int) {
	strtab := []byte{0}
	symtab := make([]byte, 24) // null symbol
	for _, s := range syms {
		ent := make([]byte, 24)
		le.PutUint32(ent[0:], uint32(len(strtab)))
		ent[4] = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
		le.PutUint16(ent[6:], 1)
		le.PutUint64(ent[8:], s.Value)
		symtab = append(symtab, ent...)
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}
	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")

	pad(buf, 8)
	symOff := buf.Len()
	buf.Write(symtab)
	strOff := buf.Len()
	buf.Write(strtab)
	shstrOff := buf.Len()
	buf.Write(shstrtab)
	pad(buf, 8)
	shoff := buf.Len()

	section := func(name uint32, typ elf.SectionType, off, size int, link, info uint32, entsize uint64) {
		sh := make([]byte, 64)
		le.PutUint32(sh[0:], name)
		le.PutUint32(sh[4:], uint32(typ))
		le.PutUint64(sh[24:], uint64(off))
		le.PutUint64(sh[32:], uint64(size))
		le.PutUint32(sh[40:], link)
		le.PutUint32(sh[44:], info)
		le.PutUint64(sh[48:], 1)
		le.PutUint64(sh[56:], entsize)
		buf.Write(sh)
	}
	buf.Write(make([]byte, 64))
	section(1, elf.SHT_SYMTAB, symOff, len(symtab), 2, 1, 24)
	section(9, elf.SHT_STRTAB, strOff, len(strtab), 0, 0, 0)
	section(17, elf.SHT_STRTAB, shstrOff, len(shstrtab), 0, 0, 0)
	return shoff, 4, 3
}
