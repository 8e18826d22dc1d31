package testimage

import (
	"bytes"
	"encoding/binary"
)

const (
	MachOTextAddr = 0x100000000

	CPUAmd64  = 0x01000007
	CPU386    = 0x00000007
	CPUArm64  = 0x0100000c
	subCPUX86 = 3

	ExportReexport        = 0x08
	ExportStubAndResolver = 0x10

	lcSegment64        = 0x19
	lcMain             = 0x80000028
	lcDyldExportsTrie  = 0x80000033
	machHeader64Size   = 32
	segmentCommandSize = 72
	mainCommandSize    = 24
	linkeditCmdSize    = 16
)

// MachO describes a thin 64-bit Mach-O executable with a __TEXT segment
// mapping the whole file at MachOTextAddr.
type MachO struct {
	// Cpu defaults to CPUAmd64.
	Cpu  uint32
	Code []byte
	// Exports values are offsets from the __TEXT base, as dyld stores them.
	Exports []Symbol
	// NoMain omits LC_MAIN.
	NoMain bool
}

// SubCpu returns the cpu subtype written for cpu.
func SubCpu(cpu uint32) uint32 {
	if cpu == CPUAmd64 || cpu == CPU386 {
		return subCPUX86
	}
	return 0
}

// CodeOffset returns the file offset of Code within the serialized image.
func (m MachO) CodeOffset() int {
	size := machHeader64Size + segmentCommandSize
	if !m.NoMain {
		size += mainCommandSize
	}
	if len(m.Exports) > 0 {
		size += linkeditCmdSize
	}
	return alignUp(size, 16)
}

// Bytes serializes the image.
func (m MachO) Bytes() []byte {
	cpu := m.Cpu
	if cpu == 0 {
		cpu = CPUAmd64
	}
	codeOff := m.CodeOffset()

	var body bytes.Buffer
	body.Write(make([]byte, codeOff))
	body.Write(m.Code)
	var trieOff, trieSize int
	if len(m.Exports) > 0 {
		pad(&body, 8)
		trieOff = body.Len()
		trie := ExportTrie(m.Exports)
		body.Write(trie)
		trieSize = len(trie)
		pad(&body, 8)
	}
	out := body.Bytes()

	ncmds, cmdsSize := 1, segmentCommandSize
	p := machHeader64Size

	seg := out[p : p+segmentCommandSize]
	le.PutUint32(seg[0:], lcSegment64)
	le.PutUint32(seg[4:], segmentCommandSize)
	copy(seg[8:24], "__TEXT")
	le.PutUint64(seg[24:], MachOTextAddr)
	le.PutUint64(seg[32:], uint64(alignUp(len(out), 0x1000)))
	le.PutUint64(seg[40:], 0)
	le.PutUint64(seg[48:], uint64(len(out)))
	le.PutUint32(seg[56:], 5)
	le.PutUint32(seg[60:], 5)
	p += segmentCommandSize

	if !m.NoMain {
		cmd := out[p : p+mainCommandSize]
		le.PutUint32(cmd[0:], lcMain)
		le.PutUint32(cmd[4:], mainCommandSize)
		le.PutUint64(cmd[8:], uint64(codeOff))
		p += mainCommandSize
		ncmds++
		cmdsSize += mainCommandSize
	}
	if len(m.Exports) > 0 {
		cmd := out[p : p+linkeditCmdSize]
		le.PutUint32(cmd[0:], lcDyldExportsTrie)
		le.PutUint32(cmd[4:], linkeditCmdSize)
		le.PutUint32(cmd[8:], uint32(trieOff))
		le.PutUint32(cmd[12:], uint32(trieSize))
		ncmds++
		cmdsSize += linkeditCmdSize
	}

	le.PutUint32(out[0:], 0xfeedfacf)
	le.PutUint32(out[4:], cpu)
	le.PutUint32(out[8:], SubCpu(cpu))
	le.PutUint32(out[12:], 2) // MH_EXECUTE
	le.PutUint32(out[16:], uint32(ncmds))
	le.PutUint32(out[20:], uint32(cmdsSize))
	return out
}

// ExportTrie encodes syms as a dyld export trie: a root node with one edge
// per symbol leading to a terminal leaf.
func ExportTrie(syms []Symbol) []byte {
	syms = sortedSymbols(syms)
	leaves := make([][]byte, len(syms))
	for i, s := range syms {
		var info []byte
		info = appendUleb(info, s.Flags)
		switch {
		case s.Flags&ExportReexport != 0:
			info = appendUleb(info, 1) // dylib ordinal
			info = append(info, 0)     // same name
		case s.Flags&ExportStubAndResolver != 0:
			info = appendUleb(info, s.Value)
			info = appendUleb(info, s.Value)
		default:
			info = appendUleb(info, s.Value)
		}
		leaf := appendUleb(nil, uint64(len(info)))
		leaf = append(leaf, info...)
		leaf = append(leaf, 0) // no children
		leaves[i] = leaf
	}

	// Child offsets are ULEB encoded, so the root size depends on them.
	rootSize := 0
	for {
		root := encodeRoot(syms, leaves, rootSize)
		if len(root) == rootSize {
			break
		}
		rootSize = len(root)
	}
	out := encodeRoot(syms, leaves, rootSize)
	for _, l := range leaves {
		out = append(out, l...)
	}
	return out
}

func encodeRoot(syms []Symbol, leaves [][]byte, rootSize int) []byte {
	root := []byte{0, byte(len(syms))}
	off := rootSize
	for i, s := range syms {
		root = append(root, s.Name...)
		root = append(root, 0)
		root = appendUleb(root, uint64(off))
		off += len(leaves[i])
	}
	return root
}

func appendUleb(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// Fat wraps thin Mach-O slices in a fat header. The cpu type of each slice is
// read from its own header.
func Fat(slices ...[]byte) []byte {
	const align = 0x1000
	be := binary.BigEndian
	hdr := make([]byte, 8+20*len(slices))
	be.PutUint32(hdr[0:], 0xcafebabe)
	be.PutUint32(hdr[4:], uint32(len(slices)))

	var out bytes.Buffer
	out.Write(hdr)
	for i, s := range slices {
		pad(&out, align)
		a := out.Bytes()[8+20*i:]
		be.PutUint32(a[0:], le.Uint32(s[4:]))
		be.PutUint32(a[4:], le.Uint32(s[8:]))
		be.PutUint32(a[8:], uint32(out.Len()))
		be.PutUint32(a[12:], uint32(len(s)))
		be.PutUint32(a[16:], 12) // 2^12
		out.Write(s)
	}
	return out.Bytes()
}
