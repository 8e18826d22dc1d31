package testimage

import "bytes"

const (
	PEImageBase  = 0x140000000
	PETextRVA    = 0x1000
	PETextOffset = 0x200
	PEEntry      = PEImageBase + PETextRVA

	peHeaderOffset = 0x80
)

// PE describes a PE32+ AMD64 image with one .text section holding the code at
// its start and, when Exports is set, an export directory after it.
type PE struct {
	Code []byte
	// Exports values are RVAs. An empty Name produces an ordinal-only export.
	Exports []Symbol
}

// Bytes serializes the image.
func (p PE) Bytes() []byte {
	var sect bytes.Buffer
	sect.Write(p.Code)
	var exportRVA, exportSize int
	if len(p.Exports) > 0 {
		pad(&sect, 16)
		exportRVA = PETextRVA + sect.Len()
		exportSize = writeExportDirectory(&sect, p.Exports, exportRVA)
	}
	rawSize := alignUp(sect.Len(), 0x200)
	if rawSize == 0 {
		rawSize = 0x200
	}

	out := make([]byte, PETextOffset+rawSize)
	copy(out[PETextOffset:], sect.Bytes())

	out[0], out[1] = 'M', 'Z'
	le.PutUint32(out[0x3c:], peHeaderOffset)

	h := out[peHeaderOffset:]
	copy(h, "PE\x00\x00")
	fh := h[4:24]
	le.PutUint16(fh[0:], 0x8664) // IMAGE_FILE_MACHINE_AMD64
	le.PutUint16(fh[2:], 1)
	le.PutUint16(fh[16:], 240)
	le.PutUint16(fh[18:], 0x0022)

	oh := h[24 : 24+240]
	le.PutUint16(oh[0:], 0x20b)
	le.PutUint32(oh[4:], uint32(rawSize))
	le.PutUint32(oh[16:], PETextRVA)
	le.PutUint32(oh[20:], PETextRVA)
	le.PutUint64(oh[24:], PEImageBase)
	le.PutUint32(oh[32:], 0x1000)
	le.PutUint32(oh[36:], 0x200)
	le.PutUint16(oh[40:], 6)
	le.PutUint16(oh[48:], 6)
	le.PutUint32(oh[56:], uint32(PETextRVA+alignUp(rawSize, 0x1000)))
	le.PutUint32(oh[60:], PETextOffset)
	le.PutUint16(oh[68:], 3) // console
	le.PutUint64(oh[72:], 0x100000)
	le.PutUint64(oh[80:], 0x1000)
	le.PutUint64(oh[88:], 0x100000)
	le.PutUint64(oh[96:], 0x1000)
	le.PutUint32(oh[108:], 16)
	le.PutUint32(oh[112:], uint32(exportRVA))
	le.PutUint32(oh[116:], uint32(exportSize))

	sh := h[24+240 : 24+240+40]
	copy(sh, ".text")
	le.PutUint32(sh[8:], uint32(rawSize))
	le.PutUint32(sh[12:], PETextRVA)
	le.PutUint32(sh[16:], uint32(rawSize))
	le.PutUint32(sh[20:], PETextOffset)
	le.PutUint32(sh[36:], 0x60000020) // code | execute | read
	return out
}

// writeExportDirectory appends an IMAGE_EXPORT_DIRECTORY for syms located at
// rva and returns its total size.
func writeExportDirectory(buf *bytes.Buffer, syms []Symbol, rva int) int {
	start := buf.Len()
	n := len(syms)
	var named []int
	for i, s := range syms {
		if s.Name != "" {
			named = append(named, i)
		}
	}

	const dirSize = 40
	funcsOff := dirSize
	namesOff := funcsOff + 4*n
	ordsOff := namesOff + 4*len(named)
	stringsOff := ordsOff + 2*len(named)

	var strs bytes.Buffer
	dllName := stringsOff + strs.Len()
	strs.WriteString("image.exe\x00")
	nameRVAs := make([]int, len(named))
	for i, idx := range named {
		nameRVAs[i] = stringsOff + strs.Len()
		strs.WriteString(syms[idx].Name)
		strs.WriteByte(0)
	}

	d := make([]byte, stringsOff+strs.Len())
	le.PutUint32(d[12:], uint32(rva+dllName))
	le.PutUint32(d[16:], 1) // ordinal base
	le.PutUint32(d[20:], uint32(n))
	le.PutUint32(d[24:], uint32(len(named)))
	le.PutUint32(d[28:], uint32(rva+funcsOff))
	le.PutUint32(d[32:], uint32(rva+namesOff))
	le.PutUint32(d[36:], uint32(rva+ordsOff))
	for i, s := range syms {
		le.PutUint32(d[funcsOff+4*i:], uint32(s.Value))
	}
	for i, idx := range named {
		le.PutUint32(d[namesOff+4*i:], uint32(rva+nameRVAs[i]))
		le.PutUint16(d[ordsOff+2*i:], uint16(idx))
	}
	copy(d[stringsOff:], strs.Bytes())

	buf.Write(d)
	return buf.Len() - start
}
