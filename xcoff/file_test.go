// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcoff

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func name8(s string) (out [8]byte) {
	copy(out[:], s)
	return
}

// buildTestXCOFF32 assembles a 32-bit XCOFF object with .text and
// .data sections, one relocation, and a symbol table of csect
// definitions, a label, and an undefined external with a long name.
func buildTestXCOFF32() []byte {
	var buf bytes.Buffer
	be := binary.BigEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, be, v)
		}
	}

	const (
		nsections = 2
		textOff   = fileHeaderSize32 + nsections*sectHeaderSize32
		textSize  = 16
		relOff    = textOff + textSize
		dataOff   = relOff + relocSize32
		dataSize  = 8
		symOff    = dataOff + dataSize
		nsyms     = 6 // three primaries, each with one csect aux
	)
	var strtab bytes.Buffer
	binary.Write(&strtab, be, uint32(0)) // patched below
	longSym := "a_rather_long_external_name"
	longSymOff := uint32(4)
	strtab.WriteString(longSym)
	strtab.WriteByte(0)
	strBytes := strtab.Bytes()
	be.PutUint32(strBytes, uint32(len(strBytes)))

	// File header.
	put(Magic32, uint16(nsections), uint32(0),
		uint32(symOff), uint32(nsyms), uint16(0), uint16(0))

	// Section 1: .text.
	put(name8(".text"), uint32(0x100), uint32(0x100), uint32(textSize), uint32(textOff),
		uint32(relOff), uint32(0), uint16(1), uint16(0), STYP_TEXT)
	// Section 2: .data.
	put(name8(".data"), uint32(0x200), uint32(0x200), uint32(dataSize), uint32(dataOff),
		uint32(0), uint32(0), uint16(0), uint16(0), STYP_DATA)

	text := make([]byte, textSize)
	copy(text, "xcoffcode")
	buf.Write(text)
	put(uint32(4), uint32(2), uint8(0x1f), R_POS) // reloc against raw sym 2
	buf.Write(make([]byte, dataSize))

	// Symbol table (raw indices in comments).
	// 0: .text csect definition.
	put(name8(".text"), uint32(0x100), int16(1), uint16(0), C_HIDEXT, uint8(1))
	// 1: its csect aux: scnlen, parmhash, snhash, smtyp (align 5, SD), smclas.
	put(uint32(textSize), uint32(0), uint16(0), uint8(5<<3|XTY_SD), XMC_PR, uint32(0), uint16(0))
	// 2: .entry label inside the csect.
	put(name8(".entry"), uint32(0x104), int16(1), uint16(0), C_EXT, uint8(1))
	// 3: its csect aux: scnlen holds the owning csect's raw index.
	put(uint32(0), uint32(0), uint16(0), uint8(XTY_LD), XMC_PR, uint32(0), uint16(0))
	// 4: undefined external with a long name.
	put(uint32(0), longSymOff, uint32(0), N_UNDEF, uint16(0), C_EXT, uint8(1))
	// 5: its csect aux: external reference.
	put(uint32(0), uint32(0), uint16(0), uint8(XTY_ER), XMC_PR, uint32(0), uint16(0))

	buf.Write(strBytes)
	return buf.Bytes()
}

// buildTestXCOFF64 assembles a 64-bit XCOFF object with an auxiliary
// header carrying an entry point and one .text section.
func buildTestXCOFF64() []byte {
	var buf bytes.Buffer
	be := binary.BigEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, be, v)
		}
	}

	const (
		optSize  = auxEntry64Off + 8
		textOff  = fileHeaderSize64 + optSize + sectHeaderSize64
		textSize = 16
		relOff   = textOff + textSize
		symOff   = relOff + relocSize64
		nsyms    = 2
	)
	var strtab bytes.Buffer
	binary.Write(&strtab, be, uint32(0)) // patched below
	nameOff := uint32(4)
	strtab.WriteString(".text")
	strtab.WriteByte(0)
	strBytes := strtab.Bytes()
	be.PutUint32(strBytes, uint32(len(strBytes)))

	// File header: magic, nscns, timdat, symptr, opthdr, flags, nsyms.
	put(Magic64, uint16(1), uint32(0),
		uint64(symOff), uint16(optSize), uint16(0), uint32(nsyms))

	// Aux header: entry point at its fixed offset.
	opt := make([]byte, optSize)
	be.PutUint64(opt[auxEntry64Off:], 0x10000104)
	buf.Write(opt)

	// Section 1: .text.
	put(name8(".text"), uint64(0x10000100), uint64(0x10000100), uint64(textSize),
		uint64(textOff), uint64(relOff), uint64(0),
		uint32(1), uint32(0), STYP_TEXT, uint32(0))

	text := make([]byte, textSize)
	copy(text, "xcoff64")
	buf.Write(text)
	put(uint64(0x10000108), uint32(0), uint8(0x3f), R_POS)

	// Symbol 0: .text csect definition; symbol 1: its csect aux.
	put(uint64(0x10000100), nameOff, int16(1), uint16(0), C_HIDEXT, uint8(1))
	put(uint32(textSize), uint32(0), uint16(0), uint8(5<<3|XTY_SD), XMC_PR,
		uint32(0), uint8(0), uint8(auxCsect64))

	buf.Write(strBytes)
	return buf.Bytes()
}

func TestFile32(t *testing.T) {
	f, err := NewFile(buildTestXCOFF32(), 0)
	require.NoError(t, err)

	require.False(t, f.Is64())
	require.Equal(t, Magic32, f.Magic)
	require.False(t, f.HasEntry)

	sections := f.Sections()
	require.Len(t, sections, 2)
	require.Equal(t, ".text", sections[0].Name)
	require.Equal(t, STYP_TEXT, sections[0].Type())
	require.Equal(t, ".data", sections[1].Name)

	sh, n, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Equal(t, uint64(0x100), sh.VAddr)

	data, err := f.Data(1)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("xcoffcode")))
}

func TestSymbols32(t *testing.T) {
	f, err := NewFile(buildTestXCOFF32(), 0)
	require.NoError(t, err)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 3) // aux folded into owners

	csect := syms[0]
	require.Equal(t, ".text", csect.Name)
	require.Equal(t, uint32(0), csect.Index)
	require.Equal(t, XTY_SD, csect.CsectType)
	require.Equal(t, uint8(5), csect.CsectAlign)
	require.Equal(t, XMC_PR, csect.StorageMap)
	require.Equal(t, uint64(16), csect.SectionLength)
	require.True(t, csect.IsFunction())

	entry := syms[1]
	require.Equal(t, ".entry", entry.Name)
	require.Equal(t, uint32(2), entry.Index)
	require.Equal(t, XTY_LD, entry.CsectType)
	require.Equal(t, uint64(0x104), entry.Value)

	ext := syms[2]
	require.Equal(t, "a_rather_long_external_name", ext.Name)
	require.True(t, ext.IsUndefined())
	require.Equal(t, XTY_ER, ext.CsectType)

	s, err := f.SymbolByRawIndex(2)
	require.NoError(t, err)
	require.Equal(t, ".entry", s.Name)
	_, err = f.SymbolByRawIndex(3) // aux record, not a primary symbol
	require.Error(t, err)
}

func TestRelocations32(t *testing.T) {
	f, err := NewFile(buildTestXCOFF32(), 0)
	require.NoError(t, err)

	relocs, err := f.Relocations(1)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	require.Equal(t, uint64(4), relocs[0].VAddr)
	require.Equal(t, uint32(2), relocs[0].SymbolIndex)
	require.Equal(t, uint8(0x1f), relocs[0].Size)
	require.Equal(t, R_POS, relocs[0].Type)

	relocs, err = f.Relocations(2)
	require.NoError(t, err)
	require.Empty(t, relocs)
}

func TestFile64(t *testing.T) {
	f, err := NewFile(buildTestXCOFF64(), 0)
	require.NoError(t, err)

	require.True(t, f.Is64())
	require.True(t, f.HasEntry)
	require.Equal(t, uint64(0x10000104), f.Entry)

	sh, _, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, uint64(0x10000100), sh.VAddr)
	data, err := f.Data(1)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("xcoff64")))

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, ".text", syms[0].Name)
	require.Equal(t, XTY_SD, syms[0].CsectType)
	require.Equal(t, uint64(16), syms[0].SectionLength)

	relocs, err := f.Relocations(1)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	require.Equal(t, uint64(0x10000108), relocs[0].VAddr)
	require.Equal(t, uint8(0x3f), relocs[0].Size)
}

func TestNotXCOFF(t *testing.T) {
	_, err := NewFile([]byte("plain text, certainly"), 0)
	require.ErrorIs(t, err, ErrNotXCOFF)
	_, err = NewFile(nil, 0)
	require.ErrorIs(t, err, ErrNotXCOFF)
}

func TestTruncated(t *testing.T) {
	for _, whole := range [][]byte{buildTestXCOFF32(), buildTestXCOFF64()} {
		for n := 0; n <= len(whole); n++ {
			f, err := NewFile(whole[:n], 0)
			if err != nil {
				continue
			}
			f.Symbols()
			for i := 1; i <= len(f.Sections()); i++ {
				f.Data(i)
				f.Relocations(i)
			}
		}
	}
}

func FuzzNewFile(f *testing.F) {
	f.Add(buildTestXCOFF32())
	f.Add(buildTestXCOFF64())
	f.Fuzz(func(t *testing.T, data []byte) {
		file, err := NewFile(data, 0)
		if err != nil {
			return
		}
		file.Symbols()
		for i := 1; i <= len(file.Sections()) && i <= 64; i++ {
			file.Data(i)
			file.Relocations(i)
		}
	})
}
