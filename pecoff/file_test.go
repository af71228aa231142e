// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pecoff

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestCOFF assembles an amd64 COFF object with a COMDAT .text
// section, a long-named debug section, one relocation, and a symbol
// table exercising inline names, string-table names, aux records, and
// the undefined/absolute sentinels.
func buildTestCOFF() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, le, v)
		}
	}
	name8 := func(s string) (out [8]byte) {
		copy(out[:], s)
		return
	}

	const (
		nsections = 2
		textOff   = coffHeaderSize + nsections*sectionHeaderSize
		textSize  = 16
		relOff    = textOff + textSize
		dbgOff    = relOff + relocSize
		dbgSize   = 8
		symOff    = dbgOff + dbgSize
		nsyms     = 6 // .text + aux, _start, ext, abs, .debug_long
	)
	// String table: length word, then the long section name and a
	// long symbol name.
	var strtab bytes.Buffer
	binary.Write(&strtab, le, uint32(0)) // patched below
	longSection := ".debug_verylongname"
	longSectionOff := uint32(4)
	strtab.WriteString(longSection)
	strtab.WriteByte(0)
	longSym := "an_unreasonably_long_symbol_name"
	longSymOff := uint32(strtab.Len())
	strtab.WriteString(longSym)
	strtab.WriteByte(0)
	strBytes := strtab.Bytes()
	le.PutUint32(strBytes, uint32(len(strBytes)))

	// COFF file header.
	put(uint16(IMAGE_FILE_MACHINE_AMD64), uint16(nsections), uint32(0),
		uint32(symOff), uint32(nsyms), uint16(0), uint16(0))

	// Section 1: .text, COMDAT.
	put(name8(".text"), uint32(textSize), uint32(0), uint32(textSize), uint32(textOff),
		uint32(relOff), uint32(0), uint16(1), uint16(0),
		IMAGE_SCN_CNT_CODE|IMAGE_SCN_MEM_EXECUTE|IMAGE_SCN_MEM_READ|IMAGE_SCN_LNK_COMDAT)
	// Section 2: long-named debug section.
	put(name8("/4"), uint32(dbgSize), uint32(0), uint32(dbgSize), uint32(dbgOff),
		uint32(0), uint32(0), uint16(0), uint16(0),
		IMAGE_SCN_CNT_INITIALIZED_DATA|IMAGE_SCN_MEM_DISCARDABLE)

	// Section payloads.
	text := make([]byte, textSize)
	copy(text, "coffcode")
	buf.Write(text)
	put(uint32(4), uint32(2), uint16(4)) // reloc: addr 4, raw sym 2, type 4
	buf.Write(make([]byte, dbgSize))

	// Symbol table (raw indices in comments).
	// 0: .text section definition with aux.
	put(name8(".text"), uint32(0), int16(1), uint16(0), IMAGE_SYM_CLASS_STATIC, uint8(1))
	// 1: aux section definition: length, nrelocs, nlines, checksum, number, selection.
	put(uint32(textSize), uint16(1), uint16(0), uint32(0xdeadbeef), uint16(0), IMAGE_COMDAT_SELECT_ANY,
		uint8(0), uint8(0), uint8(0)) // padding to 18 bytes
	// 2: _start, defined in section 1.
	put(name8("_start"), uint32(0), int16(1), uint16(0x20), IMAGE_SYM_CLASS_EXTERNAL, uint8(0))
	// 3: undefined external with a long name.
	put(uint32(0), longSymOff, uint32(0), IMAGE_SYM_UNDEFINED, uint16(0), IMAGE_SYM_CLASS_EXTERNAL, uint8(0))
	// 4: absolute.
	put(name8("abs"), uint32(0x7000), IMAGE_SYM_ABSOLUTE, uint16(0), IMAGE_SYM_CLASS_STATIC, uint8(0))
	// 5: the long-named section's definition, no aux.
	put(uint32(0), longSectionOff, uint32(0), int16(2), uint16(0), IMAGE_SYM_CLASS_STATIC, uint8(0))

	buf.Write(strBytes)
	return buf.Bytes()
}

func TestCOFF(t *testing.T) {
	f, err := NewFile(buildTestCOFF(), 0)
	require.NoError(t, err)

	require.False(t, f.IsPE)
	require.Equal(t, IMAGE_FILE_MACHINE_AMD64, f.Machine)

	sections := f.Sections()
	require.Len(t, sections, 2)
	require.Equal(t, ".text", sections[0].Name)
	require.Equal(t, ".debug_verylongname", sections[1].Name)

	sh, n, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.NotZero(t, sh.Characteristics&IMAGE_SCN_LNK_COMDAT)

	data, err := f.Data(1)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("coffcode")))
}

func TestCOFFSymbols(t *testing.T) {
	f, err := NewFile(buildTestCOFF(), 0)
	require.NoError(t, err)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 5) // aux folded into its owner

	require.Equal(t, ".text", syms[0].Name)
	require.Equal(t, uint32(0), syms[0].Index)
	require.Equal(t, IMAGE_COMDAT_SELECT_ANY, syms[0].AuxSelection)

	start := syms[1]
	require.Equal(t, "_start", start.Name)
	require.Equal(t, uint32(2), start.Index)
	require.Equal(t, int16(1), start.SectionNumber)

	ext := syms[2]
	require.Equal(t, "an_unreasonably_long_symbol_name", ext.Name)
	require.True(t, ext.IsUndefined())

	abs := syms[3]
	require.Equal(t, "abs", abs.Name)
	require.True(t, abs.IsAbsolute())
	require.Equal(t, uint32(0x7000), abs.Value)

	// Raw-index lookup resolves the reference form used by relocs.
	s, err := f.SymbolByRawIndex(2)
	require.NoError(t, err)
	require.Equal(t, "_start", s.Name)
	_, err = f.SymbolByRawIndex(1) // aux record, not a primary symbol
	require.Error(t, err)
}

func TestCOFFRelocations(t *testing.T) {
	f, err := NewFile(buildTestCOFF(), 0)
	require.NoError(t, err)

	relocs, err := f.Relocations(1)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	require.Equal(t, uint32(4), relocs[0].VirtualAddress)
	require.Equal(t, uint32(2), relocs[0].SymbolTableIndex)
	require.Equal(t, uint16(4), relocs[0].Type)

	relocs, err = f.Relocations(2)
	require.NoError(t, err)
	require.Empty(t, relocs)
}

func TestCOFFComdats(t *testing.T) {
	f, err := NewFile(buildTestCOFF(), 0)
	require.NoError(t, err)

	comdats, err := f.Comdats()
	require.NoError(t, err)
	require.Len(t, comdats, 1)
	require.Equal(t, 1, comdats[0].SectionNumber)
	require.Equal(t, IMAGE_COMDAT_SELECT_ANY, comdats[0].Selection)
	require.Equal(t, "_start", comdats[0].Name)
}

// buildTestPE wraps a minimal PE32+ image around one .text section.
func buildTestPE() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, le, v)
		}
	}

	// MS-DOS stub: "MZ", e_lfanew at 0x3c.
	stub := make([]byte, 0x40)
	stub[0], stub[1] = 'M', 'Z'
	le.PutUint32(stub[0x3c:], 0x40)
	buf.Write(stub)

	buf.WriteString("PE\x00\x00")

	const optSize = 112 // PE32+ fixed fields only, no data directories
	const textOff = 0x40 + 4 + coffHeaderSize + optSize + sectionHeaderSize
	put(uint16(IMAGE_FILE_MACHINE_AMD64), uint16(1), uint32(0),
		uint32(0), uint32(0), uint16(optSize), uint16(0x22))

	opt := make([]byte, optSize)
	le.PutUint16(opt[0:], OptionalHeaderMagicPE32Plus)
	le.PutUint32(opt[16:], 0x1000)      // AddressOfEntryPoint
	le.PutUint64(opt[24:], 0x140000000) // ImageBase
	buf.Write(opt)

	var name [8]byte
	copy(name[:], ".text")
	put(name, uint32(16), uint32(0x1000), uint32(16), uint32(textOff),
		uint32(0), uint32(0), uint16(0), uint16(0),
		IMAGE_SCN_CNT_CODE|IMAGE_SCN_MEM_EXECUTE|IMAGE_SCN_MEM_READ)

	text := make([]byte, 16)
	copy(text, "pecode")
	buf.Write(text)
	return buf.Bytes()
}

func TestPE(t *testing.T) {
	f, err := NewFile(buildTestPE(), 0)
	require.NoError(t, err)

	require.True(t, f.IsPE)
	require.True(t, f.PE32Plus)
	require.Equal(t, uint64(0x140000000), f.ImageBase)
	require.Equal(t, uint32(0x1000), f.EntryPoint)

	sh, _, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, uint32(0x1000), sh.VirtualAddress)
	data, err := f.Data(1)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("pecode")))
}

func TestNotPE(t *testing.T) {
	_, err := NewFile([]byte("GIF89a definitely not an object"), 0)
	require.ErrorIs(t, err, ErrNotPE)
}

func TestTruncated(t *testing.T) {
	for _, whole := range [][]byte{buildTestCOFF(), buildTestPE()} {
		for n := 0; n <= len(whole); n++ {
			f, err := NewFile(whole[:n], 0)
			if err != nil {
				continue
			}
			f.Symbols()
			f.Comdats()
			for i := 1; i <= len(f.Sections()); i++ {
				f.Data(i)
				f.Relocations(i)
			}
		}
	}
}

func FuzzNewFile(f *testing.F) {
	f.Add(buildTestCOFF())
	f.Add(buildTestPE())
	f.Fuzz(func(t *testing.T, data []byte) {
		file, err := NewFile(data, 0)
		if err != nil {
			return
		}
		file.Symbols()
		file.Comdats()
		for i := 1; i <= len(file.Sections()) && i <= 64; i++ {
			file.Data(i)
			file.Relocations(i)
		}
	})
}
