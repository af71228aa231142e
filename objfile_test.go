// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/ar"
	"github.com/aclements/go-objfile/pod"
)

// buildELF64 assembles a little-endian x86-64 relocatable object with
// a .text section and three symbols: defined, undefined, absolute.
func buildELF64() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, le, v)
		}
	}

	const (
		textOff     = 64
		textSize    = 8
		symtabOff   = textOff + textSize
		nsyms       = 4
		strtabOff   = symtabOff + nsyms*24
		shstrtabOff = strtabOff + 16
		shoff       = 224 // shstrtab end (217) rounded up to 8
	)

	// Ehdr.
	put([4]byte{0x7f, 'E', 'L', 'F'}, uint8(2), uint8(1), uint8(1))
	buf.Write(make([]byte, 9))
	put(uint16(1), uint16(62), uint32(1), // ET_REL, EM_X86_64
		uint64(0), uint64(0), uint64(shoff), uint32(0),
		uint16(64), uint16(0), uint16(0), uint16(64), uint16(5), uint16(4))

	text := make([]byte, textSize)
	copy(text, "code")
	buf.Write(text)

	// Symtab: null, _start, ext, abs.
	put(uint32(0), uint8(0), uint8(0), uint16(0), uint64(0), uint64(0))
	put(uint32(1), uint8(0x12), uint8(0), uint16(1), uint64(0), uint64(textSize))
	put(uint32(8), uint8(0x10), uint8(0), uint16(0), uint64(0), uint64(0))
	put(uint32(12), uint8(0x10), uint8(0), uint16(0xfff1), uint64(0x1000), uint64(0))

	buf.WriteString("\x00_start\x00ext\x00abs\x00") // strtab, 16 bytes
	buf.WriteString("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	buf.Write(make([]byte, shoff-buf.Len()))

	shdr := func(name, typ uint32, flags, addr, off, size uint64, link, info uint32, align, entsize uint64) {
		put(name, typ, flags, addr, off, size, link, info, align, entsize)
	}
	shdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	shdr(1, 1, 0x6, 0, textOff, textSize, 0, 0, 16, 0) // .text: alloc+exec
	shdr(7, 2, 0, 0, symtabOff, nsyms*24, 3, 1, 8, 24) // .symtab
	shdr(15, 3, 0, 0, strtabOff, 16, 0, 0, 1, 0)       // .strtab
	shdr(23, 3, 0, 0, shstrtabOff, 33, 0, 0, 1, 0)     // .shstrtab
	return buf.Bytes()
}

// buildCOFF assembles an amd64 COFF object with one .text section and
// one external symbol.
func buildCOFF() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, le, v)
		}
	}
	const (
		textOff  = 20 + 40
		textSize = 8
		symOff   = textOff + textSize
	)
	put(uint16(0x8664), uint16(1), uint32(0), uint32(symOff), uint32(1), uint16(0), uint16(0))
	var name [8]byte
	copy(name[:], ".text")
	put(name, uint32(textSize), uint32(0), uint32(textSize), uint32(textOff),
		uint32(0), uint32(0), uint16(0), uint16(0), uint32(0x60000020))
	text := make([]byte, textSize)
	copy(text, "coff")
	buf.Write(text)
	copy(name[:], "_start")
	put(name, uint32(0), int16(1), uint16(0x20), uint8(2), uint8(0))
	put(uint32(4)) // empty string table
	return buf.Bytes()
}

// buildMachO64 assembles a little-endian arm64 object with one
// __TEXT,__text section and one external symbol.
func buildMachO64() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, le, v)
		}
	}
	name16 := func(s string) (out [16]byte) {
		copy(out[:], s)
		return
	}
	const (
		sizeofcmds = 72 + 80 + 24
		textOff    = 32 + sizeofcmds
		textSize   = 8
		symOff     = textOff + textSize
		strOff     = symOff + 16
	)
	strtab := []byte("\x00_start\x00")

	put(uint32(0xfeedfacf), uint32(12|0x01000000), uint32(0), uint32(1),
		uint32(2), uint32(sizeofcmds), uint32(0), uint32(0))
	put(uint32(0x19), uint32(72+80), name16(""),
		uint64(0), uint64(textSize), uint64(textOff), uint64(textSize),
		uint32(7), uint32(5), uint32(1), uint32(0))
	put(name16("__text"), name16("__TEXT"),
		uint64(0), uint64(textSize), uint32(textOff), uint32(2),
		uint32(0), uint32(0), uint32(0x80000400), uint32(0), uint32(0), uint32(0))
	put(uint32(0x2), uint32(24), uint32(symOff), uint32(1), uint32(strOff), uint32(len(strtab)))

	text := make([]byte, textSize)
	copy(text, "macho")
	buf.Write(text)
	put(uint32(1), uint8(0xf), uint8(1), uint16(0), uint64(0)) // _start: NSect|NExt
	buf.Write(strtab)
	return buf.Bytes()
}

// buildXCOFF32 assembles a big-endian XCOFF32 object with one .text
// section.
func buildXCOFF32() []byte {
	var buf bytes.Buffer
	be := binary.BigEndian
	put := func(vs ...interface{}) {
		for _, v := range vs {
			binary.Write(&buf, be, v)
		}
	}
	const (
		textOff  = 20 + 40
		textSize = 8
	)
	put(uint16(0x01DF), uint16(1), uint32(0), uint32(0), uint32(0), uint16(0), uint16(0))
	var name [8]byte
	copy(name[:], ".text")
	put(name, uint32(0x100), uint32(0x100), uint32(textSize), uint32(textOff),
		uint32(0), uint32(0), uint16(0), uint16(0), uint32(0x20))
	text := make([]byte, textSize)
	copy(text, "xcoff")
	buf.Write(text)
	return buf.Bytes()
}

func TestOpenELF(t *testing.T) {
	f, err := objfile.Open(buildELF64(), nil)
	require.NoError(t, err)

	require.Equal(t, objfile.FormatELF64, f.Format())
	require.Equal(t, objfile.MachineX86_64, f.Machine())
	require.Equal(t, pod.Little, f.Endian())
	require.True(t, f.Is64())
	require.Equal(t, 5, f.NumSections())

	s, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, objfile.SectionIndex(1), s.Index)
	require.Equal(t, objfile.SectionText, s.Kind)

	data, err := f.SectionData(s.Index)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("code")))

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 4)

	start := syms[1]
	require.Equal(t, "_start", start.Name)
	require.Equal(t, objfile.SectionIndex(1), start.Section)
	require.Equal(t, objfile.SymFunc, start.Kind)
	require.Equal(t, objfile.BindGlobal, start.Binding)

	require.True(t, syms[2].IsUndefined())
	require.True(t, syms[3].IsAbsolute())
	require.Equal(t, uint64(0x1000), syms[3].Value)

	// Sentinels never resolve to sections.
	_, err = f.Section(syms[2].Section)
	var iie *objfile.InvalidIndexError
	require.ErrorAs(t, err, &iie)
	require.Equal(t, "section", iie.Kind)

	got, err := f.Symbol(objfile.SymbolIndex(1))
	require.NoError(t, err)
	require.Equal(t, "_start", got.Name)
	_, err = f.Symbol(objfile.SymbolIndex(99))
	require.ErrorAs(t, err, &iie)
}

func TestOpenCOFF(t *testing.T) {
	f, err := objfile.Open(buildCOFF(), nil)
	require.NoError(t, err)

	require.Equal(t, objfile.FormatCOFF, f.Format())
	require.Equal(t, objfile.MachineX86_64, f.Machine())
	require.False(t, f.Is64())

	s, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, objfile.SectionText, s.Kind)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, "_start", syms[0].Name)
	require.Equal(t, objfile.SymFunc, syms[0].Kind)
	require.Equal(t, objfile.BindGlobal, syms[0].Binding)
}

func TestOpenMachO(t *testing.T) {
	f, err := objfile.Open(buildMachO64(), nil)
	require.NoError(t, err)

	require.Equal(t, objfile.FormatMachO64, f.Format())
	require.Equal(t, objfile.MachineArm64, f.Machine())

	s, ok := f.SectionByName("__text")
	require.True(t, ok)
	require.Equal(t, "__TEXT", s.Segment)
	require.Equal(t, objfile.SectionText, s.Kind)
	require.Equal(t, uint64(4), s.Align)

	segs, err := f.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, "_start", syms[0].Name)
	require.Equal(t, objfile.SectionIndex(1), syms[0].Section)
}

func TestOpenXCOFF(t *testing.T) {
	f, err := objfile.Open(buildXCOFF32(), nil)
	require.NoError(t, err)

	require.Equal(t, objfile.FormatXCOFF32, f.Format())
	require.Equal(t, objfile.MachinePpc, f.Machine())
	require.Equal(t, pod.Big, f.Endian())

	s, ok := f.SectionByName(".text")
	require.True(t, ok)
	require.Equal(t, objfile.SectionText, s.Kind)
	data, err := f.SectionData(s.Index)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("xcoff")))
}

func TestOpenUnknown(t *testing.T) {
	_, err := objfile.Open([]byte("#!/bin/sh\necho hello\n"), nil)
	require.ErrorIs(t, err, objfile.ErrNotObject)
	_, err = objfile.Open(nil, nil)
	require.ErrorIs(t, err, objfile.ErrNotObject)
}

func TestFormatSubset(t *testing.T) {
	elfData := buildELF64()

	_, err := objfile.Open(elfData, &objfile.Options{Formats: []objfile.Format{objfile.FormatELF32}})
	require.ErrorIs(t, err, objfile.ErrNotObject)

	f, err := objfile.Open(elfData, &objfile.Options{Formats: []objfile.Format{objfile.FormatELF64}})
	require.NoError(t, err)
	require.Equal(t, objfile.FormatELF64, f.Format())

	// COFF has no magic; a filter that excludes it must not claim
	// arbitrary bytes.
	coffData := buildCOFF()
	_, err = objfile.Open(coffData, &objfile.Options{Formats: []objfile.Format{objfile.FormatELF64}})
	require.ErrorIs(t, err, objfile.ErrNotObject)
	f, err = objfile.Open(coffData, nil)
	require.NoError(t, err)
	require.Equal(t, objfile.FormatCOFF, f.Format())
}

func TestOpenFat(t *testing.T) {
	member := buildMachO64()
	var buf bytes.Buffer
	be := binary.BigEndian
	binary.Write(&buf, be, uint32(0xcafebabe))
	binary.Write(&buf, be, uint32(1))
	binary.Write(&buf, be, uint32(12|0x01000000))
	binary.Write(&buf, be, uint32(0))
	binary.Write(&buf, be, uint32(8+20))
	binary.Write(&buf, be, uint32(len(member)))
	binary.Write(&buf, be, uint32(0))
	buf.Write(member)

	_, err := objfile.Open(buf.Bytes(), nil)
	require.ErrorIs(t, err, objfile.ErrFatFile)

	members, err := objfile.OpenFat(buf.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, objfile.MachineArm64, members[0].Machine)
	require.Equal(t, objfile.FormatMachO64, members[0].File.Format())
}

func TestOpenArchive(t *testing.T) {
	raw, err := ar.Write([]ar.Member{
		{Name: "one.o", Data: buildELF64()},
		{Name: "two.o", Data: buildCOFF()},
	})
	require.NoError(t, err)

	_, err = objfile.Open(raw, nil)
	require.ErrorIs(t, err, objfile.ErrArchive)

	members, err := objfile.OpenArchive(raw)
	require.NoError(t, err)
	require.Len(t, members, 2)

	f, err := objfile.Open(members[0].Data, nil)
	require.NoError(t, err)
	require.Equal(t, objfile.FormatELF64, f.Format())

	f, err = objfile.Open(members[1].Data, nil)
	require.NoError(t, err)
	require.Equal(t, objfile.FormatCOFF, f.Format())
}

func TestSymbolTable(t *testing.T) {
	syms := []objfile.Symbol{
		{Name: "b", Value: 0x2000, Size: 0x100, Section: 1},
		{Name: "a", Value: 0x1000, Size: 0x100, Section: 1},
		{Name: "und", Section: objfile.SectionUndefined},
		{Name: "stab", Value: 0x9000, Debug: true, Section: 1},
	}
	tab := objfile.NewSymbolTable(syms)

	require.Len(t, tab.Syms(), 2)
	require.Equal(t, "a", tab.Syms()[0].Name)

	s, ok := tab.Name("b")
	require.True(t, ok)
	require.Equal(t, uint64(0x2000), s.Value)
	_, ok = tab.Name("und")
	require.False(t, ok)

	s, ok = tab.Addr(0x1080)
	require.True(t, ok)
	require.Equal(t, "a", s.Name)
	_, ok = tab.Addr(0x3000)
	require.False(t, ok)

	name, base := tab.SymName(0x2001)
	require.Equal(t, "b", name)
	require.Equal(t, uint64(0x2000), base)
}

func FuzzOpen(f *testing.F) {
	f.Add(buildELF64())
	f.Add(buildCOFF())
	f.Add(buildMachO64())
	f.Add(buildXCOFF32())
	f.Fuzz(func(t *testing.T, data []byte) {
		file, err := objfile.Open(data, nil)
		if err != nil {
			return
		}
		file.Symbols()
		file.Segments()
		file.ComdatGroups()
		n := file.NumSections()
		if n > 64 {
			n = 64
		}
		for i := 0; i < n; i++ {
			file.SectionData(objfile.SectionIndex(i))
			file.Relocations(objfile.SectionIndex(i))
		}
	})
}
