// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aclements/go-objfile/pod"
)

// buildTestMachO assembles a little-endian 64-bit MH_OBJECT with one
// __TEXT,__text section, one relocation, and three symbols.
func buildTestMachO() []byte {
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
		sizeofcmds = segCmdSize64 + sectSize64 + symtabCmdSize
		textOff    = hdrSize64 + sizeofcmds
		textSize   = 16
		relOff     = textOff + textSize
		nrel       = 1
		symOff     = relOff + nrel*relocInfoSize
		nsyms      = 3
		strOff     = symOff + nsyms*nlistSize64
	)
	strtab := []byte("\x00_start\x00_ext\x00_abs\x00")

	// mach_header_64
	put(MagicMachO64, uint32(CPUAmd64), uint32(3), uint32(TypeObj),
		uint32(2), uint32(sizeofcmds), uint32(0), uint32(0))

	// LC_SEGMENT_64 with one section.
	put(uint32(LcSegment64), uint32(segCmdSize64+sectSize64),
		name16(""),                  // unnamed segment, as produced for objects
		uint64(0), uint64(textSize), // vmaddr, vmsize
		uint64(textOff), uint64(textSize), // fileoff, filesize
		uint32(7), uint32(5), // maxprot, initprot
		uint32(1), uint32(0)) // nsects, flags
	put(name16("__text"), name16("__TEXT"),
		uint64(0), uint64(textSize), // addr, size
		uint32(textOff), uint32(4), // offset, align (2^4)
		uint32(relOff), uint32(nrel), // reloff, nreloc
		SAttrPureInstructions|SAttrSomeInstructions,
		uint32(0), uint32(0), uint32(0)) // reserved

	// LC_SYMTAB
	put(uint32(LcSymtab), uint32(symtabCmdSize),
		uint32(symOff), uint32(nsyms),
		uint32(strOff), uint32(len(strtab)))

	// __text payload.
	text := make([]byte, textSize)
	copy(text, "machocode")
	buf.Write(text)

	// One external relocation at offset 8 against symbol 0, and the
	// packed info word: symbolnum | pcrel<<24 | length<<25 | extern<<27 | type<<28.
	put(uint32(8), uint32(0)|1<<24|3<<25|1<<27|2<<28)

	// nlist_64 entries: _start (defined in section 1), _ext
	// (undefined), _abs (absolute).
	put(uint32(1), NSect|NExt, uint8(1), uint16(0), uint64(0))      // _start
	put(uint32(8), NUndf|NExt, uint8(NoSect), uint16(0), uint64(0)) // _ext
	put(uint32(13), NAbs, uint8(NoSect), uint16(0), uint64(0xbeef)) // _abs

	buf.Write(strtab)
	return buf.Bytes()
}

func TestFile(t *testing.T) {
	f, err := NewFile(buildTestMachO(), 0)
	require.NoError(t, err)

	require.Equal(t, pod.Little, f.Endian)
	require.True(t, f.Is64())
	require.Equal(t, CPUAmd64, f.CPU)
	require.Equal(t, TypeObj, f.Type)

	segs := f.Segments()
	require.Len(t, segs, 1)
	require.Equal(t, uint64(16), segs[0].Filesz)

	sects := f.Sections()
	require.Len(t, sects, 1)
	require.Equal(t, "__text", sects[0].Name)
	require.Equal(t, "__TEXT", sects[0].Segment)
	require.Equal(t, uint32(4), sects[0].Align)

	s, ord, ok := f.SectionByName("__text")
	require.True(t, ok)
	require.Equal(t, 1, ord)
	require.Equal(t, uint64(16), s.Size)

	data, err := f.Data(1)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("machocode")))
}

func TestSymbols(t *testing.T) {
	f, err := NewFile(buildTestMachO(), 0)
	require.NoError(t, err)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 3)

	require.Equal(t, "_start", syms[0].Name)
	require.Equal(t, uint8(1), syms[0].Sect)
	require.True(t, syms[0].IsExternal())
	require.False(t, syms[0].IsUndefined())

	require.Equal(t, "_ext", syms[1].Name)
	require.True(t, syms[1].IsUndefined())

	require.Equal(t, "_abs", syms[2].Name)
	require.True(t, syms[2].IsAbsolute())
	require.Equal(t, uint64(0xbeef), syms[2].Value)
}

func TestRelocations(t *testing.T) {
	f, err := NewFile(buildTestMachO(), 0)
	require.NoError(t, err)

	relocs, err := f.Relocations(1)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	r := relocs[0]
	require.Equal(t, uint32(8), r.Addr)
	require.Equal(t, uint32(0), r.Symbolnum)
	require.True(t, r.Pcrel)
	require.Equal(t, uint8(3), r.Len)
	require.True(t, r.Extern)
	require.Equal(t, uint8(2), r.Type)
	require.False(t, r.Scattered)

	_, err = f.Relocations(2)
	require.Error(t, err)
}

func TestFat(t *testing.T) {
	member := buildTestMachO()
	var buf bytes.Buffer
	be := binary.BigEndian
	binary.Write(&buf, be, MagicFat)
	binary.Write(&buf, be, uint32(1))
	const memberOff = 8 + 20
	binary.Write(&buf, be, uint32(CPUAmd64))
	binary.Write(&buf, be, uint32(3))
	binary.Write(&buf, be, uint32(memberOff))
	binary.Write(&buf, be, uint32(len(member)))
	binary.Write(&buf, be, uint32(0))
	buf.Write(member)

	arches, err := ReadFat(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, arches, 1)
	require.Equal(t, CPUAmd64, arches[0].CPU)

	f, err := NewFile(arches[0].Data, 0)
	require.NoError(t, err)
	_, _, ok := f.SectionByName("__text")
	require.True(t, ok)

	_, err = ReadFat(member)
	require.ErrorIs(t, err, ErrNotFat)
}

func TestTruncated(t *testing.T) {
	whole := buildTestMachO()
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

func TestCorrupt(t *testing.T) {
	whole := buildTestMachO()

	mutate := func(mut func([]byte)) error {
		b := append([]byte(nil), whole...)
		mut(b)
		_, err := NewFile(b, 0)
		return err
	}

	// Load command size of zero would loop or read wild.
	require.Error(t, mutate(func(b []byte) {
		binary.LittleEndian.PutUint32(b[hdrSize64+4:], 0)
	}))
	// sizeofcmds past EOF.
	require.Error(t, mutate(func(b []byte) {
		binary.LittleEndian.PutUint32(b[20:], 1<<30)
	}))
	// Symbol count past EOF.
	require.Error(t, mutate(func(b []byte) {
		symtabCmd := hdrSize64 + segCmdSize64 + sectSize64
		binary.LittleEndian.PutUint32(b[symtabCmd+12:], 1<<28)
	}))
	// Not Mach-O at all.
	_, err := NewFile([]byte("plain text"), 0)
	require.ErrorIs(t, err, ErrNotMachO)
}

func FuzzNewFile(f *testing.F) {
	f.Add(buildTestMachO())
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
