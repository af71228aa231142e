// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macho

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/aclements/go-objfile/pod"
)

// ErrNotMachO reports that the buffer does not start with a Mach-O
// magic number. It is distinct from parse errors so callers can probe
// multiple formats cheaply.
var ErrNotMachO = errors.New("not a Mach-O file")

// Match reports whether data starts with a single-architecture Mach-O
// magic in either byte order.
func Match(data []byte) bool {
	_, _, ok := sniff(data)
	return ok
}

// sniff decodes the magic number: byte order, 64-bitness.
func sniff(data []byte) (e pod.Endian, is64 bool, ok bool) {
	if len(data) < 4 {
		return 0, false, false
	}
	le := binary.LittleEndian.Uint32(data)
	be := binary.BigEndian.Uint32(data)
	switch {
	case le == MagicMachO32:
		return pod.Little, false, true
	case le == MagicMachO64:
		return pod.Little, true, true
	case be == MagicMachO32:
		return pod.Big, false, true
	case be == MagicMachO64:
		return pod.Big, true, true
	}
	return 0, false, false
}

// FileHeader holds the decoded Mach-O header.
type FileHeader struct {
	Endian pod.Endian
	CPU    CPU
	SubCPU uint32
	Type   FileType
	Flags  uint32
}

// A Segment is one decoded LC_SEGMENT/LC_SEGMENT_64 command.
type Segment struct {
	Name     string
	Addr     uint64
	Memsz    uint64
	Offset   uint64
	Filesz   uint64
	Maxprot  uint32
	Initprot uint32
	Flags    uint32
}

// A Section is one decoded section header from a segment command.
// Sections are numbered from 1 in command order, matching the n_sect
// ordinals used by symbols and the section ordinals in relocations.
type Section struct {
	Name    string
	Segment string
	Addr    uint64
	Size    uint64
	Offset  uint32
	Align   uint32 // log2
	Reloff  uint32
	Nreloc  uint32
	Flags   uint32
}

// A Sym is one decoded nlist entry.
type Sym struct {
	Name  string
	Type  uint8
	Sect  uint8 // 1-based section ordinal; NoSect if none
	Desc  uint16
	Value uint64
}

// IsUndefined reports whether the symbol is undefined.
func (s *Sym) IsUndefined() bool { return s.Type&NType == NUndf && s.Sect == NoSect }

// IsAbsolute reports whether the symbol's value is an absolute address.
func (s *Sym) IsAbsolute() bool { return s.Type&NType == NAbs }

// IsExternal reports whether the symbol is visible outside the object.
func (s *Sym) IsExternal() bool { return s.Type&NExt != 0 }

// IsStab reports whether the entry is a debugging (stab) symbol.
func (s *Sym) IsStab() bool { return s.Type&NStab != 0 }

// A Reloc is one decoded relocation_info entry. For non-scattered,
// non-external relocations Symbolnum is a 1-based section ordinal
// rather than a symbol index, per the format.
type Reloc struct {
	Addr      uint32
	Symbolnum uint32 // symbol index (Extern) or section ordinal
	Pcrel     bool
	Len       uint8 // log2 of the relocated field width
	Extern    bool
	Type      uint8
	Scattered bool
	ScatValue uint32 // target value for scattered relocations
}

// A File is a parsed single-architecture Mach-O file. It borrows the
// buffer passed to NewFile and is safe for concurrent readers.
type File struct {
	FileHeader

	view pod.View
	is64 bool

	segments []Segment
	sections []Section

	symOff, nsyms   uint64
	strOff, strSize uint64
	entry           uint64
	hasEntry        bool

	symsOnce sync.Once
	syms     []Sym
	symsErr  error
}

// NewFile parses the Mach-O file in data. Load commands are walked
// and validated here; the symbol and relocation tables they name are
// decoded on demand.
func NewFile(data []byte, mode pod.Mode) (*File, error) {
	e, is64, ok := sniff(data)
	if !ok {
		return nil, ErrNotMachO
	}
	f := &File{is64: is64}
	f.Endian = e
	f.view = pod.NewViewMode(data, e, mode)

	hdrSize := uint64(hdrSize32)
	if is64 {
		hdrSize = hdrSize64
	}
	hv, err := f.view.Struct(0, hdrSize, 4)
	if err != nil {
		return nil, fmt.Errorf("macho: header: %w", err)
	}
	c := pod.NewCursor(hv)
	c.Skip(4) // magic
	cpu, _ := c.U32()
	sub, _ := c.U32()
	typ, _ := c.U32()
	ncmds, _ := c.U32()
	sizeofcmds, _ := c.U32()
	flags, err := c.U32()
	if err != nil {
		return nil, fmt.Errorf("macho: header: %w", err)
	}
	f.CPU = CPU(cpu)
	f.SubCPU = sub
	f.Type = FileType(typ)
	f.Flags = flags

	cmds, err := f.view.Sub(hdrSize, uint64(sizeofcmds))
	if err != nil {
		return nil, fmt.Errorf("macho: load command region: %w", err)
	}
	if err := f.walkCommands(cmds, ncmds); err != nil {
		return nil, err
	}
	return f, nil
}

// walkCommands decodes the load command region. Each command's
// declared cmdsize bounds the walk; a command that does not fit its
// declared size is an error.
func (f *File) walkCommands(cmds pod.View, ncmds uint32) error {
	off := uint64(0)
	for i := uint32(0); i < ncmds; i++ {
		cmd, err := cmds.U32(off)
		if err != nil {
			return fmt.Errorf("macho: load command %d: %w", i, err)
		}
		cmdsize, err := cmds.U32(off + 4)
		if err != nil {
			return fmt.Errorf("macho: load command %d: %w", i, err)
		}
		if cmdsize < 8 {
			return fmt.Errorf("macho: load command %d has invalid size %d", i, cmdsize)
		}
		body, err := cmds.Sub(off, uint64(cmdsize))
		if err != nil {
			return fmt.Errorf("macho: load command %d (%#x): %w", i, cmd, err)
		}

		switch LoadCmd(cmd) {
		case LcSegment, LcSegment64:
			if err := f.readSegment(body, LoadCmd(cmd) == LcSegment64); err != nil {
				return fmt.Errorf("macho: load command %d: %w", i, err)
			}
		case LcSymtab:
			if body.Len() < symtabCmdSize {
				return fmt.Errorf("macho: load command %d: LC_SYMTAB too short", i)
			}
			symoff, _ := body.U32(8)
			nsyms, _ := body.U32(12)
			stroff, _ := body.U32(16)
			strsize, _ := body.U32(20)
			f.symOff, f.nsyms = uint64(symoff), uint64(nsyms)
			f.strOff, f.strSize = uint64(stroff), uint64(strsize)
			nlistSize := uint64(nlistSize32)
			if f.is64 {
				nlistSize = nlistSize64
			}
			if f.symOff > f.view.Len() || f.nsyms > (f.view.Len()-f.symOff)/nlistSize {
				return fmt.Errorf("macho: %d symbols at %#x exceed file size: %w",
					f.nsyms, f.symOff, pod.ErrOutOfBounds)
			}
			if _, err := f.view.Sub(f.strOff, f.strSize); err != nil {
				return fmt.Errorf("macho: string table: %w", err)
			}
		case LcMain:
			if body.Len() < 16 {
				return fmt.Errorf("macho: load command %d: LC_MAIN too short", i)
			}
			f.entry, _ = body.U64(8)
			f.hasEntry = true
		}

		off += uint64(cmdsize)
	}
	return nil
}

func (f *File) readSegment(body pod.View, is64 bool) error {
	segSize := uint64(segCmdSize32)
	if is64 {
		segSize = segCmdSize64
	}
	if body.Len() < segSize {
		return fmt.Errorf("segment command too short")
	}
	c := pod.NewCursor(body)
	c.Skip(8)
	name, _ := c.Fixed(16)
	var seg Segment
	seg.Name = name
	seg.Addr, _ = c.Word(is64)
	seg.Memsz, _ = c.Word(is64)
	seg.Offset, _ = c.Word(is64)
	seg.Filesz, _ = c.Word(is64)
	seg.Maxprot, _ = c.U32()
	seg.Initprot, _ = c.U32()
	nsects, _ := c.U32()
	seg.Flags, _ = c.U32()
	f.segments = append(f.segments, seg)

	sectSize := uint64(sectSize32)
	if is64 {
		sectSize = sectSize64
	}
	for j := uint32(0); j < nsects; j++ {
		sv, err := body.Sub(segSize+uint64(j)*sectSize, sectSize)
		if err != nil {
			return fmt.Errorf("section %d in segment %q: %w", j, name, err)
		}
		sc := pod.NewCursor(sv)
		var s Section
		s.Name, _ = sc.Fixed(16)
		s.Segment, _ = sc.Fixed(16)
		s.Addr, _ = sc.Word(is64)
		s.Size, _ = sc.Word(is64)
		s.Offset, _ = sc.U32()
		s.Align, _ = sc.U32()
		s.Reloff, _ = sc.U32()
		s.Nreloc, _ = sc.U32()
		s.Flags, _ = sc.U32()
		f.sections = append(f.sections, s)
	}
	return nil
}

// Is64 reports whether the file uses 64-bit load commands.
func (f *File) Is64() bool { return f.is64 }

// Segments returns the decoded segment commands in file order.
func (f *File) Segments() []Segment { return f.segments }

// Sections returns all section headers in ordinal order. Section
// ordinal n (as used by symbols) is Sections()[n-1].
func (f *File) Sections() []Section { return f.sections }

// Section returns the section with ordinal n (1-based).
func (f *File) Section(n int) (Section, error) {
	if n < 1 || n > len(f.sections) {
		return Section{}, fmt.Errorf("macho: section ordinal %d out of range (%d sections)", n, len(f.sections))
	}
	return f.sections[n-1], nil
}

// SectionByName returns the first section with the given name (in
// ordinal order) and its 1-based ordinal.
func (f *File) SectionByName(name string) (Section, int, bool) {
	for i, s := range f.sections {
		if s.Name == name {
			return s, i + 1, true
		}
	}
	return Section{}, 0, false
}

// Data returns the file bytes of section ordinal n. Zerofill sections
// have no file bytes.
func (f *File) Data(n int) ([]byte, error) {
	s, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	if s.Flags&SectionTypeMask == SZerofill {
		return nil, nil
	}
	b, err := f.view.Bytes(uint64(s.Offset), s.Size)
	if err != nil {
		return nil, fmt.Errorf("macho: section %q data: %w", s.Name, err)
	}
	return b, nil
}

// Entry returns the entry point recorded by LC_MAIN, as a file offset
// relative to the text segment base, and whether one is present.
func (f *File) Entry() (uint64, bool) { return f.entry, f.hasEntry }

// Symbols returns the nlist entries in on-disk order, decoded once
// and cached.
func (f *File) Symbols() ([]Sym, error) {
	f.symsOnce.Do(func() {
		f.syms, f.symsErr = f.readSymbols()
	})
	return f.syms, f.symsErr
}

func (f *File) readSymbols() ([]Sym, error) {
	if f.nsyms == 0 {
		return nil, nil
	}
	nlistSize := uint64(nlistSize32)
	if f.is64 {
		nlistSize = nlistSize64
	}
	tv, err := f.view.Sub(f.symOff, f.nsyms*nlistSize)
	if err != nil {
		return nil, fmt.Errorf("macho: symbol table: %w", err)
	}
	strtab, err := f.view.Sub(f.strOff, f.strSize)
	if err != nil {
		return nil, fmt.Errorf("macho: string table: %w", err)
	}

	syms := make([]Sym, f.nsyms)
	for i := uint64(0); i < f.nsyms; i++ {
		sv, err := tv.Struct(i*nlistSize, nlistSize, 4)
		if err != nil {
			return nil, fmt.Errorf("macho: symbol %d: %w", i, err)
		}
		c := pod.NewCursor(sv)
		s := &syms[i]
		strx, _ := c.U32()
		s.Type, _ = c.U8()
		s.Sect, _ = c.U8()
		s.Desc, _ = c.U16()
		s.Value, _ = c.Word(f.is64)
		if s.Type&NStab == 0 && s.Type&NType == NSect && int(s.Sect) > len(f.sections) {
			return nil, fmt.Errorf("macho: symbol %d: section ordinal %d out of range (%d sections)",
				i, s.Sect, len(f.sections))
		}
		if strx != 0 {
			s.Name, err = strtab.CString(uint64(strx))
			if err != nil {
				return nil, fmt.Errorf("macho: symbol %d name: %w", i, err)
			}
		}
	}
	return syms, nil
}

// Relocations returns the relocation entries of section ordinal n in
// on-disk order.
func (f *File) Relocations(n int) ([]Reloc, error) {
	s, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	if s.Nreloc == 0 {
		return nil, nil
	}
	tv, err := f.view.Sub(uint64(s.Reloff), uint64(s.Nreloc)*relocInfoSize)
	if err != nil {
		return nil, fmt.Errorf("macho: section %q relocations: %w", s.Name, err)
	}
	out := make([]Reloc, s.Nreloc)
	for i := range out {
		addr, _ := tv.U32(uint64(i) * relocInfoSize)
		info, _ := tv.U32(uint64(i)*relocInfoSize + 4)
		r := &out[i]
		if addr&rScattered != 0 {
			// struct scattered_relocation_info: packed word first,
			// then r_value.
			r.Scattered = true
			r.Addr = addr & 0x00ffffff
			r.Type = uint8(addr >> 24 & 0xf)
			r.Len = uint8(addr >> 28 & 0x3)
			r.Pcrel = addr>>30&1 != 0
			r.ScatValue = info
			continue
		}
		r.Addr = addr
		r.Symbolnum = info & 0x00ffffff
		r.Pcrel = info>>24&1 != 0
		r.Len = uint8(info >> 25 & 0x3)
		r.Extern = info>>27&1 != 0
		r.Type = uint8(info >> 28 & 0xf)
	}
	return out, nil
}
