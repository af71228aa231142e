// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/aclements/go-objfile/codec"
	"github.com/aclements/go-objfile/pod"
)

// ErrNotELF reports that the buffer does not start with the ELF
// identification bytes. It is distinct from parse errors so callers
// can probe multiple formats cheaply.
var ErrNotELF = errors.New("not an ELF file")

// Match reports whether data starts with the ELF magic.
func Match(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// FileHeader holds the decoded ELF file header.
type FileHeader struct {
	Class      Class
	Endian     pod.Endian
	OSABI      uint8
	ABIVersion uint8
	Type       Type
	Machine    Machine
	Entry      uint64
	Flags      uint32
}

// A SectionHeader is one decoded entry of the section header table.
type SectionHeader struct {
	Name      string
	NameIndex uint32
	Type      SectionType
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// A Prog is one decoded program header.
type Prog struct {
	Type   ProgType
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// A File is a parsed ELF file. It borrows the byte buffer passed to
// NewFile; the buffer must stay alive and unmodified for the lifetime
// of the File. A File is safe for concurrent readers.
type File struct {
	FileHeader

	view pod.View
	is64 bool

	// Table locations recorded at construction; rows decode lazily.
	shoff, shnum, shentsize uint64
	phoff, phnum, phentsize uint64
	shstrndx                uint32

	sectionsOnce sync.Once
	sections     []SectionHeader
	sectionsErr  error

	symsOnce sync.Once
	syms     []Sym
	symsErr  error

	dataMu   sync.Mutex
	dataOnce map[int][]byte // decompressed payload cache
}

// NewFile parses the ELF file in data. The header and table locations
// are validated here; table rows are decoded on demand.
func NewFile(data []byte, mode pod.Mode) (*File, error) {
	if !Match(data) {
		return nil, ErrNotELF
	}
	if len(data) < EI_NIDENT {
		return nil, fmt.Errorf("elf: truncated identification: %w", pod.ErrTruncated)
	}

	f := &File{dataOnce: make(map[int][]byte)}
	f.Class = Class(data[EI_CLASS])
	switch f.Class {
	case ELFCLASS32:
		f.is64 = false
	case ELFCLASS64:
		f.is64 = true
	default:
		return nil, fmt.Errorf("elf: invalid class %v", f.Class)
	}
	switch Data(data[EI_DATA]) {
	case ELFDATA2LSB:
		f.Endian = pod.Little
	case ELFDATA2MSB:
		f.Endian = pod.Big
	default:
		return nil, fmt.Errorf("elf: invalid data encoding %d", data[EI_DATA])
	}
	if data[EI_VERSION] != 1 {
		return nil, fmt.Errorf("elf: unsupported version %d", data[EI_VERSION])
	}
	f.OSABI = data[EI_OSABI]
	f.ABIVersion = data[EI_ABIVERSION]
	f.view = pod.NewViewMode(data, f.Endian, mode)

	align := uint64(4)
	ehdrSize := uint64(ehdrSize32)
	if f.is64 {
		align = 8
		ehdrSize = ehdrSize64
	}
	hv, err := f.view.Struct(0, ehdrSize, align)
	if err != nil {
		return nil, fmt.Errorf("elf: header: %w", err)
	}
	c := pod.NewCursor(hv)
	c.Skip(EI_NIDENT)
	typ, _ := c.U16()
	machine, _ := c.U16()
	version, _ := c.U32()
	entry, _ := c.Word(f.is64)
	phoff, _ := c.Word(f.is64)
	shoff, _ := c.Word(f.is64)
	flags, _ := c.U32()
	c.Skip(2) // e_ehsize
	phentsize, _ := c.U16()
	phnum, _ := c.U16()
	shentsize, _ := c.U16()
	shnum, _ := c.U16()
	shstrndx, err := c.U16()
	if err != nil {
		return nil, fmt.Errorf("elf: header: %w", err)
	}
	if version != 1 {
		return nil, fmt.Errorf("elf: unsupported file version %d", version)
	}
	f.Type = Type(typ)
	f.Machine = Machine(machine)
	f.Entry = entry
	f.Flags = flags
	f.shoff, f.shnum, f.shentsize = shoff, uint64(shnum), uint64(shentsize)
	f.phoff, f.phnum, f.phentsize = phoff, uint64(phnum), uint64(phentsize)
	f.shstrndx = uint32(shstrndx)

	if err := f.validateTables(); err != nil {
		return nil, err
	}
	return f, nil
}

// validateTables checks that the declared table locations are
// internally consistent with the buffer without decoding rows.
// Extended section numbering (e_shnum == 0, real count in the first
// section header) is resolved here.
func (f *File) validateTables() error {
	minShdr, minPhdr := uint64(shdrSize32), uint64(phdrSize32)
	if f.is64 {
		minShdr, minPhdr = shdrSize64, phdrSize64
	}

	if f.shoff != 0 {
		if f.shentsize < minShdr {
			return fmt.Errorf("elf: section header entry size %d smaller than %d", f.shentsize, minShdr)
		}
		if f.shoff > f.view.Len() {
			return fmt.Errorf("elf: section header table offset %#x: %w", f.shoff, pod.ErrOutOfBounds)
		}
		if f.shnum == 0 {
			// Extended numbering: real count lives in sh_size of
			// the initial SHT_NULL header.
			sh0, err := f.rawSectionHeader(0)
			if err != nil {
				return fmt.Errorf("elf: extended section count: %w", err)
			}
			f.shnum = sh0.Size
		}
		if f.shnum > (f.view.Len()-f.shoff)/f.shentsize {
			return fmt.Errorf("elf: %d section headers of %d bytes exceed file size: %w",
				f.shnum, f.shentsize, pod.ErrOutOfBounds)
		}
		if f.shstrndx == SHN_XINDEX {
			sh0, err := f.rawSectionHeader(0)
			if err != nil {
				return fmt.Errorf("elf: extended shstrndx: %w", err)
			}
			f.shstrndx = sh0.Link
		}
		if f.shstrndx != SHN_UNDEF && uint64(f.shstrndx) >= f.shnum {
			return fmt.Errorf("elf: shstrndx %d out of range (%d sections)", f.shstrndx, f.shnum)
		}
	}

	if f.phoff != 0 {
		if f.phentsize < minPhdr {
			return fmt.Errorf("elf: program header entry size %d smaller than %d", f.phentsize, minPhdr)
		}
		if f.phoff > f.view.Len() || f.phnum > (f.view.Len()-f.phoff)/f.phentsize {
			return fmt.Errorf("elf: %d program headers of %d bytes exceed file size: %w",
				f.phnum, f.phentsize, pod.ErrOutOfBounds)
		}
	}
	return nil
}

// Is64 reports whether the file uses the 64-bit class.
func (f *File) Is64() bool { return f.is64 }

// ByteOrder returns the file's byte order.
func (f *File) ByteOrder() binary.ByteOrder { return f.Endian.Order() }

// NumSections returns the number of entries in the section header
// table, including the reserved null entry at index 0.
func (f *File) NumSections() int {
	if f.shoff == 0 {
		return 0
	}
	return int(f.shnum)
}

// rawSectionHeader decodes row i of the section header table without
// resolving its name.
func (f *File) rawSectionHeader(i int) (SectionHeader, error) {
	var sh SectionHeader
	if f.shoff == 0 || i < 0 || (f.shnum != 0 && uint64(i) >= f.shnum) {
		return sh, fmt.Errorf("elf: section index %d out of range (%d sections)", i, f.shnum)
	}
	align := uint64(4)
	size := uint64(shdrSize32)
	if f.is64 {
		align, size = 8, shdrSize64
	}
	v, err := f.view.Struct(f.shoff+uint64(i)*f.shentsize, size, align)
	if err != nil {
		return sh, fmt.Errorf("elf: section header %d: %w", i, err)
	}
	c := pod.NewCursor(v)
	sh.NameIndex, _ = c.U32()
	typ, _ := c.U32()
	sh.Type = SectionType(typ)
	sh.Flags, _ = c.Word(f.is64)
	sh.Addr, _ = c.Word(f.is64)
	sh.Offset, _ = c.Word(f.is64)
	sh.Size, _ = c.Word(f.is64)
	sh.Link, _ = c.U32()
	sh.Info, _ = c.U32()
	sh.Addralign, _ = c.Word(f.is64)
	sh.Entsize, err = c.Word(f.is64)
	return sh, err
}

// SectionHeader returns section header i with its name resolved
// through the section name string table.
func (f *File) SectionHeader(i int) (SectionHeader, error) {
	sh, err := f.rawSectionHeader(i)
	if err != nil {
		return sh, err
	}
	sh.Name, err = f.sectionName(sh.NameIndex)
	return sh, err
}

// Sections returns all section headers, decoded once and cached.
func (f *File) Sections() ([]SectionHeader, error) {
	f.sectionsOnce.Do(func() {
		n := f.NumSections()
		sections := make([]SectionHeader, n)
		for i := 0; i < n; i++ {
			sh, err := f.SectionHeader(i)
			if err != nil {
				f.sectionsErr = err
				return
			}
			sections[i] = sh
		}
		f.sections = sections
	})
	return f.sections, f.sectionsErr
}

// SectionByName returns the first section with the given name and its
// index. Ties are broken by lowest index.
func (f *File) SectionByName(name string) (SectionHeader, int, bool) {
	sections, err := f.Sections()
	if err != nil {
		return SectionHeader{}, 0, false
	}
	for i, sh := range sections {
		if sh.Name == name {
			return sh, i, true
		}
	}
	return SectionHeader{}, 0, false
}

func (f *File) sectionName(nameIndex uint32) (string, error) {
	if f.shstrndx == SHN_UNDEF {
		return "", nil
	}
	strtab, err := f.rawSectionHeader(int(f.shstrndx))
	if err != nil {
		return "", err
	}
	v, err := f.view.Sub(strtab.Offset, strtab.Size)
	if err != nil {
		return "", fmt.Errorf("elf: section name table: %w", err)
	}
	name, err := v.CString(uint64(nameIndex))
	if err != nil {
		return "", fmt.Errorf("elf: section name %#x: %w", nameIndex, err)
	}
	return name, nil
}

// RawData returns section i's bytes exactly as stored in the file,
// without decompression. SHT_NOBITS sections have no file bytes.
func (f *File) RawData(i int) ([]byte, error) {
	sh, err := f.rawSectionHeader(i)
	if err != nil {
		return nil, err
	}
	if sh.Type == SHT_NOBITS {
		return nil, nil
	}
	b, err := f.view.Bytes(sh.Offset, sh.Size)
	if err != nil {
		return nil, fmt.Errorf("elf: section %d data: %w", i, err)
	}
	return b, nil
}

// Data returns section i's logical payload. Compressed sections
// (SHF_COMPRESSED, or the legacy .zdebug_* convention) are
// decompressed on first access and the result is cached for the
// File's lifetime.
func (f *File) Data(i int) ([]byte, error) {
	sh, err := f.SectionHeader(i)
	if err != nil {
		return nil, err
	}
	raw, err := f.RawData(i)
	if err != nil {
		return nil, err
	}

	compressed := sh.Flags&SHF_COMPRESSED != 0
	legacy := !compressed && len(raw) >= 12 && bytes.HasPrefix(raw, []byte("ZLIB")) &&
		len(sh.Name) >= 2 && sh.Name[:2] == ".z"
	if !compressed && !legacy {
		return raw, nil
	}

	f.dataMu.Lock()
	cached, ok := f.dataOnce[i]
	f.dataMu.Unlock()
	if ok {
		return cached, nil
	}

	var out []byte
	if legacy {
		// "ZLIB" magic, big-endian 64-bit uncompressed size, stream.
		size := binary.BigEndian.Uint64(raw[4:12])
		out, err = codec.Decompress(codec.Zlib, raw[12:], size)
	} else {
		var ctype uint32
		var size uint64
		var body []byte
		ctype, size, body, err = f.parseChdr(raw)
		if err == nil {
			out, err = codec.Decompress(codec.Type(ctype), body, size)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("elf: section %d (%s): %w", i, sh.Name, err)
	}

	f.dataMu.Lock()
	f.dataOnce[i] = out
	f.dataMu.Unlock()
	return out, nil
}

// parseChdr splits a compressed section's raw bytes into its
// compression header fields and the compressed stream.
func (f *File) parseChdr(raw []byte) (ctype uint32, size uint64, body []byte, err error) {
	hdrSize := uint64(chdrSize32)
	if f.is64 {
		hdrSize = chdrSize64
	}
	v := pod.NewView(raw, f.Endian)
	hv, err := v.Sub(0, hdrSize)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("compression header: %w", err)
	}
	c := pod.NewCursor(hv)
	ctype, _ = c.U32()
	if f.is64 {
		c.Skip(4) // ch_reserved
	}
	size, _ = c.Word(f.is64)
	body = raw[hdrSize:]
	return ctype, size, body, nil
}

// Segments decodes the program header table.
func (f *File) Segments() ([]Prog, error) {
	if f.phoff == 0 {
		return nil, nil
	}
	progs := make([]Prog, f.phnum)
	align := uint64(4)
	size := uint64(phdrSize32)
	if f.is64 {
		align, size = 8, phdrSize64
	}
	for i := range progs {
		v, err := f.view.Struct(f.phoff+uint64(i)*f.phentsize, size, align)
		if err != nil {
			return nil, fmt.Errorf("elf: program header %d: %w", i, err)
		}
		c := pod.NewCursor(v)
		p := &progs[i]
		typ, _ := c.U32()
		p.Type = ProgType(typ)
		if f.is64 {
			p.Flags, _ = c.U32()
			p.Off, _ = c.U64()
			p.Vaddr, _ = c.U64()
			p.Paddr, _ = c.U64()
			p.Filesz, _ = c.U64()
			p.Memsz, _ = c.U64()
			p.Align, _ = c.U64()
		} else {
			p.Off, _ = c.Word(false)
			p.Vaddr, _ = c.Word(false)
			p.Paddr, _ = c.Word(false)
			p.Filesz, _ = c.Word(false)
			p.Memsz, _ = c.Word(false)
			p.Flags, _ = c.U32()
			p.Align, err = c.Word(false)
			if err != nil {
				return nil, fmt.Errorf("elf: program header %d: %w", i, err)
			}
		}
	}
	return progs, nil
}

// findSection returns the index of the first section of the given
// type, or -1.
func (f *File) findSection(typ SectionType) int {
	for i := 0; i < f.NumSections(); i++ {
		sh, err := f.rawSectionHeader(i)
		if err != nil {
			return -1
		}
		if sh.Type == typ {
			return i
		}
	}
	return -1
}
