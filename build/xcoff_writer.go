// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/xcoff"
)

func xcoffSectionFlags(k objfile.SectionKind) uint32 {
	switch k {
	case objfile.SectionText:
		return xcoff.STYP_TEXT
	case objfile.SectionBSS:
		return xcoff.STYP_BSS
	case objfile.SectionDebug:
		return xcoff.STYP_DEBUG
	}
	return xcoff.STYP_DATA
}

const (
	xcoffHeaderSize  = 20
	xcoffAuxHdrSize  = 24
	xcoffSectionSize = 40
	xcoffSymbolSize  = 18
	xcoffRelocSize   = 10
	xcoffEntryOff    = 16 // o_entry in a 32-bit aux header
)

// emitXCOFF writes a 32-bit XCOFF object. Every non-C_FILE symbol
// carries one csect auxiliary record, so raw symbol indices advance by
// two per entry; relocations are rewritten to those raw indices.
func (o *Object) emitXCOFF() ([]byte, error) {
	w := newWbuf(o.endian)
	str := newSizedStrtab()

	naux := func(s *Symbol) uint32 {
		if s.Kind == objfile.SymFile {
			return 0
		}
		return 1
	}
	rawIdx := make([]uint32, len(o.symbols))
	raw := uint32(0)
	for i := range o.symbols {
		rawIdx[i] = raw
		raw += 1 + naux(&o.symbols[i])
	}
	nsyms := raw

	nsec := len(o.sections)
	optSize := 0
	if o.hasEntry {
		optSize = xcoffAuxHdrSize
	}

	off := uint32(xcoffHeaderSize + optSize + nsec*xcoffSectionSize)
	dataOff := make([]uint32, nsec+1)
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind != objfile.SectionBSS && len(s.data) > 0 {
			off = alignU32(off, 4)
			dataOff[i] = off
			off += uint32(len(s.data))
		}
	}
	relOff := make([]uint32, nsec+1)
	nrel := make([]uint16, nsec+1)
	for i := 1; i <= nsec; i++ {
		relocs := o.sectionRelocs(i)
		if len(relocs) == 0 {
			continue
		}
		relOff[i] = off
		nrel[i] = uint16(len(relocs))
		off += uint32(len(relocs)) * xcoffRelocSize
	}
	symOff := off

	// File header.
	w.u16(xcoff.Magic32)
	w.u16(uint16(nsec))
	w.u32(0) // timestamp, fixed for determinism
	w.u32(symOff)
	w.u32(nsyms)
	w.u16(uint16(optSize))
	w.u16(0)

	// Auxiliary header, carrying only the entry point.
	if o.hasEntry {
		w.bytes(make([]byte, xcoffEntryOff))
		w.u32(uint32(o.entry))
		w.bytes(make([]byte, xcoffAuxHdrSize-xcoffEntryOff-4))
	}

	// Section headers.
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		w.name(s.Name, 8)
		w.u32(uint32(s.Addr)) // s_paddr
		w.u32(uint32(s.Addr)) // s_vaddr
		w.u32(uint32(s.Size))
		w.u32(dataOff[i])
		w.u32(relOff[i])
		w.u32(0) // s_lnnoptr
		w.u16(nrel[i])
		w.u16(0) // s_nlnno
		w.u32(xcoffSectionFlags(s.Kind))
	}

	// Bodies.
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind != objfile.SectionBSS && len(s.data) > 0 {
			w.align(4)
			w.bytes(s.data)
		}
	}

	// Relocations. r_rsize 0x1f marks a full 32-bit field.
	for i := 1; i <= nsec; i++ {
		for _, r := range o.sectionRelocs(i) {
			w.u32(uint32(r.Offset))
			w.u32(rawIdx[r.Symbol])
			w.u8(0x1f)
			w.u8(uint8(r.Type))
		}
	}

	// Symbol table. Short names are stored inline; the inline form is
	// only recognizable when its first four bytes are nonzero, so empty
	// names go through the string table too.
	putName := func(name string) {
		if len(name) == 0 || len(name) > 8 {
			w.u32(0)
			w.u32(str.add(name))
		} else {
			w.name(name, 8)
		}
	}
	for i := range o.symbols {
		s := &o.symbols[i]
		putName(s.Name)
		value := uint32(s.Value)
		scnum := int16(s.Section)
		xty := uint8(xcoff.XTY_SD)
		xmc := uint8(xcoff.XMC_RW)
		scnlen := uint32(s.Size)
		switch s.Section {
		case objfile.SectionUndefined:
			scnum = xcoff.N_UNDEF
			xty = xcoff.XTY_ER
			scnlen = 0
		case objfile.SectionAbsolute:
			scnum = xcoff.N_ABS
		case objfile.SectionCommon:
			scnum = xcoff.N_UNDEF
			xty = xcoff.XTY_CM
			xmc = xcoff.XMC_BS
		}
		if s.Kind == objfile.SymFunc {
			xmc = xcoff.XMC_PR
		}
		sclass := uint8(xcoff.C_HIDEXT)
		switch {
		case s.Kind == objfile.SymFile:
			sclass = xcoff.C_FILE
			scnum = xcoff.N_DEBUG
		case s.Binding == objfile.BindWeak:
			sclass = xcoff.C_WEAKEXT
		case s.Binding == objfile.BindGlobal:
			sclass = xcoff.C_EXT
		}
		w.u32(value)
		w.u16(uint16(scnum))
		w.u16(0) // n_type
		w.u8(sclass)
		aux := naux(s)
		w.u8(uint8(aux))
		if aux > 0 {
			// Csect auxiliary record.
			w.u32(scnlen)
			w.u32(0) // x_parmhash
			w.u16(0) // x_snhash
			w.u8(xty)
			w.u8(xmc)
			w.u32(0) // x_stab
			w.u16(0) // x_snstab
		}
	}

	// String table, length prefix included in the recorded size.
	w.u32(uint32(str.size()))
	w.bytes(str.bytes())
	return w.b, nil
}
