// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import "fmt"

// A SectionIndex names a section in a parsed object, or one of the
// reserved sentinels for symbols that are not defined relative to any
// section.
type SectionIndex uint32

const (
	// SectionUndefined marks a symbol with no defining section.
	SectionUndefined SectionIndex = 0xffffffff
	// SectionAbsolute marks a symbol whose value is an absolute
	// address.
	SectionAbsolute SectionIndex = 0xfffffffe
	// SectionCommon marks a common block not yet allocated to a
	// section.
	SectionCommon SectionIndex = 0xfffffffd
)

// IsReserved reports whether the index is one of the sentinels rather
// than a real section.
func (i SectionIndex) IsReserved() bool { return i >= SectionCommon }

func (i SectionIndex) String() string {
	switch i {
	case SectionUndefined:
		return "undefined"
	case SectionAbsolute:
		return "absolute"
	case SectionCommon:
		return "common"
	}
	return fmt.Sprintf("section %d", uint32(i))
}

// A SymbolIndex is a raw symbol-table index: the numbering used by
// relocations, which on COFF and XCOFF includes auxiliary records.
type SymbolIndex uint32

// An InvalidIndexError reports a section or symbol index that does
// not resolve to an entry in the file.
type InvalidIndexError struct {
	Kind  string // "section" or "symbol"
	Index uint32
	Num   int // entries in the referenced table
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid %s index %d (%d entries)", e.Kind, e.Index, e.Num)
}
