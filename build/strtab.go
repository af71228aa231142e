// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

// A strtab accumulates a NUL-terminated string table with
// deduplication: equal names share one offset.
type strtab struct {
	base uint32 // added to every returned offset
	buf  []byte
	off  map[string]uint32
}

// newStrtab returns an ELF/Mach-O style table: offset 0 is the empty
// string, names start at offset 1.
func newStrtab() *strtab {
	return &strtab{buf: []byte{0}, off: map[string]uint32{"": 0}}
}

// newSizedStrtab returns a COFF/XCOFF style table: the serialized
// form is prefixed with a 4-byte total length, and offsets account
// for that prefix.
func newSizedStrtab() *strtab {
	return &strtab{base: 4, off: map[string]uint32{}}
}

// add interns s and returns its table offset.
func (t *strtab) add(s string) uint32 {
	if off, ok := t.off[s]; ok {
		return off
	}
	off := t.base + uint32(len(t.buf))
	t.off[s] = off
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	return off
}

// size returns the serialized size, length prefix included for sized
// tables.
func (t *strtab) size() int { return int(t.base) + len(t.buf) }

// bytes returns the string data without any length prefix.
func (t *strtab) bytes() []byte { return t.buf }
