// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pod provides bounds- and alignment-checked access to plain
// old data stored in untrusted byte buffers.
//
// A View is a non-owning window over a caller-supplied buffer. All
// reads name their byte order explicitly and all offset arithmetic is
// checked, so a View never reads outside its buffer and never panics
// on malformed input.
package pod

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors reported by View and Cursor operations. Callers match these
// with errors.Is; the returned errors carry additional context.
var (
	ErrOutOfBounds = errors.New("read out of bounds")
	ErrUnaligned   = errors.New("misaligned read")
	ErrTruncated   = errors.New("unexpected end of data")
)

// A Mode holds option flags for parsing untrusted buffers.
type Mode uint8

const (
	// AllowUnaligned permits structure extraction at offsets that
	// violate the structure's mandated alignment.
	AllowUnaligned Mode = 1 << iota
)

// NewViewMode returns a View over buf in byte order e with the given
// mode flags applied.
func NewViewMode(buf []byte, e Endian, mode Mode) View {
	return View{buf: buf, endian: e, unaligned: mode&AllowUnaligned != 0}
}

// An Endian tags the byte order of on-disk multi-byte fields. It is
// independent of the host byte order; a field is never interpreted in
// host order implicitly.
type Endian uint8

const (
	Little Endian = iota
	Big
)

// Order returns the binary.ByteOrder corresponding to e.
func (e Endian) Order() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endian) String() string {
	if e == Big {
		return "big-endian"
	}
	return "little-endian"
}

// A View is a bounds-checked window over a byte buffer. The zero View
// is empty and little-endian. Views are values; subviews share the
// underlying buffer with no copying.
type View struct {
	buf       []byte
	endian    Endian
	unaligned bool
}

// NewView returns a View over buf reading multi-byte fields in byte
// order e. The View borrows buf; the caller must keep buf alive and
// unmodified for as long as the View (or any subview or byte slice
// derived from it) is in use.
func NewView(buf []byte, e Endian) View {
	return View{buf: buf, endian: e}
}

// Unaligned returns a copy of v that permits structure extraction at
// offsets violating the structure's declared alignment.
func (v View) Unaligned() View {
	v.unaligned = true
	return v
}

// Len returns the length of the window in bytes.
func (v View) Len() uint64 { return uint64(len(v.buf)) }

// Endian returns the byte order applied to multi-byte reads.
func (v View) Endian() Endian { return v.endian }

// check reports whether [off, off+size) lies within the window,
// guarding against offset arithmetic overflow.
func (v View) check(off, size uint64) error {
	if off > uint64(len(v.buf)) || size > uint64(len(v.buf))-off {
		return fmt.Errorf("%w: offset %#x size %#x in %#x-byte buffer", ErrOutOfBounds, off, size, len(v.buf))
	}
	return nil
}

// Bytes returns the size bytes at off without copying.
func (v View) Bytes(off, size uint64) ([]byte, error) {
	if err := v.check(off, size); err != nil {
		return nil, err
	}
	return v.buf[off : off+size : off+size], nil
}

// Sub returns a subview of the size bytes at off.
func (v View) Sub(off, size uint64) (View, error) {
	b, err := v.Bytes(off, size)
	if err != nil {
		return View{}, err
	}
	return View{buf: b, endian: v.endian, unaligned: v.unaligned}, nil
}

// Tail returns the subview from off to the end of the window.
func (v View) Tail(off uint64) (View, error) {
	if off > uint64(len(v.buf)) {
		return View{}, fmt.Errorf("%w: offset %#x in %#x-byte buffer", ErrOutOfBounds, off, len(v.buf))
	}
	return v.Sub(off, uint64(len(v.buf))-off)
}

// Struct returns a subview of a fixed-layout structure of the given
// size whose mandated alignment is align bytes. It fails with
// ErrUnaligned if off is not a multiple of align, unless the view is
// in unaligned mode. align must be a power of two; align 0 or 1 means
// unconstrained.
func (v View) Struct(off, size, align uint64) (View, error) {
	if align > 1 && !v.unaligned && off&(align-1) != 0 {
		return View{}, fmt.Errorf("%w: offset %#x, required alignment %d", ErrUnaligned, off, align)
	}
	return v.Sub(off, size)
}

// U8 returns the byte at off.
func (v View) U8(off uint64) (uint8, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	return v.buf[off], nil
}

// U16 returns the 16-bit unsigned integer at off in the view's byte order.
func (v View) U16(off uint64) (uint16, error) {
	if err := v.check(off, 2); err != nil {
		return 0, err
	}
	return v.endian.Order().Uint16(v.buf[off:]), nil
}

// U32 returns the 32-bit unsigned integer at off in the view's byte order.
func (v View) U32(off uint64) (uint32, error) {
	if err := v.check(off, 4); err != nil {
		return 0, err
	}
	return v.endian.Order().Uint32(v.buf[off:]), nil
}

// U64 returns the 64-bit unsigned integer at off in the view's byte order.
func (v View) U64(off uint64) (uint64, error) {
	if err := v.check(off, 8); err != nil {
		return 0, err
	}
	return v.endian.Order().Uint64(v.buf[off:]), nil
}

// I32 returns the 32-bit signed integer at off in the view's byte order.
func (v View) I32(off uint64) (int32, error) {
	u, err := v.U32(off)
	return int32(u), err
}

// I64 returns the 64-bit signed integer at off in the view's byte order.
func (v View) I64(off uint64) (int64, error) {
	u, err := v.U64(off)
	return int64(u), err
}

// Word returns the 32- or 64-bit unsigned integer at off, widened to
// uint64, selected by is64. Format parsers use this for fields whose
// width depends on the file class.
func (v View) Word(off uint64, is64 bool) (uint64, error) {
	if is64 {
		return v.U64(off)
	}
	u, err := v.U32(off)
	return uint64(u), err
}

// CString returns the NUL-terminated string starting at off. The
// terminator must lie within the window.
func (v View) CString(off uint64) (string, error) {
	if off > uint64(len(v.buf)) {
		return "", fmt.Errorf("%w: string offset %#x in %#x-byte buffer", ErrOutOfBounds, off, len(v.buf))
	}
	for i := off; i < uint64(len(v.buf)); i++ {
		if v.buf[i] == 0 {
			return string(v.buf[off:i]), nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %#x", ErrTruncated, off)
}
