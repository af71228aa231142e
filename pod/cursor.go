// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pod

import (
	"bytes"
	"fmt"
)

// A Cursor is a forward-only bounds-checked read position over a View.
// Every operation either returns the requested data and advances the
// position, or fails leaving the position unchanged. A Cursor never
// reads past the end of its view.
type Cursor struct {
	v   View
	off uint64
}

// NewCursor returns a Cursor positioned at the start of v.
func NewCursor(v View) *Cursor {
	return &Cursor{v: v}
}

// Offset returns the current read position.
func (c *Cursor) Offset() uint64 { return c.off }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() uint64 { return c.v.Len() - c.off }

// Seek sets the read position to off.
func (c *Cursor) Seek(off uint64) error {
	if off > c.v.Len() {
		return fmt.Errorf("%w: seek to %#x in %#x-byte buffer", ErrOutOfBounds, off, c.v.Len())
	}
	c.off = off
	return nil
}

// Skip advances the read position by n bytes.
func (c *Cursor) Skip(n uint64) error {
	if n > c.Remaining() {
		return fmt.Errorf("%w: skip %#x with %#x bytes remaining", ErrTruncated, n, c.Remaining())
	}
	c.off += n
	return nil
}

// Bytes returns the next n bytes without copying and advances past them.
func (c *Cursor) Bytes(n uint64) ([]byte, error) {
	b, err := c.v.Bytes(c.off, n)
	if err != nil {
		return nil, fmt.Errorf("%w: read %#x bytes with %#x remaining", ErrTruncated, n, c.Remaining())
	}
	c.off += n
	return b, nil
}

// U8 reads one byte.
func (c *Cursor) U8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a 16-bit unsigned integer in the view's byte order.
func (c *Cursor) U16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return c.v.endian.Order().Uint16(b), nil
}

// U32 reads a 32-bit unsigned integer in the view's byte order.
func (c *Cursor) U32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return c.v.endian.Order().Uint32(b), nil
}

// U64 reads a 64-bit unsigned integer in the view's byte order.
func (c *Cursor) U64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return c.v.endian.Order().Uint64(b), nil
}

// I32 reads a 32-bit signed integer in the view's byte order.
func (c *Cursor) I32() (int32, error) {
	u, err := c.U32()
	return int32(u), err
}

// I64 reads a 64-bit signed integer in the view's byte order.
func (c *Cursor) I64() (int64, error) {
	u, err := c.U64()
	return int64(u), err
}

// Word reads a 32- or 64-bit unsigned integer selected by is64,
// widened to uint64.
func (c *Cursor) Word(is64 bool) (uint64, error) {
	if is64 {
		return c.U64()
	}
	u, err := c.U32()
	return uint64(u), err
}

// CString reads a NUL-terminated string and advances past the
// terminator.
func (c *Cursor) CString() (string, error) {
	rest, _ := c.v.Bytes(c.off, c.Remaining())
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %#x", ErrTruncated, c.off)
	}
	s := string(rest[:i])
	c.off += uint64(i) + 1
	return s, nil
}

// Fixed reads an n-byte field holding a NUL-padded string and returns
// the string up to the first NUL, advancing past the whole field.
func (c *Cursor) Fixed(n uint64) (string, error) {
	b, err := c.Bytes(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
