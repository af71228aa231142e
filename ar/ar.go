// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ar reads and writes Unix archive (ar) files, the container
// format used for static libraries. The reader understands GNU and
// BSD member naming and thin archives; the writer emits deterministic
// GNU-style archives.
package ar

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Archive magic strings.
const (
	magicArch = "!<arch>\n"
	magicThin = "!<thin>\n"

	headerSize = 60
)

// ErrNotArchive reports that the buffer does not start with an ar
// magic string. It is distinct from parse errors so callers can probe
// multiple formats cheaply.
var ErrNotArchive = errors.New("not an ar archive")

// Match reports whether data starts with an ar magic string.
func Match(data []byte) bool {
	return len(data) >= len(magicArch) &&
		(string(data[:8]) == magicArch || string(data[:8]) == magicThin)
}

// A Member is one archive member. Data borrows the archive buffer;
// for thin-archive members it is nil.
type Member struct {
	Name    string
	ModTime int64
	UID     int
	GID     int
	Mode    uint32
	Data    []byte
	Offset  uint64 // file offset of the member header
}

// IsSymbolTable reports whether the member is a linker symbol index
// rather than an object file.
func (m *Member) IsSymbolTable() bool {
	switch m.Name {
	case "/", "/SYM64/", "__.SYMDEF", "__.SYMDEF SORTED":
		return true
	}
	return false
}

// An Archive is a parsed ar file. Member data borrows the buffer
// passed to Parse.
type Archive struct {
	Thin    bool
	members []Member
}

// Members returns every member in on-disk order, symbol tables and
// the long-name table excluded.
func (a *Archive) Members() []Member { return a.members }

// Parse decodes the archive in data. Member payloads are sub-slices
// of data, not copies.
func Parse(data []byte) (*Archive, error) {
	if !Match(data) {
		return nil, ErrNotArchive
	}
	a := &Archive{Thin: string(data[:8]) == magicThin}

	var longNames []byte
	off := uint64(len(magicArch))
	for off < uint64(len(data)) {
		if uint64(len(data))-off < headerSize {
			return nil, fmt.Errorf("ar: truncated member header at %#x", off)
		}
		hdr := data[off : off+headerSize]
		if hdr[58] != 0x60 || hdr[59] != '\n' {
			return nil, fmt.Errorf("ar: bad member header magic at %#x", off)
		}
		name := strings.TrimRight(string(hdr[0:16]), " ")
		size, err := parseDec(hdr[48:58])
		if err != nil {
			return nil, fmt.Errorf("ar: member %q size: %w", name, err)
		}

		m := Member{Name: name, Offset: off}
		m.ModTime, _ = parseDec(hdr[16:28])
		uid, _ := parseDec(hdr[28:34])
		gid, _ := parseDec(hdr[34:40])
		m.UID, m.GID = int(uid), int(gid)
		mode, _ := parseOct(hdr[40:48])
		m.Mode = uint32(mode)

		body := data[off+headerSize:]
		dataSize := uint64(size)
		stored := dataSize
		if a.Thin && name != "//" {
			// Thin archives store member contents out of line.
			stored = 0
		}
		if stored > uint64(len(body)) {
			return nil, fmt.Errorf("ar: member %q size %d exceeds archive", name, size)
		}
		m.Data = body[:stored]
		off += headerSize + stored
		if off%2 != 0 {
			off++ // members are padded to even offsets
		}

		switch {
		case name == "//":
			longNames = m.Data
			continue
		case strings.HasPrefix(name, "#1/"):
			// BSD long name: the name's bytes lead the member data.
			n, err := parseDec([]byte(name[3:]))
			if err != nil || uint64(n) > uint64(len(m.Data)) {
				return nil, fmt.Errorf("ar: bad BSD member name %q", name)
			}
			m.Name = strings.TrimRight(string(m.Data[:n]), "\x00")
			m.Data = m.Data[n:]
		case len(name) > 1 && name[0] == '/' && name[1] >= '0' && name[1] <= '9':
			// GNU long name: offset into the // member.
			n, err := parseDec([]byte(name[1:]))
			if err != nil {
				return nil, fmt.Errorf("ar: bad GNU member name %q", name)
			}
			m.Name, err = longName(longNames, uint64(n))
			if err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, "/") && name != "/":
			// GNU short name with terminator.
			m.Name = name[:len(name)-1]
		}

		if m.IsSymbolTable() {
			continue
		}
		a.members = append(a.members, m)
	}
	return a, nil
}

// longName resolves a GNU long-name offset against the // member:
// names there end in "/\n".
func longName(table []byte, off uint64) (string, error) {
	if off >= uint64(len(table)) {
		return "", fmt.Errorf("ar: long name offset %d outside name table", off)
	}
	rest := table[off:]
	end := bytes.IndexByte(rest, '\n')
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimRight(string(rest[:end]), "/\n"), nil
}

// parseDec parses a space-padded decimal field.
func parseDec(b []byte) (int64, error) {
	s := strings.TrimRight(string(b), " ")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseOct parses a space-padded octal field.
func parseOct(b []byte) (int64, error) {
	s := strings.TrimRight(string(b), " ")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 8, 64)
}
