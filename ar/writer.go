// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ar

import (
	"bytes"
	"fmt"
	"strings"
)

// Write serializes members as a GNU-style archive. Output is
// deterministic: timestamps, owners, and modes are fixed, so equal
// inputs produce byte-identical archives.
func Write(members []Member) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magicArch)

	// Names longer than 15 bytes go through the // long-name table.
	longNames := make(map[int]int) // member index to table offset
	var table bytes.Buffer
	for i, m := range members {
		if strings.ContainsAny(m.Name, "/\n") {
			return nil, fmt.Errorf("ar: member name %q contains a reserved character", m.Name)
		}
		if len(m.Name)+1 > 16 {
			longNames[i] = table.Len()
			table.WriteString(m.Name)
			table.WriteString("/\n")
		}
	}
	if table.Len() > 0 {
		writeHeader(&buf, "//", 0, table.Len())
		buf.Write(table.Bytes())
		pad(&buf)
	}

	for i, m := range members {
		name := m.Name + "/"
		if off, ok := longNames[i]; ok {
			name = fmt.Sprintf("/%d", off)
		}
		writeHeader(&buf, name, 0644, len(m.Data))
		buf.Write(m.Data)
		pad(&buf)
	}
	return buf.Bytes(), nil
}

// writeHeader emits one 60-byte member header with zero timestamp and
// ownership.
func writeHeader(buf *bytes.Buffer, name string, mode, size int) {
	fmt.Fprintf(buf, "%-16s%-12d%-6d%-6d%-8o%-10d`\n", name, 0, 0, 0, mode, size)
}

// pad aligns the next member header to an even offset.
func pad(buf *bytes.Buffer) {
	if buf.Len()%2 != 0 {
		buf.WriteByte('\n')
	}
}
