// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultTableBase is the offset assumed to precede the first partition
// when its offset field is empty: the partition table at 0x8000 followed by
// 0xc00 bytes reserved for it.
const DefaultTableBase = 0x8000 + 0xc00

// Partition is one row of an ESP32 partition table. Offset is the effective
// offset (explicit or inferred).
type Partition struct {
	Name    string
	Type    string
	SubType string
	Offset  uint32
	Size    uint32
	Line    int
}

func (p *Partition) End() uint32 { return p.Offset + p.Size }

// IsFS reports whether p holds a SPIFFS or LittleFS filesystem. Both the
// type and the subtype field are checked: stock ESP32 tables declare the
// filesystem as type data, subtype spiffs.
func (p *Partition) IsFS() bool {
	return isFSType(p.Type) || isFSType(p.SubType)
}

func isFSType(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "spiffs" || s == "littlefs"
}

// Table parses partition tables. Base is the auto offset of the first row
// (DefaultTableBase if zero).
type Table struct {
	Base uint32
}

// Parse reads the comma separated partition table from r. Everything after
// '#' is a comment. Rows with less than 5 fields are skipped. A row with an
// empty or zero offset starts where the previous row ended.
func (t Table) Parse(r io.Reader) ([]Partition, error) {
	last := t.Base
	if last == 0 {
		last = DefaultTableBase
	}
	var parts []Partition
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fs := strings.Split(line, ",")
		if len(fs) < 5 {
			continue
		}
		offset, err := ParseSize(fs[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: offset: %w", n, err)
		}
		size, err := ParseSize(fs[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: size: %w", n, err)
		}
		if offset == 0 {
			offset = last
		}
		p := Partition{
			Name:    strings.TrimSpace(fs[0]),
			Type:    strings.TrimSpace(fs[1]),
			SubType: strings.TrimSpace(fs[2]),
			Offset:  offset,
			Size:    size,
			Line:    n,
		}
		last = p.End()
		parts = append(parts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

// ParseFile parses the named partition table.
func (t Table) ParseFile(name string) ([]Partition, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	parts, err := t.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return parts, nil
}

// FindFS returns the filesystem partition. If the table contains more than
// one, the last one wins and dups counts the others.
func FindFS(parts []Partition) (fs *Partition, dups int) {
	for i := range parts {
		if parts[i].IsFS() {
			if fs != nil {
				dups++
			}
			fs = &parts[i]
		}
	}
	return
}
