// Copyright 2024 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uf2 writes UF2 files, the format accepted by the mass storage
// bootloaders of the RP2040/RP2350 and many ESP32-S2/S3 boards.
package uf2

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FamilyIDPresent is the block flag telling the bootloader that the Family
// field is valid.
const FamilyIDPresent = 0x00002000

// BlockSize is the size of one UF2 block and PayloadSize the number of
// image bytes it carries.
const (
	BlockSize   = 512
	PayloadSize = 256
)

// Families maps the known family names to their IDs. The data family is
// what the RP2350 bootloader expects for images that aren't programs.
var Families = map[string]uint32{
	"rp2040":        0xe48bff56,
	"absolute":      0xe48bff57,
	"data":          0xe48bff58,
	"rp2350_arm_s":  0xe48bff59,
	"rp2350_riscv":  0xe48bff5a,
	"rp2350_arm_ns": 0xe48bff5b,
	"esp32s2":       0xbfdd4eee,
	"esp32s3":       0xc47e5767,
}

// FamilyID returns the ID of the named family. A 32-bit number is accepted
// too.
func FamilyID(name string) (uint32, error) {
	if id, ok := Families[strings.ToLower(name)]; ok {
		return id, nil
	}
	u, err := strconv.ParseUint(name, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("uf2: bad family ID: %q", name)
	}
	return uint32(u), nil
}

type block struct {
	Magic0 uint32
	Magic1 uint32
	Flags  uint32
	Addr   uint32
	Len    uint32
	Seq    uint32
	Total  uint32
	Family uint32
	Data   [PayloadSize]byte
	_      [476 - PayloadSize]byte
	Magic2 uint32
}

// Writer converts the bytes written to it into UF2 blocks placed at
// consecutive addresses.
type Writer struct {
	w io.Writer
	b block
}

// NewWriter returns a writer of an image of size bytes to be loaded at addr.
func NewWriter(w io.Writer, addr, flags, family uint32, size int) *Writer {
	u := new(Writer)
	u.w = w
	u.b.Magic0 = 0x0a324655
	u.b.Magic1 = 0x9e5d5157
	u.b.Flags = flags
	u.b.Addr = addr
	u.b.Total = uint32((size + len(u.b.Data) - 1) / len(u.b.Data))
	u.b.Family = family
	u.b.Magic2 = 0x0ab16f30
	return u
}

func (u *Writer) Write(p []byte) (n int, err error) {
	b := &u.b
	for len(p) != 0 {
		m := copy(b.Data[b.Len:], p)
		n += m
		p = p[m:]
		b.Len += uint32(m)
		if int(b.Len) == len(b.Data) {
			if err = u.emit(); err != nil {
				return
			}
		}
	}
	return
}

func (u *Writer) emit() error {
	b := &u.b
	err := binary.Write(u.w, binary.LittleEndian, b)
	b.Addr += b.Len
	b.Seq++
	b.Len = 0
	return err
}

// Flush writes the last, zero padded, block.
func (u *Writer) Flush() error {
	b := &u.b
	if b.Len == 0 {
		return nil
	}
	clear(b.Data[b.Len:])
	b.Len = uint32(len(b.Data))
	return u.emit()
}

// Encode writes data as a complete UF2 file to be loaded at addr.
func Encode(w io.Writer, addr, family uint32, data []byte) error {
	u := NewWriter(w, addr, FamilyIDPresent, family, len(data))
	if _, err := u.Write(data); err != nil {
		return err
	}
	return u.Flush()
}
