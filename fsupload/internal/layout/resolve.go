// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
)

const DefaultUploadSpeed = 115200

// Fixed filesystem geometry of the Raspberry Pi and ESP32 cores.
const (
	fixedPage  = 256
	fixedBlock = 4096
)

// Resolution is the result of Resolve with the decisions made on the way.
type Resolution struct {
	Family Family
	Layout FlashLayout

	// ESP32 only.
	PartitionFile string
	Scheme        string // "partitions.csv in sketch folder" or the scheme name
	Partitions    []Partition
	FS            *Partition
	Duplicates    int // other filesystem partitions, ignored
}

// Resolver resolves the flash layout of the filesystem.
type Resolver struct {
	Table Table
	Log   *slog.Logger
}

func (r *Resolver) log() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

// Resolve determines the filesystem layout of the board described by c.
// ESP32 boards are resolved from their partition table, the others from the
// selected flash size menu.
func (r *Resolver) Resolve(fam Family, c *board.Context) (*Resolution, error) {
	res := &Resolution{Family: fam}
	var (
		start, end, page, block uint32
		speed                   uint32 = DefaultUploadSpeed
		err                     error
	)
	switch fam.Kind {
	case ESP32:
		start, end, err = r.partition(c, res)
		if err != nil {
			return res, err
		}
		if v := c.Properties.Get("upload.speed"); v != "" {
			s, err := ParseSize(v)
			if err != nil || s == 0 {
				r.log().Warn(
					"bad upload.speed, using the default",
					"value", v, "default", speed,
				)
			} else {
				speed = s
			}
		}
		page, block = fixedPage, fixedBlock
	case RP2040, RP2350, ESP8266:
		start, end, page, block, err = r.menu(fam, c)
		if err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("%w (%v)", ErrUnsupportedDevice, fam.Kind)
	}
	if v, ok := c.Selected(baudOption(fam)); ok {
		s, err := ParseSize(v)
		if err != nil {
			return res, fmt.Errorf("baud rate: %w", err)
		}
		speed = s
	}
	res.Layout, err = New(start, end, page, block, speed)
	if err != nil {
		return res, err
	}
	r.log().Debug(
		"flash layout resolved", "family", fam.Kind,
		"start", hex(start), "end", hex(end), "page", page, "block", block,
		"speed", speed,
	)
	return res, nil
}

func baudOption(fam Family) string {
	if fam.Kind == ESP32 {
		return "UploadSpeed"
	}
	return "baud"
}

func (r *Resolver) menu(fam Family, c *board.Context) (start, end, page, block uint32, err error) {
	opt := "flash"
	if fam.Kind == ESP8266 {
		opt = "eesz"
	}
	v, ok := c.Selected(opt)
	if !ok {
		r.log().Debug("no flash size selected", "option", opt)
		return
	}
	prefix := "menu." + opt + "." + v + ".build."
	prop := func(keys ...string) uint32 {
		if err != nil {
			return 0
		}
		for _, k := range keys {
			s, ok := c.Properties.Lookup(prefix + k)
			if !ok {
				continue
			}
			var u uint32
			u, err = ParseSize(s)
			if err != nil {
				err = fmt.Errorf("%w: %s%s: %w", ErrInvalidLayout, prefix, k, err)
			}
			return u
		}
		return 0
	}
	start = prop("fs_start", "spiffs_start")
	end = prop("fs_end", "spiffs_end")
	switch fam.Kind {
	case ESP8266:
		page = prop("spiffs_pagesize")
		block = prop("spiffs_blocksize")
	case RP2040, RP2350:
		page, block = fixedPage, fixedBlock
	}
	return
}

func (r *Resolver) partition(c *board.Context, res *Resolution) (start, end uint32, err error) {
	res.PartitionFile, res.Scheme, err = PartitionFile(c)
	if err != nil {
		return
	}
	r.log().Debug("partition table", "file", res.PartitionFile, "scheme", res.Scheme)
	res.Partitions, err = r.Table.ParseFile(res.PartitionFile)
	if err != nil {
		return
	}
	res.FS, res.Duplicates = FindFS(res.Partitions)
	if res.FS == nil {
		err = fmt.Errorf("%s: %w", res.PartitionFile, ErrFilesystemPartitionNotFound)
		return
	}
	if res.Duplicates != 0 {
		r.log().Warn(
			"more than one filesystem partition, using the last one",
			"file", res.PartitionFile, "line", res.FS.Line,
		)
	}
	return res.FS.Offset, res.FS.End(), nil
}

// SketchPartitions is the name of the partition table that overrides the
// board's scheme when present in the sketch directory.
const SketchPartitions = "partitions.csv"

// PartitionFile returns the partition table used by an ESP32 board: the
// sketch's partitions.csv, or the table of the selected partition scheme,
// or the board's default one.
func PartitionFile(c *board.Context) (name, scheme string, err error) {
	if c.SketchPath != "" {
		name = filepath.Join(c.SketchPath, SketchPartitions)
		if fileExists(name) {
			return name, "partitions.csv in sketch folder", nil
		}
	}
	if v, ok := c.Selected("PartitionScheme"); ok {
		scheme = c.Properties.Get("menu.PartitionScheme." + v + ".build.partitions")
	}
	if scheme == "" {
		scheme = c.Properties.Get("build.partitions")
	}
	if scheme == "" {
		return "", "", fmt.Errorf("%w: no board partition scheme found", ErrPartitionFileNotFound)
	}
	name = filepath.Join(
		c.Properties.Get("runtime.platform.path"),
		"tools", "partitions", scheme+".csv",
	)
	if !fileExists(name) {
		return name, scheme, fmt.Errorf("%w: %s", ErrPartitionFileNotFound, name)
	}
	return name, scheme, nil
}

func fileExists(name string) bool {
	fi, err := os.Stat(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("stat", "name", name, "err", err)
		}
		return false
	}
	return fi.Mode().IsRegular()
}

func hex(u uint32) string { return fmt.Sprintf("%#x", u) }
