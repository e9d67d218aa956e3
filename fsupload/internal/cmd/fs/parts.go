// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/pipeline"
	"github.com/embeddedgo/lfstools/fsupload/internal/util"
)

func showParts(sink pipeline.Sink, c *board.Context, log *slog.Logger) error {
	if err := c.Check(); err != nil {
		return err
	}
	fam, err := layout.DetectFamily(c)
	if err != nil {
		return err
	}
	sink.Field("Device", fam.String())
	r := layout.Resolver{Log: log}
	res, err := r.Resolve(fam, c)
	if res.PartitionFile != "" {
		sink.Field("Scheme", res.Scheme)
		sink.Field("Partitions", res.PartitionFile)
	}
	if len(res.Partitions) != 0 {
		writeTable(sink.Stdout(), res.Partitions, res.FS)
	}
	if err != nil {
		return err
	}
	if res.Duplicates != 0 {
		util.Warn(
			"%s: %d more filesystem partitions, using the one at line %d",
			res.PartitionFile, res.Duplicates, res.FS.Line,
		)
	}
	l := res.Layout
	sink.Field("Start", fmt.Sprintf("%#x", l.Start))
	sink.Field("End", fmt.Sprintf("%#x", l.End))
	sink.Field("Size", strconv.FormatUint(uint64(l.Size()), 10))
	sink.Field("Page", strconv.FormatUint(uint64(l.Page), 10))
	sink.Field("Block", strconv.FormatUint(uint64(l.Block), 10))
	sink.Field("Upload Speed", strconv.FormatUint(uint64(l.UploadSpeed), 10))
	return nil
}

// writeTable prints the partitions with their effective offsets. The
// filesystem partition is marked with an asterisk.
func writeTable(w io.Writer, parts []layout.Partition, fs *layout.Partition) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "Name", "Type", "SubType", "Offset", "Size", "Line")
	for i := range parts {
		p := &parts[i]
		mark := ""
		if fs != nil && p.Line == fs.Line {
			mark = "*"
		}
		t.Row(
			mark, p.Name, p.Type, p.SubType,
			fmt.Sprintf("%#x", p.Offset), fmt.Sprintf("%#x", p.Size),
			strconv.Itoa(p.Line),
		)
	}
	io.WriteString(w, t.String()+"\n")
}
