// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bin

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/embeddedgo/lfstools/fsupload/internal/cmd/fs"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/uf2"
	"github.com/embeddedgo/lfstools/fsupload/internal/util"
)

const (
	DescrHex = "convert a filesystem image to the Intel HEX format"
	DescrUF2 = "convert a filesystem image to the UF2 format"
)

func Main(cmd string, args []string) {
	flags := flag.NewFlagSet(cmd, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] IMAGE [%s]\nOptions:\n",
			cmd, strings.ToUpper(cmd),
		)
		flags.PrintDefaults()
	}
	var o fs.Options
	o.AddFlags(flags)
	addr := flags.String(
		"addr", "",
		"load `address` of the image (default: start of the filesystem\n"+
			"area of the board)",
	)
	var family string
	if cmd == "uf2" {
		flags.StringVar(
			&family, "family", "",
			"UF2 family `ID` (32-bit number) or a known family name:\n"+
				strings.Join(slices.Sorted(maps.Keys(uf2.Families)), "\n"),
		)
	}
	flags.Parse(args)
	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		os.Exit(1)
	}
	log := util.SetupLogger(o.Verbose)
	image := flags.Arg(0)
	out := util.OutFile(image, flags.Arg(1), "."+cmd)

	var fam layout.Family
	start, err := layout.ParseSize(*addr)
	util.FatalErr("addr", err)
	if *addr == "" || cmd == "uf2" && family == "" {
		// The sketch directory is where the build command left the image.
		c, err := o.LoadBoard(filepath.Dir(image))
		util.FatalErr(cmd, err)
		util.FatalErr(cmd, c.Check())
		fam, err = layout.DetectFamily(c)
		util.FatalErr(cmd, err)
		if *addr == "" {
			r := layout.Resolver{Log: log}
			res, err := r.Resolve(fam, c)
			util.FatalErr(cmd, err)
			start = res.Layout.Start
			log.Debug("filesystem address from board", "addr", fmt.Sprintf("%#x", start))
		}
	}
	data, err := os.ReadFile(image)
	util.FatalErr("", err)
	if len(data) == 0 {
		util.Fatal("%s: empty image", image)
	}
	of, err := os.Create(out)
	util.FatalErr("", err)
	defer of.Close()
	w := bufio.NewWriter(of)
	switch cmd {
	case "hex":
		err = writeHex(w, start, data)
	case "uf2":
		var id uint32
		if family == "" {
			family, err = DefaultFamily(fam)
			util.FatalErr(cmd, err)
		}
		id, err = uf2.FamilyID(family)
		util.FatalErr(cmd, err)
		err = uf2.Encode(w, start, id, data)
	}
	util.FatalErr(cmd, err)
	util.FatalErr("", w.Flush())
}

// ErrNoFamily is returned for boards without a UF2 bootloader.
var ErrNoFamily = errors.New("no UF2 family known for the device, use -family")

// DefaultFamily returns the UF2 family of a filesystem image for fam.
func DefaultFamily(fam layout.Family) (string, error) {
	switch fam.Kind {
	case layout.RP2040:
		return "rp2040", nil
	case layout.RP2350:
		return "data", nil
	case layout.ESP32:
		if _, ok := uf2.Families[fam.Variant]; ok {
			return fam.Variant, nil
		}
	}
	return "", fmt.Errorf("%w (%v)", ErrNoFamily, fam)
}

func writeHex(w io.Writer, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return err
	}
	return mem.DumpIntelHex(w, 16)
}

