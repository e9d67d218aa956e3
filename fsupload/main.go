// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Fsupload builds LittleFS images of Arduino sketch data folders and uploads
// them to RP2040, RP2350, ESP32 and ESP8266 boards.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/embeddedgo/lfstools/fsupload/internal/cmd/bin"
	"github.com/embeddedgo/lfstools/fsupload/internal/cmd/fs"
)

type tool struct {
	descr string
	main  func(cmd string, args []string)
}

var tools = map[string]tool{
	"build":  {fs.DescrBuild, fs.Main},
	"upload": {fs.DescrUpload, fs.Main},
	"parts":  {fs.DescrParts, fs.Main},
	"hex":    {bin.DescrHex, bin.Main},
	"uf2":    {bin.DescrUF2, bin.Main},
}

func printToolList() {
	names := slices.Sorted(maps.Keys(tools))
	maxLen := 0
	for _, k := range names {
		if maxLen < len(k) {
			maxLen = len(k)
		}
	}
	uw := os.Stderr
	uw.WriteString("Usage:\n  fsupload COMMAND [ARGUMENTS]\n\n")
	uw.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(uw, "  %*s  %s\n", maxLen, name, tools[name].descr)
	}
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" {
		printToolList()
		return
	}
	cmd := os.Args[1]
	tool, ok := tools[cmd]
	if !ok {
		printToolList()
		os.Exit(1)
	}
	tool.main(cmd, os.Args[2:])
}
