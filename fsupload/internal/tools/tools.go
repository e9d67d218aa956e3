// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tools finds the external executables installed by the board
// package (mklittlefs, python3, esptool, picotool, openocd).
package tools

import (
	"path/filepath"
	"strings"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
)

// Locate returns the value of the first build property (in the order of
// props) whose key starts with prefix and whose value is not empty. It
// reports false if there is no such property.
func Locate(props *board.Properties, prefix string) (string, bool) {
	for _, k := range props.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v := props.Get(k); v != "" {
			return v, true
		}
	}
	return "", false
}

// Logical tool names.
const (
	MkLittleFS = "mklittlefs"
	Python3    = "python3"
	Esptool    = "esptool"
	Picotool   = "picotool"
	OpenOCD    = "openocd"
	Platform   = "platform"
)

var prefixes = map[string]map[layout.Kind]string{
	MkLittleFS: {
		layout.RP2040:  "runtime.tools.pqt-mklittlefs",
		layout.RP2350:  "runtime.tools.pqt-mklittlefs",
		layout.ESP32:   "runtime.tools.mklittlefs.path",
		layout.ESP8266: "runtime.tools.mklittlefs",
	},
	Python3: {
		layout.RP2040:  "runtime.tools.pqt-python3",
		layout.RP2350:  "runtime.tools.pqt-python3",
		layout.ESP32:   "runtime.tools.python3.path",
		layout.ESP8266: "runtime.tools.python3",
	},
	Esptool: {
		layout.ESP32: "runtime.tools.esptool_py.path",
	},
	Picotool: {
		layout.RP2040: "runtime.tools.pqt-picotool",
		layout.RP2350: "runtime.tools.pqt-picotool",
	},
	OpenOCD: {
		layout.RP2040: "runtime.tools.pqt-openocd",
		layout.RP2350: "runtime.tools.pqt-openocd",
	},
	Platform: {
		layout.RP2040:  "runtime.platform.path",
		layout.RP2350:  "runtime.platform.path",
		layout.ESP32:   "runtime.platform.path",
		layout.ESP8266: "runtime.platform.path",
	},
}

// Prefix returns the build property prefix used to find the tool for the
// device family.
func Prefix(tool string, k layout.Kind) (string, bool) {
	p, ok := prefixes[tool][k]
	return p, ok
}

// Ref is a located tool. Dir is the directory the tool was found in or an
// empty string if the tool is expected to be in PATH.
type Ref struct {
	Name string
	Dir  string
}

func (r Ref) Found() bool { return r.Dir != "" }

// Find locates the tool for the device family.
func Find(props *board.Properties, tool string, k layout.Kind) Ref {
	r := Ref{Name: tool}
	if p, ok := Prefix(tool, k); ok {
		r.Dir, _ = Locate(props, p)
	}
	return r
}

// Host describes the platform the tools run on.
type Host struct {
	GOOS string
}

// Exe returns the file name of the compiled tool on the host platform.
func (h Host) Exe(name string) string {
	if h.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// EsptoolExe returns the file name of esptool. It is shipped compiled on
// Windows and macOS and as a Python script on Linux.
func (h Host) EsptoolExe() string {
	switch h.GOOS {
	case "windows":
		return Esptool + ".exe"
	case "darwin":
		return Esptool
	default:
		return Esptool + ".py"
	}
}

// Path returns the path to the named file in the tool directory or the bare
// name if the tool wasn't found.
func (r Ref) Path(file string) string {
	if r.Dir == "" {
		return file
	}
	return filepath.Join(r.Dir, file)
}
