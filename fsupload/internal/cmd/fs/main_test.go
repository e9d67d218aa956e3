// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/console"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/pipeline"
)

const esp32YAML = `
fqbn: esp32:esp32:esp32
build_properties:
  runtime.platform.path: %s
  build.mcu: esp32
  build.partitions: default
config_options:
  - option: PartitionScheme
    values:
      - value: default
        selected: true
port:
  address: /dev/ttyUSB0
  protocol: serial
`

const defaultCSV = `# Name,   Type, SubType, Offset,  Size, Flags
nvs,      data, nvs,     0x9000,  0x5000,
otadata,  data, ota,     0xe000,  0x2000,
app0,     app,  ota_0,   0x10000, 0x140000,
app1,     app,  ota_1,   0x150000,0x140000,
spiffs,   data, spiffs,  0x290000,0x160000,
coredump, data, coredump,0x3F0000,0x10000,
`

func writeSketch(t *testing.T) (sketch, boardFile string) {
	t.Helper()
	root := t.TempDir()
	platform := filepath.Join(root, "platform")
	if err := os.MkdirAll(filepath.Join(platform, "tools", "partitions"), 0o755); err != nil {
		t.Fatal(err)
	}
	err := os.WriteFile(filepath.Join(platform, "tools", "partitions", "default.csv"), []byte(defaultCSV), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	sketch = filepath.Join(root, "sketch")
	if err := os.MkdirAll(sketch, 0o755); err != nil {
		t.Fatal(err)
	}
	boardFile = filepath.Join(root, "esp32.yaml")
	yaml := strings.Replace(esp32YAML, "%s", platform, 1)
	if err := os.WriteFile(boardFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return sketch, boardFile
}

func TestLoadBoardOverrides(t *testing.T) {
	sketch, boardFile := writeSketch(t)
	var o Options
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	o.AddFlags(fs)
	err := fs.Parse([]string{
		"-board", boardFile, "-port", "192.168.1.7", "-protocol", "network",
		"-fqbn", "esp32:esp32:esp32s3", sketch,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := o.LoadBoard(fs.Arg(0))
	if err != nil {
		t.Fatal(err)
	}
	if c.FQBN != "esp32:esp32:esp32s3" {
		t.Errorf("FQBN = %q", c.FQBN)
	}
	if c.Port.Address != "192.168.1.7" || !c.Port.IsNetwork() {
		t.Errorf("Port = %+v", c.Port)
	}
	if c.SketchPath != sketch {
		t.Errorf("SketchPath = %q", c.SketchPath)
	}
}

func TestShowParts(t *testing.T) {
	sketch, boardFile := writeSketch(t)
	c, err := (&Options{Board: boardFile}).LoadBoard(sketch)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	con := console.New(&out, &out, nil)
	if err := showParts(con, c, nil); err != nil {
		t.Fatal(err)
	}
	o := out.String()
	for _, s := range []string{"ESP32 series", "default", "coredump", "0x290000", "0x3f0000", "1441792", "115200"} {
		if !strings.Contains(o, s) {
			t.Errorf("output lacks %q:\n%s", s, o)
		}
	}
}

func TestShowPartsNoFS(t *testing.T) {
	sketch, boardFile := writeSketch(t)
	c, err := (&Options{Board: boardFile}).LoadBoard(sketch)
	if err != nil {
		t.Fatal(err)
	}
	csv := strings.Replace(defaultCSV, "spiffs,   data, spiffs,", "app2,     app,  ota_2,", 1)
	if err := os.WriteFile(filepath.Join(sketch, "partitions.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	err = showParts(console.New(&out, &out, nil), c, nil)
	if !errors.Is(err, layout.ErrFilesystemPartitionNotFound) {
		t.Fatalf("got %v, want ErrFilesystemPartitionNotFound", err)
	}
	if !strings.Contains(out.String(), "app2") {
		t.Errorf("table not printed:\n%s", out.String())
	}
}

func TestShowPartsNoBoard(t *testing.T) {
	err := showParts(console.New(new(bytes.Buffer), new(bytes.Buffer), nil), &board.Context{}, nil)
	if !errors.Is(err, board.ErrNoBoard) {
		t.Fatalf("got %v", err)
	}
}

func TestShowPartsWarnsOnDuplicates(t *testing.T) {
	sketch, boardFile := writeSketch(t)
	c, err := (&Options{Board: boardFile}).LoadBoard(sketch)
	if err != nil {
		t.Fatal(err)
	}
	csv := defaultCSV + "fs2,      data, littlefs,0x400000,0x10000,\n"
	if err := os.WriteFile(filepath.Join(sketch, "partitions.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	stderr := captureStderr(t, func() {
		if err := showParts(console.New(new(bytes.Buffer), new(bytes.Buffer), nil), c, nil); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(stderr, "1 more filesystem partitions, using the one at line 8") {
		t.Fatalf("stderr: %q", stderr)
	}
}

// captureStderr returns what f writes to os.Stderr.
func captureStderr(t *testing.T, f func()) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "stderr")
	if err != nil {
		t.Fatal(err)
	}
	defer tmp.Close()
	saved := os.Stderr
	os.Stderr = tmp
	defer func() { os.Stderr = saved }()
	f()
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		printed bool
	}{
		{"process", &pipeline.ProcessError{Step: pipeline.StepUpload, Code: 2}, 2, true},
		{"not started", &pipeline.ProcessError{Step: pipeline.StepBuild, Code: -1}, 1, true},
		{"precondition", pipeline.ErrPreconditionMissing, 1, true},
		{"sink not ready", pipeline.ErrSinkNotReady, 1, false},
		{"interrupted", context.Canceled, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, printed := exitCode(tt.err)
			if code != tt.code || printed != tt.printed {
				t.Fatalf("exitCode = %d, %v, want %d, %v", code, printed, tt.code, tt.printed)
			}
		})
	}
}
