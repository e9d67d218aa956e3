// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/tools"
	"github.com/google/go-cmp/cmp"
)

// bufSink collects everything written to it.
type bufSink struct {
	mu       sync.Mutex
	out, err bytes.Buffer
	lines    []string
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func (s *bufSink) Stdout() io.Writer { return lockedWriter{&s.mu, &s.out} }
func (s *bufSink) Stderr() io.Writer { return lockedWriter{&s.mu, &s.err} }

func (s *bufSink) add(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *bufSink) Heading(title string)      { s.add("# " + title) }
func (s *bufSink) Field(label, value string) { s.add(label + ": " + value) }
func (s *bufSink) Errorf(f string, a ...any) { s.add(fmt.Sprintf(f, a...)) }

func (s *bufSink) text() string { return strings.Join(s.lines, "\n") }

// fakeRunner records the processes and returns the exit codes from codes.
// The build step writes a small image so the digest can be computed.
type fakeRunner struct {
	codes map[Step]int
	ran   []ProcessSpec
}

func (r *fakeRunner) Run(spec *ProcessSpec, sink Sink) (int, error) {
	r.ran = append(r.ran, *spec)
	if spec.Step == StepBuild {
		img := spec.Args[len(spec.Args)-1]
		if err := os.WriteFile(img, []byte("littlefs"), 0o644); err != nil {
			return -1, err
		}
	}
	fmt.Fprintf(sink.Stdout(), "running %v\n", spec.Step)
	return r.codes[spec.Step], nil
}

func picoJob(t *testing.T) *Job {
	sketch := t.TempDir()
	if err := os.Mkdir(filepath.Join(sketch, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	return &Job{
		Board: &board.Context{
			FQBN:       "rp2040:rp2040:rpipico",
			SketchPath: sketch,
			Properties: board.NewProperties(
				"runtime.platform.path", "/pico",
				"runtime.tools.pqt-python3.path", "/pqt/python3",
				"runtime.tools.pqt-mklittlefs.path", "/pqt/mklittlefs",
				"menu.flash.2097152_1048576.build.fs_start", "268435456",
				"menu.flash.2097152_1048576.build.fs_end", "269484032",
			),
			Options: []board.ConfigOption{
				{Option: "flash", Values: []board.OptionValue{{Value: "2097152_1048576", Selected: true}}},
				{Option: "baud", Values: []board.OptionValue{{Value: "115200", Selected: true}}},
			},
			Port: &board.Port{Address: "/dev/ttyACM0", Protocol: "serial"},
		},
		Upload: true,
	}
}

func TestRunPicoUF2(t *testing.T) {
	job := picoJob(t)
	runner := &fakeRunner{}
	var states []State
	o := &Orchestrator{
		Runner:  runner,
		Host:    tools.Host{GOOS: "linux"},
		TempDir: t.TempDir(),
		OnState: func(s State) { states = append(states, s) },
	}
	sink := new(bufSink)
	if err := o.Run(context.Background(), job, sink); err != nil {
		t.Fatalf("%v\n%s", err, sink.text())
	}
	if len(runner.ran) != 2 {
		t.Fatalf("ran %d processes", len(runner.ran))
	}
	build, upload := runner.ran[0], runner.ran[1]
	img := build.Args[len(build.Args)-1]
	if filepath.Dir(img) != o.TempDir || !strings.HasSuffix(img, ".littlefs.bin") {
		t.Fatalf("image %s is not a fresh temporary file", img)
	}
	if diff := cmp.Diff([]string{"-s", "1048576", img}, build.Args[6:]); diff != "" {
		t.Errorf("build args tail (-want +got):\n%s", diff)
	}
	wantUpload := []string{
		filepath.Join("/pico", "tools", "uf2conv.py"),
		"--base", "0x10000000", "--serial", "/dev/ttyACM0", "--family", "RP2040", img,
	}
	if diff := cmp.Diff(wantUpload, upload.Args); diff != "" {
		t.Errorf("upload args (-want +got):\n%s", diff)
	}
	if upload.Executable != filepath.Join("/pqt/python3", "python3") {
		t.Errorf("upload executable %q", upload.Executable)
	}
	wantStates := []State{Resolving, ToolLocating, Building, Uploading, Completed}
	if diff := cmp.Diff(wantStates, states); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Errorf("temporary image not removed: %v", err)
	}
	if !strings.Contains(sink.text(), "Image Digest: sha256:") {
		t.Errorf("no digest reported:\n%s", sink.text())
	}
	if sink.out.String() != "running mklittlefs\nrunning upload\n" {
		t.Errorf("process output %q", sink.out.String())
	}
}

func TestRunBuildOnlyWritesBesideSketch(t *testing.T) {
	job := picoJob(t)
	job.Upload = false
	job.Board.Port = nil
	runner := &fakeRunner{}
	o := &Orchestrator{Runner: runner}
	sink := new(bufSink)
	if err := o.Run(context.Background(), job, sink); err != nil {
		t.Fatalf("%v\n%s", err, sink.text())
	}
	if len(runner.ran) != 1 {
		t.Fatalf("ran %d processes", len(runner.ran))
	}
	want := filepath.Join(job.Board.SketchPath, BuildImageName)
	if got := runner.ran[0].Args[len(runner.ran[0].Args)-1]; got != want {
		t.Fatalf("image = %s, want %s", got, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("built image removed: %v", err)
	}
	if o.State() != Completed {
		t.Fatalf("state = %v", o.State())
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	for _, step := range []Step{StepBuild, StepUpload} {
		t.Run(step.String(), func(t *testing.T) {
			runner := &fakeRunner{codes: map[Step]int{step: 3}}
			o := &Orchestrator{Runner: runner, TempDir: t.TempDir()}
			sink := new(bufSink)
			err := o.Run(context.Background(), picoJob(t), sink)
			var pe *ProcessError
			if !errors.As(err, &pe) {
				t.Fatalf("got %v, want *ProcessError", err)
			}
			if pe.Step != step || pe.Code != 3 {
				t.Fatalf("got %+v", pe)
			}
			if last := runner.ran[len(runner.ran)-1]; last.Step != step {
				t.Fatalf("a step ran after the failing %v: %v", step, last.Step)
			}
			if o.State() != Failed {
				t.Fatalf("state = %v", o.State())
			}
			if !strings.Contains(sink.text(), "error code: 3") {
				t.Fatalf("failure not reported:\n%s", sink.text())
			}
		})
	}
}

func TestRunMissingDataFolder(t *testing.T) {
	job := picoJob(t)
	if err := os.Remove(filepath.Join(job.Board.SketchPath, "data")); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	o := &Orchestrator{Runner: runner}
	sink := new(bufSink)
	err := o.Run(context.Background(), job, sink)
	if !errors.Is(err, ErrPreconditionMissing) {
		t.Fatalf("got %v, want ErrPreconditionMissing", err)
	}
	if len(runner.ran) != 0 {
		t.Fatalf("%d processes spawned", len(runner.ran))
	}
	if !strings.Contains(sink.text(), "no data folder found") {
		t.Fatalf("error not reported:\n%s", sink.text())
	}
}

func TestRunFailsBeforeSpawning(t *testing.T) {
	tests := []struct {
		name   string
		modify func(j *Job)
		want   error
	}{
		{"no board", func(j *Job) { j.Board.Properties = nil }, ErrPreconditionMissing},
		{"unsupported", func(j *Job) { j.Board.FQBN = "arduino:avr:uno" }, layout.ErrUnsupportedDevice},
		{"no flash", func(j *Job) { j.Board.Options = nil }, layout.ErrInvalidLayout},
		{"no port", func(j *Job) { j.Board.Port = nil }, ErrPortNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := picoJob(t)
			tt.modify(job)
			runner := &fakeRunner{}
			o := &Orchestrator{Runner: runner}
			err := o.Run(context.Background(), job, new(bufSink))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if len(runner.ran) != 0 {
				t.Fatalf("%d processes spawned", len(runner.ran))
			}
		})
	}
}

func TestRunESP32(t *testing.T) {
	platform := t.TempDir()
	parts := filepath.Join(platform, "tools", "partitions")
	if err := os.MkdirAll(parts, 0o755); err != nil {
		t.Fatal(err)
	}
	csv := "nvs,data,nvs,0x9000,0x5000,\nspiffs,data,spiffs,0x290000,0x160000,\n"
	if err := os.WriteFile(filepath.Join(parts, "default.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	job := picoJob(t)
	job.Board.FQBN = "esp32:esp32:esp32"
	job.Board.Options = nil
	job.Board.Port = &board.Port{Address: "/dev/ttyUSB0", Protocol: "serial"}
	job.Board.Properties = board.NewProperties(
		"runtime.platform.path", platform,
		"build.mcu", "esp32",
		"build.partitions", "default",
		"build.flash_mode", "dio",
		"build.flash_freq", "80m",
		"upload.speed", "921600",
		"runtime.tools.esptool_py.path", "/esp/esptool",
	)
	runner := &fakeRunner{}
	o := &Orchestrator{
		Runner:  runner,
		Host:    tools.Host{GOOS: "darwin"},
		TempDir: t.TempDir(),
	}
	if err := o.Run(context.Background(), job, new(bufSink)); err != nil {
		t.Fatal(err)
	}
	img := runner.ran[0].Args[len(runner.ran[0].Args)-1]
	if diff := cmp.Diff([]string{"-s", fmt.Sprint(0x160000), img}, runner.ran[0].Args[6:]); diff != "" {
		t.Errorf("build args tail (-want +got):\n%s", diff)
	}
	up := runner.ran[1]
	if up.Executable != filepath.Join("/esp/esptool", "esptool") {
		t.Errorf("executable %q", up.Executable)
	}
	tail := up.Args[len(up.Args)-6:]
	if diff := cmp.Diff([]string{"--flash_size", "detect", "0x290000", img}, tail[2:]); diff != "" {
		t.Errorf("upload args tail (-want +got):\n%s", diff)
	}
	if up.Args[0] != "--chip" || up.Args[1] != "esp32" || up.Args[5] != "921600" {
		t.Errorf("upload args %v", up.Args)
	}
}

func TestRunWaitsForSink(t *testing.T) {
	o := &Orchestrator{Runner: &fakeRunner{}, Ready: new(Readiness)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx, picoJob(t), new(bufSink)); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
