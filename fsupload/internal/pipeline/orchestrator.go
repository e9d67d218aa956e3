// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline builds the filesystem image and uploads it to the device
// by running the external tools of the board package one after another.
package pipeline

import (
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/tools"
)

// State is the state of an invocation.
type State int

const (
	Idle State = iota
	Resolving
	ToolLocating
	Building
	Converting
	Uploading
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Resolving:    "resolving",
	ToolLocating: "tool-locating",
	Building:     "building",
	Converting:   "converting",
	Uploading:    "uploading",
	Completed:    "completed",
	Failed:       "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

var ErrPreconditionMissing = errors.New("precondition missing")

// BuildImageName is the name of the image written beside the sketch when
// the image is only built.
const BuildImageName = "mklittlefs.bin"

// Job describes one invocation.
type Job struct {
	Board   *board.Context
	DataDir string // <sketch>/data if empty
	Upload  bool
	Auth    string // OTA password
}

// Orchestrator runs jobs. The zero value runs external processes with
// ExecRunner on the host platform.
type Orchestrator struct {
	Resolver layout.Resolver
	Runner   Runner
	Host     tools.Host
	Ready    *Readiness
	Log      *slog.Logger
	TempDir  string // os.TempDir() if empty

	// Exists is passed to the Planner.
	Exists func(name string) bool

	// OnState, if not nil, is called on every state change.
	OnState func(State)

	state State
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

func (o *Orchestrator) setState(s State) {
	o.log().Debug("state", "from", o.state, "to", s)
	o.state = s
	if o.OnState != nil {
		o.OnState(s)
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Run builds the filesystem image and, if job.Upload is set, uploads it.
// All progress is written to sink. A failing external process is reported
// as *ProcessError and stops the pipeline.
func (o *Orchestrator) Run(ctx context.Context, job *Job, sink Sink) (err error) {
	o.state = Idle
	if o.Ready != nil {
		if err := o.Ready.Wait(ctx, ReadyAttempts, ReadyInterval); err != nil {
			return err
		}
	}
	defer func() {
		if err != nil {
			o.setState(Failed)
			sink.Errorf("ERROR: %v", err)
		}
	}()

	o.setState(Resolving)
	c := job.Board
	if err := c.Check(); err != nil {
		return fmt.Errorf("%w: %w, compile the sketch once", ErrPreconditionMissing, err)
	}
	sink.Field("Sketch Path", c.SketchPath)
	dataDir := job.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(c.SketchPath, "data")
	}
	sink.Field("Data Path", dataDir)
	if !isDir(dataDir) {
		return fmt.Errorf("%w: no data folder found at %s", ErrPreconditionMissing, dataDir)
	}
	fam, err := layout.DetectFamily(c)
	if err != nil {
		return err
	}
	sink.Field("Device", fam.String())
	res, err := o.Resolver.Resolve(fam, c)
	if res != nil && res.PartitionFile != "" {
		sink.Field("Partitions", res.PartitionFile)
	}
	if err != nil {
		return err
	}
	if res.Duplicates != 0 {
		sink.Errorf("WARNING: %d more filesystem partitions in %s, using line %d",
			res.Duplicates, res.PartitionFile, res.FS.Line)
	}
	l := res.Layout
	sink.Field("Start", fmt.Sprintf("%#x", l.Start))
	sink.Field("End", fmt.Sprintf("%#x", l.End))

	o.setState(ToolLocating)
	refs := o.locate(fam, c.Properties, job.Upload, sink)

	image := filepath.Join(c.SketchPath, BuildImageName)
	if job.Upload {
		dir := o.TempDir
		if dir == "" {
			dir = os.TempDir()
		}
		image = filepath.Join(dir, uuid.NewString()+".littlefs.bin")
	}
	method, _ := c.Selected("uploadmethod")
	planner := &Planner{Host: o.Host, Props: c.Properties, Tools: refs, Exists: o.Exists}
	plan, err := planner.Plan(&Target{
		Family:  fam,
		Layout:  l,
		Method:  method,
		Port:    c.Port,
		Auth:    job.Auth,
		DataDir: dataDir,
		Image:   image,
		Upload:  job.Upload,
	})
	if err != nil {
		return err
	}
	if job.Upload {
		plan.Temp = append(plan.Temp, image)
	}
	defer o.cleanup(plan)
	return o.execute(plan, sink)
}

func (o *Orchestrator) locate(fam layout.Family, props *board.Properties, upload bool, sink Sink) map[string]tools.Ref {
	refs := make(map[string]tools.Ref)
	names := []string{tools.MkLittleFS}
	if upload {
		names = append(names, tools.Python3, tools.Platform)
		switch fam.Kind {
		case layout.RP2040, layout.RP2350:
			names = append(names, tools.Picotool, tools.OpenOCD)
		case layout.ESP32:
			names = append(names, tools.Esptool)
		case layout.ESP8266:
		}
	}
	for _, name := range names {
		r := tools.Find(props, name, fam.Kind)
		refs[name] = r
		if !r.Found() {
			o.log().Debug("tool not found in build properties", "tool", name)
			if name == tools.MkLittleFS {
				sink.Errorf("WARNING: %s not found, trying PATH", name)
			}
		}
	}
	return refs
}

func (o *Orchestrator) execute(plan *CommandPlan, sink Sink) error {
	runner := o.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	for _, ps := range plan.Steps() {
		switch ps.Step {
		case StepBuild:
			o.setState(Building)
			sink.Heading("Building LittleFS filesystem")
		case StepConvert:
			o.setState(Converting)
			sink.Heading("Converting LittleFS image")
		case StepUpload:
			o.setState(Uploading)
			sink.Heading("Uploading LittleFS filesystem")
		}
		sink.Field("Command Line", ps.String())
		code, err := runner.Run(ps, sink)
		if err != nil || code != 0 {
			return &ProcessError{Step: ps.Step, Code: code, Err: err}
		}
		if ps.Step == StepBuild {
			o.reportDigest(plan.Image, sink)
		}
	}
	o.setState(Completed)
	if plan.Upload != nil {
		sink.Heading("Completed upload.")
	} else {
		sink.Heading("Completed filesystem image: " + plan.Image)
	}
	return nil
}

func (o *Orchestrator) reportDigest(image string, sink Sink) {
	f, err := os.Open(image)
	if err != nil {
		o.log().Debug("image digest", "err", err)
		return
	}
	defer f.Close()
	d, err := digest.FromReader(f)
	if err != nil {
		o.log().Debug("image digest", "err", err)
		return
	}
	sink.Field("Image Digest", d.String())
}

func (o *Orchestrator) cleanup(plan *CommandPlan) {
	for _, name := range plan.Temp {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.log().Warn("cannot remove temporary file", "name", name, "err", err)
		}
	}
}

func isDir(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && fi.IsDir()
}
