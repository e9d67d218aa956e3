// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/layout"
	"github.com/embeddedgo/lfstools/fsupload/internal/tools"
)

// Step identifies a stage of the pipeline.
type Step int

const (
	StepBuild Step = iota + 1
	StepConvert
	StepUpload
)

func (s Step) String() string {
	switch s {
	case StepBuild:
		return "mklittlefs"
	case StepConvert:
		return "conversion"
	case StepUpload:
		return "upload"
	}
	return "Step(" + strconv.Itoa(int(s)) + ")"
}

// ProcessSpec is a single external process invocation.
type ProcessSpec struct {
	Step       Step
	Executable string
	Args       []string
}

// String returns the command line as printed to the user.
func (p *ProcessSpec) String() string {
	return strings.Join(append([]string{p.Executable}, p.Args...), " ")
}

// CommandPlan is the ordered list of processes of one invocation. Convert
// and Upload are nil if not needed.
type CommandPlan struct {
	Build   ProcessSpec
	Convert *ProcessSpec
	Upload  *ProcessSpec

	Image string   // the image written by Build
	Temp  []string // files to remove after the invocation
}

// Steps returns the processes in execution order.
func (p *CommandPlan) Steps() []*ProcessSpec {
	steps := []*ProcessSpec{&p.Build}
	if p.Convert != nil {
		steps = append(steps, p.Convert)
	}
	if p.Upload != nil {
		steps = append(steps, p.Upload)
	}
	return steps
}

var ErrPortNotConfigured = errors.New("no port specified, check IDE menus")

// Target is everything the planner needs to know about the invocation.
type Target struct {
	Family  layout.Family
	Layout  layout.FlashLayout
	Method  string // selected uploadmethod menu value (Raspberry Pi only)
	Port    *board.Port
	Auth    string // OTA password
	DataDir string
	Image   string
	Upload  bool
}

// Default OTA ports.
const (
	picoOTAPort    = "2040"
	esp32OTAPort   = "3232"
	esp8266OTAPort = "8266"
)

// The RP2350 image is converted to UF2 by picotool if the major version of
// the core is greater than this.
const uf2ConvertAfter = 3

const openocdAdapterSpeed = "5000"

// Planner builds command plans.
type Planner struct {
	Host  tools.Host
	Props *board.Properties
	Tools map[string]tools.Ref

	// Exists reports whether the regular file exists. If nil the file
	// system is checked.
	Exists func(name string) bool
}

func (p *Planner) tool(name string) tools.Ref {
	if r, ok := p.Tools[name]; ok {
		return r
	}
	return tools.Ref{Name: name}
}

func (p *Planner) exists(name string) bool {
	if p.Exists != nil {
		return p.Exists(name)
	}
	fi, err := os.Stat(name)
	return err == nil && fi.Mode().IsRegular()
}

func (p *Planner) python() string {
	return p.tool(tools.Python3).Path(p.Host.Exe(tools.Python3))
}

// script returns the path to the platform's helper script.
func (p *Planner) script(name string) string {
	return p.tool(tools.Platform).Path(filepath.Join("tools", name))
}

func hexAddr(u uint32) string { return fmt.Sprintf("%#x", u) }

// Plan builds the command plan for t.
func (p *Planner) Plan(t *Target) (*CommandPlan, error) {
	l := t.Layout
	plan := &CommandPlan{
		Build: ProcessSpec{
			Step:       StepBuild,
			Executable: p.tool(tools.MkLittleFS).Path(p.Host.Exe(tools.MkLittleFS)),
			Args: []string{
				"-c", t.DataDir,
				"-p", strconv.FormatUint(uint64(l.Page), 10),
				"-b", strconv.FormatUint(uint64(l.Block), 10),
				"-s", strconv.FormatUint(uint64(l.Size()), 10),
				t.Image,
			},
		},
		Image: t.Image,
	}
	if !t.Upload {
		return plan, nil
	}
	var err error
	switch t.Family.Kind {
	case layout.RP2040, layout.RP2350:
		err = p.pico(t, plan)
	case layout.ESP32:
		err = p.esp32(t, plan)
	case layout.ESP8266:
		err = p.esp8266(t, plan)
	default:
		err = fmt.Errorf("%w (%v)", layout.ErrUnsupportedDevice, t.Family.Kind)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func needPort(t *Target) error {
	if t.Port == nil || t.Port.Address == "" {
		return ErrPortNotConfigured
	}
	return nil
}

func otaPort(t *Target, def string) string {
	if v := t.Port.Properties["port"]; v != "" {
		return v
	}
	return def
}

func otaArgs(t *Target, def string, extra ...string) []string {
	args := append(extra, "-i", t.Port.Address, "-p", otaPort(t, def))
	if t.Auth != "" {
		args = append(args, "--auth="+t.Auth)
	}
	return append(args, "-s", "-f", t.Image)
}

func isProbe(method string) bool {
	return strings.HasPrefix(method, "picoprobe") || strings.HasPrefix(method, "picodebug")
}

func probeInterface(method string) string {
	if method == "picoprobe" {
		return "interface/picoprobe.cfg"
	}
	return "interface/cmsis-dap.cfg"
}

func (p *Planner) pico(t *Target, plan *CommandPlan) error {
	start := t.Layout.Start
	target := "target/rp2040.cfg"
	family := "RP2040"
	if t.Family.Kind == layout.RP2350 {
		target = "target/rp2350.cfg"
		family = "RP2350_ARM_S"
	}
	switch {
	case t.Method == "picotool":
		plan.Upload = &ProcessSpec{
			Step:       StepUpload,
			Executable: p.tool(tools.Picotool).Path(p.Host.Exe(tools.Picotool)),
			Args:       []string{"load", t.Image, "-t", "bin", "-o", hexAddr(start), "-f", "-x"},
		}
	case isProbe(t.Method):
		ocd := p.tool(tools.OpenOCD)
		args := []string{"-f", probeInterface(t.Method), "-f", target}
		if ocd.Found() {
			args = append(args, "-s", filepath.Join(ocd.Dir, "share", "openocd", "scripts"))
		}
		args = append(args,
			"-c", "adapter speed "+openocdAdapterSpeed,
			"-c", "program "+filepath.ToSlash(t.Image)+" verify "+hexAddr(start)+" reset exit",
		)
		plan.Upload = &ProcessSpec{
			Step:       StepUpload,
			Executable: ocd.Path(p.Host.Exe(tools.OpenOCD)),
			Args:       args,
		}
	default:
		if err := needPort(t); err != nil {
			return err
		}
		if t.Port.IsNetwork() {
			plan.Upload = &ProcessSpec{
				Step:       StepUpload,
				Executable: p.python(),
				Args:       otaArgs(t, picoOTAPort, p.script("espota.py")),
			}
			return nil
		}
		image := t.Image
		if t.Family.Kind == layout.RP2350 && p.convertUF2() {
			image = t.Image + ".uf2"
			plan.Convert = &ProcessSpec{
				Step:       StepConvert,
				Executable: p.tool(tools.Picotool).Path(p.Host.Exe(tools.Picotool)),
				Args: []string{
					"uf2", "convert", t.Image, "-t", "bin", image,
					"-o", hexAddr(start), "--family", "data", "--abs-block",
				},
			}
			plan.Temp = append(plan.Temp, image)
		}
		plan.Upload = &ProcessSpec{
			Step:       StepUpload,
			Executable: p.python(),
			Args: []string{
				p.script("uf2conv.py"),
				"--base", hexAddr(start),
				"--serial", t.Port.Address,
				"--family", family,
				image,
			},
		}
	}
	return nil
}

// convertUF2 reports whether the core is new enough to need the RP2350
// image converted before the serial UF2 upload.
func (p *Planner) convertUF2() bool {
	v := strings.TrimPrefix(p.Props.Get("version"), "v")
	major, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(major)
	return err == nil && n > uf2ConvertAfter
}

func (p *Planner) esp32(t *Target, plan *CommandPlan) error {
	if err := needPort(t); err != nil {
		return err
	}
	if t.Port.IsNetwork() {
		up := &ProcessSpec{Step: StepUpload}
		if p.Host.GOOS == "windows" {
			up.Executable = p.script("espota.exe")
			up.Args = otaArgs(t, esp32OTAPort, "-r")
		} else {
			up.Executable = p.python()
			up.Args = otaArgs(t, esp32OTAPort, p.script("espota.py"), "-r")
		}
		plan.Upload = up
		return nil
	}
	args := []string{
		"--chip", t.Family.Variant,
		"--port", t.Port.Address,
		"--baud", strconv.FormatUint(uint64(t.Layout.UploadSpeed), 10),
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash", "-z",
		"--flash_mode", propOr(p.Props, "build.flash_mode", "keep"),
		"--flash_freq", propOr(p.Props, "build.flash_freq", "keep"),
		"--flash_size", "detect",
		hexAddr(t.Layout.Start), t.Image,
	}
	esptool := p.tool(tools.Esptool)
	up := &ProcessSpec{Step: StepUpload, Args: args}
	switch p.Host.GOOS {
	case "windows", "darwin":
		up.Executable = esptool.Path(p.Host.EsptoolExe())
	default:
		py := esptool.Path(p.Host.EsptoolExe())
		if esptool.Found() && p.exists(py) {
			up.Executable = p.python()
			up.Args = append([]string{py}, args...)
		} else {
			up.Executable = esptool.Path(tools.Esptool)
		}
	}
	plan.Upload = up
	return nil
}

func (p *Planner) esp8266(t *Target, plan *CommandPlan) error {
	if err := needPort(t); err != nil {
		return err
	}
	up := &ProcessSpec{Step: StepUpload, Executable: p.python()}
	if t.Port.IsNetwork() {
		up.Args = otaArgs(t, esp8266OTAPort, p.script("espota.py"))
	} else {
		up.Args = []string{
			p.script("upload.py"),
			"--chip", "esp8266",
			"--port", t.Port.Address,
			"--baud", strconv.FormatUint(uint64(t.Layout.UploadSpeed), 10),
			"write_flash", hexAddr(t.Layout.Start), t.Image,
		}
	}
	plan.Upload = up
	return nil
}

func propOr(p *board.Properties, key, def string) string {
	if v := p.Get(key); v != "" {
		return v
	}
	return def
}
