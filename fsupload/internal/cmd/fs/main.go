// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
	"github.com/embeddedgo/lfstools/fsupload/internal/console"
	"github.com/embeddedgo/lfstools/fsupload/internal/pipeline"
	"github.com/embeddedgo/lfstools/fsupload/internal/tools"
	"github.com/embeddedgo/lfstools/fsupload/internal/util"
)

const (
	DescrBuild  = "build the LittleFS image of the sketch data folder"
	DescrUpload = "build the LittleFS image and upload it to the board"
	DescrParts  = "show the filesystem partition and flash layout of the board"
)

// Options are the options common to all commands that need the board.
type Options struct {
	Board    string
	FQBN     string
	Port     string
	Protocol string
	Auth     string
	Data     string
	Verbose  bool
}

// AddFlags defines the common options in fs.
func (o *Options) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&o.Board, "board", "",
		"board description `file` (default "+board.FileName+
			" in the sketch directory or its parents)",
	)
	fs.StringVar(&o.FQBN, "fqbn", "", "override the fully qualified board name")
	fs.StringVar(&o.Port, "port", "", "upload port `address` (serial device or IP)")
	fs.StringVar(&o.Protocol, "protocol", "", "upload port protocol: serial or network")
	fs.StringVar(&o.Auth, "auth", "", "OTA `password`")
	fs.StringVar(&o.Data, "data", "", "data `directory` (default SKETCH/data)")
	fs.BoolVar(&o.Verbose, "v", false, "verbose logging")
}

// LoadBoard loads the board description of the sketch and applies the
// overrides given on the command line.
func (o *Options) LoadBoard(sketch string) (*board.Context, error) {
	if sketch == "" {
		sketch = "."
	}
	c, err := board.ForSketch(sketch, o.Board)
	if err != nil {
		return nil, err
	}
	if o.FQBN != "" {
		c.FQBN = o.FQBN
	}
	if o.Port != "" {
		c.Port = &board.Port{Address: o.Port, Protocol: "serial"}
	}
	if o.Protocol != "" && c.Port != nil {
		c.Port.Protocol = o.Protocol
	}
	return c, nil
}

func usage(fs *flag.FlagSet, cmd string) func() {
	return func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] [SKETCH]\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
}

func Main(cmd string, args []string) {
	var o Options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = usage(fs, cmd)
	o.AddFlags(fs)
	fs.Parse(args)
	if fs.NArg() > 1 {
		fs.Usage()
		os.Exit(1)
	}
	log := util.SetupLogger(o.Verbose)
	c, err := o.LoadBoard(fs.Arg(0))
	util.FatalErr(cmd, err)

	ready := new(pipeline.Readiness)
	con := console.New(os.Stdout, os.Stderr, ready)
	con.Open()
	defer con.Close()

	if cmd == "parts" {
		util.FatalErr(cmd, showParts(con, c, log))
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	orc := &pipeline.Orchestrator{
		Host:  tools.Host{GOOS: runtime.GOOS},
		Ready: ready,
		Log:   log,
	}
	orc.Resolver.Log = log
	err = orc.Run(ctx, &pipeline.Job{
		Board:   c,
		DataDir: o.Data,
		Upload:  cmd == "upload",
		Auth:    o.Auth,
	}, con)
	stop()
	exit(cmd, err)
}

// exit terminates the program with the exit code of the failed process, if
// any. Errors raised after the console opened have already been printed by
// the orchestrator, the others are printed here.
func exit(cmd string, err error) {
	if err == nil {
		return
	}
	code, printed := exitCode(err)
	if !printed {
		util.Warn("%s: %v", cmd, err)
	}
	os.Exit(code)
}

func exitCode(err error) (code int, printed bool) {
	printed = !errors.Is(err, pipeline.ErrSinkNotReady) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
	var pe *pipeline.ProcessError
	if errors.As(err, &pe) && pe.Code > 0 {
		return pe.Code, printed
	}
	return 1, printed
}
