// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// Sink receives the output of the pipeline. Stdout and Stderr receive the
// output of the external processes as it is produced. The other methods
// print progress information.
type Sink interface {
	Stdout() io.Writer
	Stderr() io.Writer
	Heading(title string)
	Field(label, value string)
	Errorf(format string, args ...any)
}

// Runner runs a single process to completion and returns its exit code.
type Runner interface {
	Run(spec *ProcessSpec, sink Sink) (int, error)
}

// ProcessError is returned when an external process cannot be started or
// exits with a non-zero code.
type ProcessError struct {
	Step Step
	Code int
	Err  error // set if the process couldn't be run at all
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%v failed, error code: %d", e.Step, e.Code)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ExecRunner runs processes using os/exec.
type ExecRunner struct {
	Dir string // working directory, the current one if empty
}

func (r ExecRunner) Run(spec *ProcessSpec, sink Sink) (int, error) {
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = r.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}
	if err = cmd.Start(); err != nil {
		return -1, err
	}
	// Both pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error { return forward(sink.Stdout(), stdout) })
	g.Go(func() error { return forward(sink.Stderr(), stderr) })
	fwdErr := g.Wait()
	if err = cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return ee.ExitCode(), nil
		}
		return -1, err
	}
	return 0, fwdErr
}

func forward(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	if err != nil {
		// Keep the process running even if the sink is gone.
		io.Copy(io.Discard, r)
	}
	return err
}
