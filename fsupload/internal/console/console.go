// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package console implements the output sink of the pipeline on top of the
// standard output and error streams.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/embeddedgo/lfstools/fsupload/internal/pipeline"
)

const labelWidth = 12

// Console writes styled progress text to out and error text to errOut.
// Process output is passed through unchanged: stdout to out, stderr to
// errOut. Writes are serialized.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	ready  *pipeline.Readiness
	closed bool

	label   lipgloss.Style
	value   lipgloss.Style
	heading lipgloss.Style
	failure lipgloss.Style
}

// New returns a console writing to out and errOut. Colors are used only if
// out is a terminal.
func New(out, errOut io.Writer, ready *pipeline.Readiness) *Console {
	r := lipgloss.NewRenderer(out)
	er := lipgloss.NewRenderer(errOut)
	return &Console{
		out:     out,
		errOut:  errOut,
		ready:   ready,
		label:   r.NewStyle().Foreground(lipgloss.Color("4")),
		value:   r.NewStyle().Foreground(lipgloss.Color("2")),
		heading: r.NewStyle().Bold(true),
		failure: er.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Open marks the console writable.
func (c *Console) Open() {
	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()
	if c.ready != nil {
		c.ready.Open()
	}
}

// Close marks the console closed. After Close progress text is dropped and
// process output writes fail with os.ErrClosed.
func (c *Console) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.ready != nil {
		c.ready.Close()
	}
	return nil
}

type writer struct {
	c *Console
	w io.Writer
}

func (w writer) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if w.c.closed {
		return 0, os.ErrClosed
	}
	return w.w.Write(p)
}

func (c *Console) Stdout() io.Writer { return writer{c, c.out} }
func (c *Console) Stderr() io.Writer { return writer{c, c.errOut} }

func (c *Console) println(w io.Writer, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	io.WriteString(w, s+"\n")
}

// Heading prints a bold title preceded by an empty line.
func (c *Console) Heading(title string) {
	c.println(c.out, "\n"+c.heading.Render(title))
}

// Field prints a right aligned label and its value.
func (c *Console) Field(label, value string) {
	pad := ""
	if n := labelWidth - len(label); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	c.println(c.out, pad+c.label.Render(label+":")+" "+c.value.Render(value))
}

// Errorf prints a red message to the error stream.
func (c *Console) Errorf(format string, args ...any) {
	c.println(c.errOut, c.failure.Render(fmt.Sprintf(format, args...)))
}

var _ pipeline.Sink = (*Console)(nil)
