// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board describes the target board the way the host build system
// sees it: the fully qualified board name, the flattened build properties,
// the menu options and the selected upload port.
package board

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OptionValue is one entry of a board menu.
type OptionValue struct {
	Value    string `yaml:"value"`
	Label    string `yaml:"value_label,omitempty"`
	Selected bool   `yaml:"selected,omitempty"`
}

// ConfigOption is a board menu (flash size, upload method, baud rate...).
type ConfigOption struct {
	Option string        `yaml:"option"`
	Label  string        `yaml:"option_label,omitempty"`
	Values []OptionValue `yaml:"values"`
}

// Selected returns the selected value of the option. At most one value is
// selected. If none is, the option contributes nothing.
func (o *ConfigOption) Selected() (string, bool) {
	for _, v := range o.Values {
		if v.Selected {
			return v.Value, true
		}
	}
	return "", false
}

// Port is the upload port chosen by the user.
type Port struct {
	Address    string            `yaml:"address"`
	Protocol   string            `yaml:"protocol"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// IsNetwork reports whether the port is an OTA (network) port.
func (p *Port) IsNetwork() bool {
	return p != nil && p.Protocol == "network"
}

// Context is the board metadata of one invocation.
type Context struct {
	FQBN       string         `yaml:"fqbn"`
	SketchPath string         `yaml:"sketch_path,omitempty"`
	Properties *Properties    `yaml:"build_properties"`
	Options    []ConfigOption `yaml:"config_options"`
	Port       *Port          `yaml:"port,omitempty"`
}

// ErrNoBoard is returned when the board data needed by the resolver is
// missing. The user must compile the sketch once (or export the board
// details) to get it.
var ErrNoBoard = errors.New("board details not available")

// Option returns the option with the given name.
func (c *Context) Option(name string) (*ConfigOption, bool) {
	for i := range c.Options {
		if c.Options[i].Option == name {
			return &c.Options[i], true
		}
	}
	return nil, false
}

// Selected returns the selected value of the named option.
func (c *Context) Selected(name string) (string, bool) {
	o, ok := c.Option(name)
	if !ok {
		return "", false
	}
	return o.Selected()
}

// Arch returns the second colon-delimited segment of the FQBN.
func (c *Context) Arch() string {
	s := strings.Split(c.FQBN, ":")
	if len(s) < 2 {
		return ""
	}
	return s[1]
}

// Check returns ErrNoBoard if c lacks the FQBN or the build properties.
func (c *Context) Check() error {
	if c == nil || c.FQBN == "" || c.Properties.Len() == 0 {
		return ErrNoBoard
	}
	return nil
}

// Decode parses a board description. Both YAML and the JSON produced by
// arduino-cli board details --format json are accepted.
func Decode(data []byte) (*Context, error) {
	c := new(Context)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(false)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoBoard
		}
		return nil, err
	}
	if c.Properties == nil {
		c.Properties = new(Properties)
	}
	return c, nil
}

// Load reads the board description from the named file.
func Load(name string) (*Context, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}
