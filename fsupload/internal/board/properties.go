// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Properties is a read-mostly string map that remembers the order in which
// the keys were added. Build properties are produced by the host build system
// and the order of the source is the order of iteration.
type Properties struct {
	keys []string
	m    map[string]string
}

// NewProperties returns Properties initialized from the key, value pairs in
// kv. It panics if len(kv) is odd.
func NewProperties(kv ...string) *Properties {
	if len(kv)%2 != 0 {
		panic("board: odd number of arguments to NewProperties")
	}
	p := new(Properties)
	for i := 0; i < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// Set adds or replaces the value of the key. A replaced key keeps its
// original position.
func (p *Properties) Set(key, value string) {
	if p.m == nil {
		p.m = make(map[string]string)
	}
	if _, ok := p.m[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.m[key] = value
}

// Lookup returns the value of the key and reports whether it was present.
func (p *Properties) Lookup(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.m[key]
	return v, ok
}

// Get returns the value of the key or an empty string.
func (p *Properties) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Keys returns the keys in insertion order. The returned slice must not be
// modified.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return p.keys
}

func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// UnmarshalYAML accepts a mapping or a sequence of "key=value" strings (the
// form printed by arduino-cli board details).
func (p *Properties) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: property %s: scalar value expected", v.Line, k.Value)
			}
			p.Set(k.Value, v.Value)
		}
	case yaml.SequenceNode:
		for _, e := range n.Content {
			if e.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: key=value string expected", e.Line)
			}
			k, v, ok := strings.Cut(e.Value, "=")
			if !ok {
				return fmt.Errorf("line %d: missing '=' in %q", e.Line, e.Value)
			}
			p.Set(k, v)
		}
	default:
		return fmt.Errorf("line %d: build properties must be a mapping or a sequence", n.Line)
	}
	return nil
}
