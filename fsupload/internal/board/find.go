// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the board description file searched for by Find.
const FileName = "board.yaml"

// Find looks for the board description file in dir and its parent
// directories. It returns an empty string if there is no such file.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		name := filepath.Join(dir, FileName)
		fi, err := os.Stat(name)
		if err == nil {
			if !fi.Mode().IsRegular() {
				return "", fmt.Errorf("%s is not a regular file", name)
			}
			return name, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ForSketch loads the board description of the sketch in dir. If name is
// empty the file is searched for with Find. The sketch path recorded in the
// file is replaced by dir.
func ForSketch(dir, name string) (*Context, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if name, err = Find(dir); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%w: no %s in %s or its parents", ErrNoBoard, FileName, dir)
		}
	}
	c, err := Load(name)
	if err != nil {
		return nil, err
	}
	c.SketchPath = dir
	return c, nil
}
