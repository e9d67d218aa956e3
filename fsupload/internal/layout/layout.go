// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout resolves the flash region reserved for the filesystem image
// of the target board together with the page and block geometry of the
// filesystem.
package layout

import (
	"errors"
	"fmt"
)

var (
	ErrPartitionFileNotFound       = errors.New("partition file not found")
	ErrFilesystemPartitionNotFound = errors.New("filesystem partition entry not found in the partition table")
	ErrInvalidLayout               = errors.New("no filesystem specified, check the flash size menu")
)

// FlashLayout describes the filesystem region. Use New to create a valid
// one.
type FlashLayout struct {
	Start       uint32
	End         uint32
	Page        uint32
	Block       uint32
	UploadSpeed uint32
}

// New returns the layout if start, end, page and block are all non-zero and
// end > start. Otherwise it returns an error wrapping ErrInvalidLayout.
func New(start, end, page, block, uploadSpeed uint32) (FlashLayout, error) {
	if start == 0 || end == 0 || page == 0 || block == 0 || end <= start {
		return FlashLayout{}, fmt.Errorf(
			"%w (start=%#x end=%#x page=%d block=%d)",
			ErrInvalidLayout, start, end, page, block,
		)
	}
	return FlashLayout{start, end, page, block, uploadSpeed}, nil
}

// Size returns the size of the filesystem image.
func (l FlashLayout) Size() uint32 { return l.End - l.Start }
