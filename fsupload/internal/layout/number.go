// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSize parses an offset or a size written as a hexadecimal (0x prefix),
// decimal or K/M suffixed (KiB/MiB multiplier, case insensitive) number.
// An empty string yields 0.
func ParseSize(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	mul := uint64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mul = 1024
	case 'm', 'M':
		mul = 1024 * 1024
	}
	num := s
	if mul != 1 {
		num = strings.TrimSpace(s[:len(s)-1])
	}
	var (
		u   uint64
		err error
	)
	if len(num) > 2 && (num[:2] == "0x" || num[:2] == "0X") {
		u, err = strconv.ParseUint(num[2:], 16, 64)
	} else {
		u, err = strconv.ParseUint(num, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	if u > math.MaxUint32/mul {
		return 0, fmt.Errorf("number %q out of range", s)
	}
	return uint32(u * mul), nil
}
