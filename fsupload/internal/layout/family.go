// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/embeddedgo/lfstools/fsupload/internal/board"
)

// Kind enumerates the supported device families.
type Kind int

const (
	RP2040 Kind = iota + 1
	RP2350
	ESP32
	ESP8266
)

func (k Kind) String() string {
	switch k {
	case RP2040:
		return "RP2040"
	case RP2350:
		return "RP2350"
	case ESP32:
		return "ESP32"
	case ESP8266:
		return "ESP8266"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Family is the device family of the target. Variant is used by ESP32 only
// (esp32, esp32s3, esp32c3...).
type Family struct {
	Kind    Kind
	Variant string
}

// IsPico reports whether f is one of the Raspberry Pi microcontrollers.
func (f Family) IsPico() bool {
	return f.Kind == RP2040 || f.Kind == RP2350
}

func (f Family) String() string {
	switch f.Kind {
	case RP2040:
		return "RP2040 series"
	case RP2350:
		return "RP2350 series"
	case ESP32:
		return "ESP32 series, model " + f.Variant
	case ESP8266:
		return "ESP8266 series"
	}
	return f.Kind.String()
}

var ErrUnsupportedDevice = errors.New("only Arduino-Pico RP2040/RP2350, ESP32 and ESP8266 are supported")

// DetectFamily determines the device family from the architecture segment
// of the FQBN. The arduino-pico core uses the rp2040 architecture for both
// Raspberry Pi chips, the build.chip property tells them apart.
func DetectFamily(c *board.Context) (Family, error) {
	switch arch := c.Arch(); arch {
	case "rp2040":
		if strings.EqualFold(c.Properties.Get("build.chip"), "rp2350") {
			return Family{Kind: RP2350}, nil
		}
		return Family{Kind: RP2040}, nil
	case "esp32":
		return Family{Kind: ESP32, Variant: c.Properties.Get("build.mcu")}, nil
	case "esp8266":
		return Family{Kind: ESP8266}, nil
	default:
		return Family{}, fmt.Errorf("%w (architecture %q)", ErrUnsupportedDevice, arch)
	}
}
