// PatchLink Core
// Copyright (c) 2026 The PatchLink Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PatchLink Core.
//
// PatchLink Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PatchLink Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PatchLink Core.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

func getLinuxList() ([]string, error) {
	path := "/dev"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []string{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open /dev directory: %w", err)
	}
	defer func(f *os.File) {
		closeErr := f.Close()
		if closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close serial device folder")
		}
	}(f)

	files, err := f.Readdir(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read /dev directory: %w", err)
	}

	devices := make([]string, 0, len(files))

	for _, v := range files {
		if v.IsDir() {
			continue
		}

		if !strings.HasPrefix(v.Name(), "ttyUSB") && !strings.HasPrefix(v.Name(), "ttyACM") {
			continue
		}

		devices = append(devices, filepath.Join(path, v.Name()))
	}

	return devices, nil
}

// GetSerialDeviceList returns candidate serial device paths for the current
// platform. Used by auto-detection to find a target board.
func GetSerialDeviceList() ([]string, error) {
	switch runtime.GOOS {
	case "linux":
		return getLinuxList()
	case "darwin":
		var devices []string
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list on darwin: %w", err)
		}

		for _, v := range ports {
			if !strings.HasPrefix(v, "/dev/tty.usbserial") &&
				!strings.HasPrefix(v, "/dev/tty.usbmodem") {
				continue
			}
			devices = append(devices, v)
		}

		return devices, nil
	case "windows":
		var devices []string
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list on windows: %w", err)
		}

		for _, v := range ports {
			if !strings.HasPrefix(v, "COM") {
				continue
			}
			devices = append(devices, v)
		}

		return devices, nil
	default:
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list: %w", err)
		}
		return ports, nil
	}
}
