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

package device

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port defines the interface for serial port operations (for mocking in
// tests). Reads are expected to return (0, nil) when the configured read
// timeout elapses with no data, matching go.bug.st/serial semantics.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory creates a serial port connection.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory is the default factory that opens real serial ports.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}
