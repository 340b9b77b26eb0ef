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
	"errors"
	"fmt"
)

// Sentinel errors for the device command channel. Operations never panic
// across the worker boundary; they surface one of these (or a wrapped
// transport error) instead.
var (
	// ErrNotConnected indicates there is no open transport, or the worker
	// that owns it is not running.
	ErrNotConnected = errors.New("device not connected")

	// ErrTimeout indicates no terminal response marker was observed within
	// the allotted window. The device may still have applied the command;
	// callers must re-query state before retrying destructive operations.
	ErrTimeout = errors.New("timed out waiting for device response")
)

// ProtocolError is a well-formed error response from the device. The
// message is the device-supplied text, verbatim.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return "device reported error"
	}
	return "device reported error: " + e.Message
}

// IntegrityError is a CRC mismatch after a transfer that succeeded at the
// framing level. Distinct from both timeout and protocol errors.
type IntegrityError struct {
	Want uint16
	Got  uint16
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("crc mismatch: local 0x%04X, device 0x%04X", e.Want, e.Got)
}

// IsRetryable reports whether err is a transient transport or timeout
// failure that a primitive operation may retry locally. Protocol and
// integrity errors indicate a reproducible problem and are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	var ie *IntegrityError
	if errors.As(err, &pe) || errors.As(err, &ie) {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return false
	}
	return true
}
