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

package protocol

import "strings"

// Response markers emitted by the device's fl program. A response is zero
// or more free-text lines followed by exactly one terminal marker line.
const (
	OKMarker  = "[FLOK]"
	ErrMarker = "[FLERR]"
)

// Frame is a parsed device response.
type Frame struct {
	Message string
	OK      bool
}

// ParseResponse scans raw device output for a terminal marker line and
// returns the parsed frame. Everything before the marker line (log
// chatter, echoed input, multi-line bodies) is discarded. ANSI escapes are
// stripped before matching. The second return is false when no marker has
// been observed yet.
func ParseResponse(raw string) (Frame, bool) {
	frame, _, ok := ParseResponseBody(raw)
	return frame, ok
}

// ParseResponseBody is ParseResponse plus the text preceding the marker
// line. Operations with multi-line payloads (flist) put them there, so the
// channel hands the body to the caller instead of discarding it.
func ParseResponseBody(raw string) (Frame, string, bool) {
	clean := StripANSI(raw)
	lines := strings.Split(clean, "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, OKMarker):
			return Frame{
				OK:      true,
				Message: strings.TrimSpace(strings.TrimPrefix(line, OKMarker)),
			}, strings.Join(lines[:i], "\n"), true
		case strings.HasPrefix(line, ErrMarker):
			return Frame{
				OK:      false,
				Message: strings.TrimSpace(strings.TrimPrefix(line, ErrMarker)),
			}, strings.Join(lines[:i], "\n"), true
		}
	}

	return Frame{}, "", false
}
