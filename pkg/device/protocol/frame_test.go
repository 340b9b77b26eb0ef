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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		expectedMsg string
		expectFound bool
		expectedOK  bool
	}{
		{
			name:        "plain ok",
			raw:         "[FLOK] done",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "done",
		},
		{
			name:        "ok with preceding chatter",
			raw:         "noise\nmore noise\n[FLOK] done",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "done",
		},
		{
			name:        "ok wrapped in ansi color",
			raw:         "\x1b[32m[FLOK]\x1b[0m ok",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "ok",
		},
		{
			name:        "error",
			raw:         "[FLERR] bad",
			expectFound: true,
			expectedOK:  false,
			expectedMsg: "bad",
		},
		{
			name:        "error with empty message",
			raw:         "[FLERR]",
			expectFound: true,
			expectedOK:  false,
			expectedMsg: "",
		},
		{
			name:        "ok with no message",
			raw:         "[FLOK]",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "",
		},
		{
			name:        "no marker yet",
			raw:         "still streaming output\npartial [FL",
			expectFound: false,
		},
		{
			name:        "marker must start the line",
			raw:         "log: saw [FLOK] earlier",
			expectFound: false,
		},
		{
			name:        "crlf terminated",
			raw:         "echo\r\n[FLOK] pong\r\n",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "pong",
		},
		{
			name:        "marker line with leading whitespace",
			raw:         "  [FLOK] indented",
			expectFound: true,
			expectedOK:  true,
			expectedMsg: "indented",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame, found := ParseResponse(tt.raw)
			require.Equal(t, tt.expectFound, found)
			if !found {
				return
			}
			assert.Equal(t, tt.expectedOK, frame.OK)
			assert.Equal(t, tt.expectedMsg, frame.Message)
		})
	}
}

func TestParseResponseBody(t *testing.T) {
	t.Parallel()

	raw := "2 entries follow\nD lib\nF main.bin 1024\n[FLOK] 1 dirs, 1 files\n"
	frame, body, found := ParseResponseBody(raw)

	require.True(t, found)
	assert.True(t, frame.OK)
	assert.Equal(t, "1 dirs, 1 files", frame.Message)
	assert.Contains(t, body, "D lib")
	assert.Contains(t, body, "F main.bin 1024")
}

func TestStripANSI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no escapes", "plain text", "plain text"},
		{"color codes", "\x1b[31mred\x1b[0m", "red"},
		{"cursor movement", "\x1b[2Ktext\x1b[1A", "text"},
		{"private mode", "\x1b[?25lhidden cursor\x1b[?25h", "hidden cursor"},
		{"mid-token", "[FL\x1b[32mOK]", "[FLOK]"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, StripANSI(tt.input))
		})
	}
}
