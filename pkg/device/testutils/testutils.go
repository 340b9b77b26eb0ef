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

package testutils

import (
	"os"
	"runtime"
	"testing"
)

// CreateTempDevicePath returns a path that passes the connection layer's
// stat check. On Windows the check is skipped, so a COM port name is
// enough; elsewhere a temporary file stands in for the device node.
func CreateTempDevicePath(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		return "COM1"
	}

	f, err := os.CreateTemp(t.TempDir(), "device-test-*")
	if err != nil {
		t.Fatalf("failed to create temp device path: %v", err)
	}

	path := f.Name()
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	return path
}
