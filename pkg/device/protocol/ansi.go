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

import "regexp"

// Shell-hosted firmware colours its prompt and log output. Escapes can
// appear anywhere in the stream, including inside a response marker, so
// they must be removed before any marker matching.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
