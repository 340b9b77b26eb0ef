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
	"strings"
	"unicode"
)

// Arg is one --key value pair on a protocol command line. Argument order
// is preserved as given.
type Arg struct {
	Key   string
	Value string
}

// FormatCommand builds a single protocol command line:
//
//	<program> -c <operation> [--<key> <value>]*
//
// Values containing whitespace are wrapped in double quotes so that paths
// with embedded spaces round-trip through the device's argument parser.
// The rule is general-purpose, though in practice only --path and
// --newpath need it.
func FormatCommand(program, operation string, args []Arg) string {
	var sb strings.Builder
	sb.WriteString(program)
	sb.WriteString(" -c ")
	sb.WriteString(operation)

	for _, a := range args {
		sb.WriteString(" --")
		sb.WriteString(a.Key)
		sb.WriteString(" ")
		sb.WriteString(quoteValue(a.Value))
	}

	return sb.String()
}

func quoteValue(v string) string {
	if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
		return `"` + v + `"`
	}
	return v
}
