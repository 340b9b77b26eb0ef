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

package transfer

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// FileInfo is remote file metadata from fstat.
type FileInfo struct {
	Type  string
	Size  int64
	MTime int64
}

// Entry is one line of a directory listing. Names may contain spaces;
// only the leading type tag and, for files, the trailing size are
// reliably delimited.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Listing is a parsed flist response.
type Listing struct {
	Entries []Entry
	Dirs    int
	Files   int
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// parseKeyValues extracts key=value tokens from a response message by
// token scanning. Order is not significant and unknown tokens are ignored.
func parseKeyValues(msg string) map[string]string {
	kv := make(map[string]string)
	for _, tok := range strings.Fields(msg) {
		i := strings.IndexByte(tok, '=')
		if i <= 0 {
			continue
		}
		kv[tok[:i]] = tok[i+1:]
	}
	return kv
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad crc value %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseFileInfo(msg string) (FileInfo, error) {
	kv := parseKeyValues(msg)

	sizeStr, ok := kv["size"]
	if !ok {
		return FileInfo{}, fmt.Errorf("fstat response missing size: %q", msg)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return FileInfo{}, fmt.Errorf("bad fstat size %q: %w", sizeStr, err)
	}

	info := FileInfo{
		Size: size,
		Type: kv["type"],
	}
	if mtimeStr, ok := kv["mtime"]; ok {
		info.MTime, _ = strconv.ParseInt(mtimeStr, 10, 64)
	}
	return info, nil
}

func parseCRC(msg string) (uint16, error) {
	kv := parseKeyValues(msg)
	crcStr, ok := kv["crc"]
	if !ok {
		return 0, fmt.Errorf("fcrc response missing crc: %q", msg)
	}
	return parseHex16(crcStr)
}

// parseReadChunk parses one fread response message:
//
//	<n> bytes crc=0x<hex> data=<base64>
//	0 bytes EOF
func parseReadChunk(msg string) (data []byte, crc uint16, eof bool, err error) {
	fields := strings.Fields(msg)
	if len(fields) < 2 || fields[1] != "bytes" {
		return nil, 0, false, fmt.Errorf("unexpected fread response: %q", msg)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, 0, false, fmt.Errorf("bad fread length %q: %w", fields[0], err)
	}

	if n == 0 {
		return nil, 0, true, nil
	}

	kv := parseKeyValues(msg)
	crcStr, ok := kv["crc"]
	if !ok {
		return nil, 0, false, fmt.Errorf("fread response missing crc: %q", msg)
	}
	crc, err = parseHex16(crcStr)
	if err != nil {
		return nil, 0, false, err
	}

	encoded, ok := kv["data"]
	if !ok {
		return nil, 0, false, fmt.Errorf("fread response missing data: %q", msg)
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, 0, false, fmt.Errorf("bad fread payload: %w", err)
	}
	if len(data) != n {
		return nil, 0, false, fmt.Errorf("fread length mismatch: header %d, payload %d", n, len(data))
	}

	return data, crc, false, nil
}

// parseListing parses an flist response. The summary line lives in the
// terminal marker's message; the per-entry lines precede it:
//
//	D <name>
//	F <name> <size>
func parseListing(summary, body string) (Listing, error) {
	var l Listing

	if _, err := fmt.Sscanf(summary, "%d dirs, %d files", &l.Dirs, &l.Files); err != nil {
		// Older agent builds omit the summary; fall back to entry counting.
		log.Debug().Msgf("flist summary not parseable: %q", summary)
		l.Dirs, l.Files = -1, -1
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		tag, rest, found := strings.Cut(line, " ")
		if !found || (tag != "D" && tag != "F") {
			log.Debug().Msgf("skipping unrecognized flist line: %q", line)
			continue
		}

		if tag == "D" {
			l.Entries = append(l.Entries, Entry{Name: rest, IsDir: true})
			continue
		}

		// File entries end with a size; everything between the tag and the
		// size is the name, spaces included.
		name := rest
		var size int64
		if i := strings.LastIndexByte(rest, ' '); i > 0 {
			if v, err := strconv.ParseInt(rest[i+1:], 10, 64); err == nil {
				name = rest[:i]
				size = v
			}
		}
		l.Entries = append(l.Entries, Entry{Name: name, Size: size})
	}

	if l.Dirs < 0 {
		l.Dirs, l.Files = 0, 0
		for _, e := range l.Entries {
			if e.IsDir {
				l.Dirs++
			} else {
				l.Files++
			}
		}
	}

	return l, nil
}
