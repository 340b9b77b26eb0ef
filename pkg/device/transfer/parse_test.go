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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReadChunk(t *testing.T) {
	t.Parallel()

	t.Run("data chunk", func(t *testing.T) {
		t.Parallel()
		// "hello" base64-encoded
		data, crc, eof, err := parseReadChunk("5 bytes crc=0xD26E data=aGVsbG8=")
		require.NoError(t, err)
		assert.False(t, eof)
		assert.Equal(t, []byte("hello"), data)
		assert.Equal(t, uint16(0xD26E), crc)
	})

	t.Run("eof", func(t *testing.T) {
		t.Parallel()
		data, _, eof, err := parseReadChunk("0 bytes EOF")
		require.NoError(t, err)
		assert.True(t, eof)
		assert.Empty(t, data)
	})

	t.Run("lowercase crc accepted", func(t *testing.T) {
		t.Parallel()
		_, crc, _, err := parseReadChunk("5 bytes crc=0xd26e data=aGVsbG8=")
		require.NoError(t, err)
		assert.Equal(t, uint16(0xD26E), crc)
	})

	t.Run("malformed header", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := parseReadChunk("whatever")
		assert.Error(t, err)
	})

	t.Run("missing crc", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := parseReadChunk("5 bytes data=aGVsbG8=")
		assert.Error(t, err)
	})

	t.Run("missing data", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := parseReadChunk("5 bytes crc=0xD26E")
		assert.Error(t, err)
	})

	t.Run("bad base64", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := parseReadChunk("5 bytes crc=0xD26E data=!!!")
		assert.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := parseReadChunk("9 bytes crc=0xD26E data=aGVsbG8=")
		assert.Error(t, err)
	})
}

func TestParseFileInfo(t *testing.T) {
	t.Parallel()

	t.Run("full response", func(t *testing.T) {
		t.Parallel()
		info, err := parseFileInfo("size=1024 type=f mtime=1724572800")
		require.NoError(t, err)
		assert.Equal(t, int64(1024), info.Size)
		assert.Equal(t, "f", info.Type)
		assert.Equal(t, int64(1724572800), info.MTime)
	})

	t.Run("tokens in any order", func(t *testing.T) {
		t.Parallel()
		info, err := parseFileInfo("type=d mtime=0 size=0")
		require.NoError(t, err)
		assert.Equal(t, "d", info.Type)
		assert.Equal(t, int64(0), info.Size)
	})

	t.Run("unknown tokens ignored", func(t *testing.T) {
		t.Parallel()
		info, err := parseFileInfo("size=5 type=f flags=rw owner=0")
		require.NoError(t, err)
		assert.Equal(t, int64(5), info.Size)
	})

	t.Run("missing size", func(t *testing.T) {
		t.Parallel()
		_, err := parseFileInfo("type=f mtime=0")
		assert.Error(t, err)
	})

	t.Run("bad size", func(t *testing.T) {
		t.Parallel()
		_, err := parseFileInfo("size=abc type=f")
		assert.Error(t, err)
	})
}

func TestParseCRC(t *testing.T) {
	t.Parallel()

	crc, err := parseCRC("crc=0x29B1")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x29B1), crc)

	_, err = parseCRC("no checksum here")
	assert.Error(t, err)

	_, err = parseCRC("crc=0xZZZZ")
	assert.Error(t, err)
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	t.Run("with summary", func(t *testing.T) {
		t.Parallel()

		body := "D lib\nD patches\nF main.bin 1024\nF my file.txt 5\n"
		l, err := parseListing("2 dirs, 2 files", body)
		require.NoError(t, err)

		assert.Equal(t, 2, l.Dirs)
		assert.Equal(t, 2, l.Files)
		require.Len(t, l.Entries, 4)

		assert.Equal(t, Entry{Name: "lib", IsDir: true}, l.Entries[0])
		assert.Equal(t, Entry{Name: "main.bin", Size: 1024}, l.Entries[2])
		// file names may contain spaces; only the trailing size is delimited
		assert.Equal(t, Entry{Name: "my file.txt", Size: 5}, l.Entries[3])
	})

	t.Run("missing summary falls back to counting", func(t *testing.T) {
		t.Parallel()

		l, err := parseListing("", "D lib\nF app.bin 12\n")
		require.NoError(t, err)
		assert.Equal(t, 1, l.Dirs)
		assert.Equal(t, 1, l.Files)
	})

	t.Run("empty directory", func(t *testing.T) {
		t.Parallel()

		l, err := parseListing("0 dirs, 0 files", "")
		require.NoError(t, err)
		assert.Empty(t, l.Entries)
		assert.Equal(t, 0, l.Dirs)
		assert.Equal(t, 0, l.Files)
	})

	t.Run("unrecognized lines skipped", func(t *testing.T) {
		t.Parallel()

		l, err := parseListing("1 dirs, 0 files", "garbage line\nD lib\n")
		require.NoError(t, err)
		require.Len(t, l.Entries, 1)
		assert.Equal(t, "lib", l.Entries[0].Name)
	})
}
