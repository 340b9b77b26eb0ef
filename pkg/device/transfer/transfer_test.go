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
	"testing"
	"time"

	"github.com/patchlink-project/patchlink-core/pkg/config"
	"github.com/patchlink-project/patchlink-core/pkg/device"
	"github.com/patchlink-project/patchlink-core/pkg/device/protocol"
	"github.com/patchlink-project/patchlink-core/pkg/device/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakeAgent scripts the device side of the fl protocol on top of a mock
// port: each command line written by the client is parsed and answered
// from an in-memory filesystem.
type fakeAgent struct {
	mock     *testutils.MockPort
	files    map[string][]byte
	dirs     map[string]bool
	failures map[string]int // op -> responses to swallow, simulating timeouts
	crcSkew  uint16         // xored into fcrc responses to force a mismatch

	openPath string
	openMode string
	written  []byte
	readOff  int
	readCRC  uint16
}

func newFakeAgent(mock *testutils.MockPort) *fakeAgent {
	a := &fakeAgent{
		mock:     mock,
		files:    make(map[string][]byte),
		dirs:     map[string]bool{"/": true},
		failures: make(map[string]int),
	}
	mock.OnWrite = a.handle
	return a
}

func (a *fakeAgent) reply(format string, args ...any) {
	a.mock.QueueRead([]byte(fmt.Sprintf(format, args...) + "\n"))
}

// splitCommand tokenizes a command line, honoring double quotes around
// values with spaces.
func splitCommand(line string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func (a *fakeAgent) handle(data []byte) {
	line := strings.TrimSpace(string(data))
	if line == "" {
		return
	}

	tokens := splitCommand(line)
	if len(tokens) < 3 || tokens[0] != "fl" || tokens[1] != "-c" {
		return
	}
	op := tokens[2]

	args := make(map[string]string)
	for i := 3; i+1 < len(tokens); i += 2 {
		args[strings.TrimPrefix(tokens[i], "--")] = tokens[i+1]
	}

	if a.failures[op] > 0 {
		a.failures[op]--
		return
	}

	switch op {
	case "fopen":
		path, mode := args["path"], args["mode"]
		if mode == "r" {
			if _, ok := a.files[path]; !ok {
				a.reply("[FLERR] no such file")
				return
			}
		}
		a.openPath = path
		a.openMode = mode
		a.written = nil
		a.readOff = 0
		a.readCRC = protocol.CRC16Init()
		a.reply("[FLOK]")

	case "fclose":
		if a.openMode == "w" && a.openPath != "" {
			a.files[a.openPath] = a.written
		}
		a.openPath = ""
		a.openMode = ""
		a.reply("[FLOK]")

	case "fwrite":
		chunk, err := base64.StdEncoding.DecodeString(args["data"])
		if err != nil {
			a.reply("[FLERR] bad payload")
			return
		}
		a.written = append(a.written, chunk...)
		a.reply("[FLOK] %d bytes", len(chunk))

	case "fread":
		n, _ := strconv.Atoi(args["len"])
		content := a.files[a.openPath]
		if a.readOff >= len(content) || n <= 0 {
			a.reply("[FLOK] 0 bytes EOF")
			return
		}
		end := a.readOff + n
		if end > len(content) {
			end = len(content)
		}
		chunk := content[a.readOff:end]
		a.readOff = end
		a.readCRC = protocol.CRC16Update(a.readCRC, chunk)
		a.reply("[FLOK] %d bytes crc=0x%04X data=%s",
			len(chunk), a.readCRC, base64.StdEncoding.EncodeToString(chunk))

	case "fstat":
		path := args["path"]
		if a.dirs[path] {
			a.reply("[FLOK] size=0 type=d mtime=0")
			return
		}
		content, ok := a.files[path]
		if !ok {
			a.reply("[FLERR] no such file")
			return
		}
		a.reply("[FLOK] size=%d type=f mtime=0", len(content))

	case "fcrc":
		var crc uint16
		if path, ok := args["path"]; ok {
			content, exists := a.files[path]
			if !exists {
				a.reply("[FLERR] no such file")
				return
			}
			crc = protocol.CRC16(content)
		} else if a.openMode == "w" {
			crc = protocol.CRC16(a.written)
		} else {
			crc = protocol.CRC16(a.files[a.openPath])
		}
		a.reply("[FLOK] crc=0x%04X", crc^a.crcSkew)

	case "flist":
		dir := args["path"]
		prefix := strings.TrimSuffix(dir, "/") + "/"
		var b strings.Builder
		dirsN, filesN := 0, 0
		for name := range a.dirs {
			if child, ok := childOf(name, prefix); ok {
				fmt.Fprintf(&b, "D %s\n", child)
				dirsN++
			}
		}
		for name, content := range a.files {
			if child, ok := childOf(name, prefix); ok {
				fmt.Fprintf(&b, "F %s %d\n", child, len(content))
				filesN++
			}
		}
		a.mock.QueueRead([]byte(b.String()))
		a.reply("[FLOK] %d dirs, %d files", dirsN, filesN)

	case "fremove":
		path := args["path"]
		if _, ok := a.files[path]; ok {
			delete(a.files, path)
			a.reply("[FLOK]")
			return
		}
		if a.dirs[path] {
			delete(a.dirs, path)
			a.reply("[FLOK]")
			return
		}
		a.reply("[FLERR] no such file")

	case "fmkdir":
		a.dirs[args["path"]] = true
		a.reply("[FLOK]")

	case "frename":
		path, newPath := args["path"], args["newpath"]
		if content, ok := a.files[path]; ok {
			delete(a.files, path)
			a.files[newPath] = content
			a.reply("[FLOK]")
			return
		}
		a.reply("[FLERR] no such file")

	default:
		a.reply("[FLERR] unknown command")
	}
}

func childOf(name, prefix string) (string, bool) {
	rest := strings.TrimPrefix(name, prefix)
	if rest == name || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func newTestClient(t *testing.T, chunkSize int) (*Client, *fakeAgent, *testutils.MockPort) {
	t.Helper()

	defaults := config.BaseDefaults
	defaults.Device.ReadTimeoutMs = 1
	defaults.Device.TickPeriodMs = 5
	defaults.Transfer.ChunkSize = chunkSize
	defaults.Transfer.WriteDelayMs = 0
	defaults.Transfer.Retries = 2
	defaults.Transfer.RetryDelayMs = 1
	defaults.Transfer.TimeoutMs = 150
	defaults.Transfer.ListTimeoutMs = 300

	cfg, err := config.NewConfig(t.TempDir(), defaults)
	require.NoError(t, err)

	mock := testutils.NewMockPort()
	conn := device.NewConnection(cfg, nil)
	conn.SetPortFactory(func(_ string, _ *serial.Mode) (device.Port, error) {
		return mock, nil
	})
	require.NoError(t, conn.Connect(testutils.CreateTempDevicePath(t)))
	t.Cleanup(func() {
		_ = conn.Disconnect()
	})

	agent := newFakeAgent(mock)
	client := NewClient(cfg, protocol.NewChannel(cfg, conn))
	client.sleep = func(time.Duration) {}
	return client, agent, mock
}

func TestUpload(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 2)

	err := client.Upload([]byte("hello"), "/path/my file.txt")
	require.NoError(t, err)

	assert.Equal(t, []byte("hello"), agent.files["/path/my file.txt"])

	written := mock.WrittenString()
	// spacey path quoted on the wire, and chunking produced multiple writes
	assert.Contains(t, written, `fl -c fopen --path "/path/my file.txt" --mode w`)
	assert.Equal(t, 3, strings.Count(written, "fl -c fwrite"))
	assert.Contains(t, written, "fl -c fclose")
}

func TestUpload_EmptyFile(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)

	err := client.Upload(nil, "/flash/empty.bin")
	require.NoError(t, err)

	content, ok := agent.files["/flash/empty.bin"]
	assert.True(t, ok)
	assert.Empty(t, content)
	assert.NotContains(t, mock.WrittenString(), "fwrite")
}

func TestUpload_IntegrityError(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)
	agent.crcSkew = 0x0001

	err := client.Upload([]byte("hello"), "/flash/app.bin")

	var ie *device.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, uint16(0xD26E), ie.Want)

	// the remote handle is still released after a failed verify
	assert.Contains(t, mock.WrittenString(), "fl -c fclose")
}

func TestUpload_OpenRejected(t *testing.T) {
	t.Parallel()

	client, _, mock := newTestClient(t, 256)
	mock.OnWrite = func(data []byte) {
		if strings.Contains(string(data), "fopen") {
			mock.QueueRead([]byte("[FLERR] read-only filesystem\n"))
		}
	}

	err := client.Upload([]byte("x"), "/flash/app.bin")

	var pe *device.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "read-only")
	// nothing was written after the failed open
	assert.NotContains(t, mock.WrittenString(), "fwrite")
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"multiple of chunk size", []byte("12345678")},
		{"not a multiple", []byte("patch slot 2 payload")},
		{"single byte", []byte{0x42}},
		{"binary with nulls", []byte{0x00, 0xFF, 0x00, 0x7F, 0x00}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, _, _ := newTestClient(t, 4)

			require.NoError(t, client.Upload(tt.data, "/flash/rt.bin"))
			got, err := client.Download("/flash/rt.bin")
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestDownload_MissingFile(t *testing.T) {
	t.Parallel()

	client, _, _ := newTestClient(t, 256)

	_, err := client.Download("/flash/nope.bin")

	var pe *device.ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestDownload_IntegrityError(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)
	agent.files["/flash/app.bin"] = []byte("hello")
	agent.crcSkew = 0x0001

	_, err := client.Download("/flash/app.bin")

	var ie *device.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, mock.WrittenString(), "fl -c fclose")
}

func TestRetryOnTimeout(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)
	agent.files["/flash/app.bin"] = []byte("hello")
	agent.failures["fstat"] = 1

	info, err := client.Stat("/flash/app.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	// first attempt timed out, second got through
	assert.Equal(t, 2, strings.Count(mock.WrittenString(), "fl -c fstat"))
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)
	agent.files["/flash/app.bin"] = []byte("hello")
	agent.failures["fstat"] = 10

	_, err := client.Stat("/flash/app.bin")
	require.ErrorIs(t, err, device.ErrTimeout)

	// initial attempt plus the configured retries, no more
	assert.Equal(t, 3, strings.Count(mock.WrittenString(), "fl -c fstat"))
}

func TestDeviceErrorNotRetried(t *testing.T) {
	t.Parallel()

	client, _, mock := newTestClient(t, 256)

	err := client.Remove("/flash/nope.bin")

	var pe *device.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, strings.Count(mock.WrittenString(), "fl -c fremove"))
}

func TestList(t *testing.T) {
	t.Parallel()

	client, agent, _ := newTestClient(t, 256)
	agent.dirs["/flash"] = true
	agent.dirs["/flash/patches"] = true
	agent.files["/flash/app.bin"] = []byte("hello")
	agent.files["/flash/my file.txt"] = []byte("hi")
	agent.files["/flash/patches/nested.bin"] = []byte("deep") // not a direct child

	l, err := client.List("/flash")
	require.NoError(t, err)

	assert.Equal(t, 1, l.Dirs)
	assert.Equal(t, 2, l.Files)
	require.Len(t, l.Entries, 3)

	byName := make(map[string]Entry)
	for _, e := range l.Entries {
		byName[e.Name] = e
	}
	assert.True(t, byName["patches"].IsDir)
	assert.Equal(t, int64(5), byName["app.bin"].Size)
	assert.Equal(t, int64(2), byName["my file.txt"].Size)
}

func TestRemoveMkdirRename(t *testing.T) {
	t.Parallel()

	client, agent, mock := newTestClient(t, 256)
	agent.files["/flash/old.bin"] = []byte("hello")

	require.NoError(t, client.Mkdir("/flash/patches"))
	assert.True(t, agent.dirs["/flash/patches"])

	require.NoError(t, client.Rename("/flash/old.bin", "/flash/patches/new name.bin"))
	assert.Equal(t, []byte("hello"), agent.files["/flash/patches/new name.bin"])
	assert.Contains(t, mock.WrittenString(), `--newpath "/flash/patches/new name.bin"`)

	require.NoError(t, client.Remove("/flash/patches/new name.bin"))
	assert.Empty(t, agent.files)
}

func TestStatDirectory(t *testing.T) {
	t.Parallel()

	client, agent, _ := newTestClient(t, 256)
	agent.dirs["/flash"] = true

	info, err := client.Stat("/flash")
	require.NoError(t, err)
	assert.Equal(t, "d", info.Type)
}

func TestCRCByPath(t *testing.T) {
	t.Parallel()

	client, agent, _ := newTestClient(t, 256)
	agent.files["/flash/app.bin"] = []byte("123456789")

	crc, err := client.CRC("/flash/app.bin")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x29B1), crc)
}
