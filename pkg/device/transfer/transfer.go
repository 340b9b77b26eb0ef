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

// Package transfer implements the remote filesystem primitives of the fl
// protocol (fopen, fread, fwrite, fclose, fstat, flist, fremove, fmkdir,
// frename, fcrc) and composes them into whole-file upload/download with
// CRC-16 integrity verification.
package transfer

import (
	"encoding/base64"
	"time"

	"github.com/patchlink-project/patchlink-core/pkg/config"
	"github.com/patchlink-project/patchlink-core/pkg/device"
	"github.com/patchlink-project/patchlink-core/pkg/device/protocol"
	"github.com/rs/zerolog/log"
)

// Client runs remote filesystem operations over one protocol channel.
// Each primitive is a single command/response round trip with its own
// timeout and bounded retry.
type Client struct {
	cfg *config.Instance
	ch  *protocol.Channel
	// sleep is swapped out in tests to avoid real retry/chunk delays.
	sleep func(time.Duration)
}

// NewClient creates a transfer client over ch.
func NewClient(cfg *config.Instance, ch *protocol.Channel) *Client {
	return &Client{
		cfg:   cfg,
		ch:    ch,
		sleep: time.Sleep,
	}
}

// send runs one primitive with retry. Transport and timeout failures are
// retried up to retries times with a fixed delay; a device-reported error
// or integrity problem is reproducible and surfaces immediately.
func (c *Client) send(
	op string,
	args []protocol.Arg,
	timeout time.Duration,
	retries int,
) (protocol.Frame, string, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			log.Debug().Msgf("%s: retry %d/%d", op, attempt, retries)
			c.sleep(c.cfg.RetryDelay())
		}

		frame, body, err := c.ch.SendWithBody(op, args, timeout)
		if err != nil {
			if device.IsRetryable(err) {
				lastErr = err
				continue
			}
			return frame, body, err
		}

		if !frame.OK {
			return frame, body, &device.ProtocolError{Message: frame.Message}
		}

		return frame, body, nil
	}

	return protocol.Frame{}, "", lastErr
}

// Open opens a remote file. Mode is "r" or "w".
func (c *Client) Open(path, mode string) error {
	_, _, err := c.send("fopen", []protocol.Arg{
		{Key: "path", Value: path},
		{Key: "mode", Value: mode},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}

// CloseFile closes the open remote file handle.
func (c *Client) CloseFile() error {
	_, _, err := c.send("fclose", nil, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}

// WriteChunk sends one chunk of data to the open remote file.
func (c *Client) WriteChunk(data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	_, _, err := c.send("fwrite", []protocol.Arg{
		{Key: "data", Value: encoded},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}

// ReadChunk requests up to maxLen bytes from the open remote file. The
// returned crc is the device's running CRC-16 over all bytes returned so
// far in this session. eof is true once the device reports end of stream.
func (c *Client) ReadChunk(maxLen int) (data []byte, crc uint16, eof bool, err error) {
	frame, _, err := c.send("fread", []protocol.Arg{
		{Key: "len", Value: itoa(maxLen)},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	if err != nil {
		return nil, 0, false, err
	}
	return parseReadChunk(frame.Message)
}

// Stat queries remote file metadata.
func (c *Client) Stat(path string) (FileInfo, error) {
	frame, _, err := c.send("fstat", []protocol.Arg{
		{Key: "path", Value: path},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	if err != nil {
		return FileInfo{}, err
	}
	return parseFileInfo(frame.Message)
}

// CRC asks the device to compute a CRC-16 over a file. An empty path means
// the currently open handle, which is how transfers verify exactly what
// the device received.
func (c *Client) CRC(path string) (uint16, error) {
	var args []protocol.Arg
	if path != "" {
		args = append(args, protocol.Arg{Key: "path", Value: path})
	}
	frame, _, err := c.send("fcrc", args, c.cfg.TransferTimeout(), c.cfg.Retries())
	if err != nil {
		return 0, err
	}
	return parseCRC(frame.Message)
}

// List fetches a remote directory listing. Directory listings can be
// large, so this is the one metadata operation with a longer timeout.
func (c *Client) List(path string) (Listing, error) {
	frame, body, err := c.send("flist", []protocol.Arg{
		{Key: "path", Value: path},
	}, c.cfg.ListTimeout(), c.cfg.Retries())
	if err != nil {
		return Listing{}, err
	}
	return parseListing(frame.Message, body)
}

// Remove deletes a remote file or empty directory.
func (c *Client) Remove(path string) error {
	_, _, err := c.send("fremove", []protocol.Arg{
		{Key: "path", Value: path},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}

// Mkdir creates a remote directory.
func (c *Client) Mkdir(path string) error {
	_, _, err := c.send("fmkdir", []protocol.Arg{
		{Key: "path", Value: path},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}

// Rename moves a remote file or directory.
func (c *Client) Rename(path, newPath string) error {
	_, _, err := c.send("frename", []protocol.Arg{
		{Key: "path", Value: path},
		{Key: "newpath", Value: newPath},
	}, c.cfg.TransferTimeout(), c.cfg.Retries())
	return err
}
