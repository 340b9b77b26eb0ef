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
	"github.com/patchlink-project/patchlink-core/pkg/device"
	"github.com/patchlink-project/patchlink-core/pkg/device/protocol"
	"github.com/rs/zerolog/log"
)

// Upload writes data to the remote path in bounded chunks, then asks the
// device for a CRC-16 over what it received and compares against the CRC
// of the original payload. The remote handle is closed whatever the
// outcome so a failed transfer never leaks a device-side descriptor; a
// close failure is secondary and never masks the primary error.
func (c *Client) Upload(data []byte, path string) error {
	if err := c.Open(path, "w"); err != nil {
		return err
	}

	chunkSize := c.cfg.ChunkSize()
	delay := c.cfg.WriteDelay()

	var uploadErr error
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if uploadErr = c.WriteChunk(data[off:end]); uploadErr != nil {
			break
		}
		// Pacing between chunks. Writing too fast can overrun the agent's
		// receive buffer on slower boards.
		if delay > 0 && end < len(data) {
			c.sleep(delay)
		}
	}

	var deviceCRC uint16
	if uploadErr == nil {
		deviceCRC, uploadErr = c.CRC("")
	}

	closeErr := c.CloseFile()

	if uploadErr != nil {
		return uploadErr
	}
	if local := protocol.CRC16(data); local != deviceCRC {
		return &device.IntegrityError{Want: local, Got: deviceCRC}
	}
	if closeErr != nil {
		return closeErr
	}

	log.Info().Msgf("uploaded %d bytes to %s", len(data), path)
	return nil
}

// Download reads the remote file at path chunk by chunk, verifying the
// device's running CRC against a local accumulator as the stream decodes,
// then compares a final device-computed CRC-16 over the whole file. The
// remote handle is closed whatever the outcome.
func (c *Client) Download(path string) ([]byte, error) {
	info, err := c.Stat(path)
	if err != nil {
		return nil, err
	}

	if err := c.Open(path, "r"); err != nil {
		return nil, err
	}

	chunkSize := c.cfg.ChunkSize()
	data := make([]byte, 0, info.Size)
	running := protocol.CRC16Init()

	var downloadErr error
	for {
		chunk, reported, eof, err := c.ReadChunk(chunkSize)
		if err != nil {
			downloadErr = err
			break
		}
		if eof {
			break
		}

		data = append(data, chunk...)
		running = protocol.CRC16Update(running, chunk)
		if reported != running {
			downloadErr = &device.IntegrityError{Want: running, Got: reported}
			break
		}
	}

	var deviceCRC uint16
	if downloadErr == nil {
		deviceCRC, downloadErr = c.CRC("")
	}

	closeErr := c.CloseFile()

	if downloadErr != nil {
		return nil, downloadErr
	}
	if running != deviceCRC {
		return nil, &device.IntegrityError{Want: running, Got: deviceCRC}
	}
	if closeErr != nil {
		return nil, closeErr
	}

	if int64(len(data)) != info.Size {
		log.Warn().Msgf("downloaded %d bytes from %s, fstat reported %d",
			len(data), path, info.Size)
	} else {
		log.Info().Msgf("downloaded %d bytes from %s", len(data), path)
	}

	return data, nil
}
