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

// Package testutils provides a scriptable mock serial port for device
// layer tests.
package testutils

import (
	"errors"
	"strings"
	"time"

	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
)

// MockPort is a mock implementation of the device port interface. Reads
// drain a queue of scripted data; writes are captured and optionally
// handed to OnWrite, which lets a test script a device that answers
// commands.
type MockPort struct {
	ReadError  error
	WriteError error
	CloseError error
	TimeoutErr error
	ReadFunc   func(p []byte) (n int, err error)
	OnWrite    func(data []byte)
	readBuf    []byte
	writes     [][]byte
	Closed     bool
	mu         syncutil.RWMutex
}

// NewMockPort creates an empty mock port.
func NewMockPort() *MockPort {
	return &MockPort{}
}

// QueueRead appends data to the scripted read buffer.
func (m *MockPort) QueueRead(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf = append(m.readBuf, data...)
}

// Read drains queued data. An empty queue behaves like a serial read
// timeout: a short delay then (0, nil).
func (m *MockPort) Read(p []byte) (n int, err error) {
	m.mu.RLock()
	closed := m.Closed
	m.mu.RUnlock()

	if closed {
		return 0, errors.New("port closed")
	}

	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	if m.ReadError != nil {
		return 0, m.ReadError
	}

	m.mu.Lock()
	if len(m.readBuf) == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n = copy(p, m.readBuf)
	m.readBuf = m.readBuf[n:]
	m.mu.Unlock()
	return n, nil
}

// Write captures data and invokes OnWrite, which may queue a scripted
// response.
func (m *MockPort) Write(p []byte) (n int, err error) {
	if m.WriteError != nil {
		return 0, m.WriteError
	}

	data := make([]byte, len(p))
	copy(data, p)

	m.mu.Lock()
	m.writes = append(m.writes, data)
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(data)
	}
	return len(p), nil
}

// Writes returns a copy of all captured writes, in order.
func (m *MockPort) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// WrittenString returns everything written to the port as one string.
func (m *MockPort) WrittenString() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sb strings.Builder
	for _, w := range m.writes {
		sb.Write(w)
	}
	return sb.String()
}

// Close implements the Close method for serial ports.
func (m *MockPort) Close() error {
	m.mu.Lock()
	m.Closed = true
	closeError := m.CloseError
	m.mu.Unlock()
	return closeError
}

// SetReadTimeout implements the SetReadTimeout method for serial ports.
func (m *MockPort) SetReadTimeout(_ time.Duration) error {
	return m.TimeoutErr
}

// IsClosed returns true if the port has been closed (thread-safe).
func (m *MockPort) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Closed
}
