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

// Package device models one managed target board: the serial connection,
// its exclusive worker, and the error taxonomy shared by the protocol and
// transfer layers. Multiple boards are independent Connection instances;
// there is no shared module state.
package device

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/patchlink-project/patchlink-core/pkg/config"
	"github.com/patchlink-project/patchlink-core/pkg/device/worker"
	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// Connection owns the transport for one device. The port handle is nil
// when disconnected and is only ever touched by the connection's worker
// goroutine once connected.
type Connection struct {
	cfg         *config.Instance
	portFactory PortFactory
	clock       clockwork.Clock
	port        Port
	w           *worker.Worker
	path        string
	id          string
	mu          syncutil.RWMutex
}

// NewConnection creates a disconnected Connection. A nil clock defaults to
// the real system clock.
func NewConnection(cfg *config.Instance, clock clockwork.Clock) *Connection {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Connection{
		cfg:         cfg,
		clock:       clock,
		portFactory: DefaultPortFactory,
	}
}

// SetPortFactory overrides how the serial port is opened. Used by tests to
// inject a mock port; must be called before Connect.
func (c *Connection) SetPortFactory(f PortFactory) {
	c.portFactory = f
}

// Connect opens the serial port at path and starts the worker that owns
// it. Connecting an already-connected Connection is an error; disconnect
// first.
func (c *Connection) Connect(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return fmt.Errorf("already connected to %s", c.path)
	}

	if runtime.GOOS != "windows" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("failed to stat device path %s: %w", path, err)
		}
	}

	port, err := c.portFactory(path, &serial.Mode{
		BaudRate: c.cfg.BaudRate(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	err = port.SetReadTimeout(c.cfg.ReadTimeout())
	if err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	c.port = port
	c.path = path
	c.id = uuid.New().String()

	c.w = worker.NewWorker(port, c.clock, c.cfg.TickPeriod())
	c.w.Start()

	log.Info().Msgf("connected to %s (session %s)", path, c.id)
	return nil
}

// Disconnect stops the worker and closes the port. Safe to call on a
// disconnected Connection.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w != nil {
		c.w.Stop()
		c.w = nil
	}

	if c.port == nil {
		return nil
	}

	err := c.port.Close()
	c.port = nil
	log.Info().Msgf("disconnected from %s (session %s)", c.path, c.id)
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// Connected reports whether the port is open and its worker is running.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port != nil && c.w != nil && c.w.IsRunning()
}

// Worker returns the worker that owns this connection's transport, or nil
// when disconnected.
func (c *Connection) Worker() *worker.Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.w
}

// Path returns the serial device path, or "" when never connected.
func (c *Connection) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// ID returns the per-session UUID used for log correlation.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}
