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

// Package protocol establishes the command channel to the device's fl
// program and provides the synchronous send-command-get-parsed-response
// primitive the transfer layer builds on. Both halves of an exchange run
// inside one worker queue entry, so request/response pairs are atomic at
// queue granularity.
package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/patchlink-project/patchlink-core/pkg/config"
	"github.com/patchlink-project/patchlink-core/pkg/device"
	"github.com/patchlink-project/patchlink-core/pkg/device/worker"
	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Platform classifies the firmware execution environment on the other end
// of the link. It is set once per connection during mode entry and cached.
type Platform int

const (
	// PlatformUnknown is the initial state and the mode-entry failure state.
	PlatformUnknown Platform = iota
	// PlatformBareMetal firmware speaks the protocol directly from its main
	// loop, with no shell layer.
	PlatformBareMetal
	// PlatformShellHosted firmware runs under an interactive command shell;
	// the fl program is invoked per command.
	PlatformShellHosted
)

func (p Platform) String() string {
	switch p {
	case PlatformBareMetal:
		return "bare-metal"
	case PlatformShellHosted:
		return "shell-hosted"
	default:
		return "unknown"
	}
}

// waitGrace pads the caller-facing wait beyond the in-exchange deadline so
// the exchange's own timeout is the one that fires.
const waitGrace = 1 * time.Second

// Channel is the request/response framing layer over one connection's
// worker. All reads and writes happen inside worker Invoke entries, never
// directly against the transport.
type Channel struct {
	cfg      *config.Instance
	conn     *device.Connection
	platform Platform
	mu       syncutil.RWMutex
}

// NewChannel creates a channel over conn. The platform starts Unknown
// until EnterMode succeeds.
func NewChannel(cfg *config.Instance, conn *device.Connection) *Channel {
	return &Channel{
		cfg:  cfg,
		conn: conn,
	}
}

// Platform returns the cached classification from the last EnterMode.
func (c *Channel) Platform() Platform {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.platform
}

// EnterMode establishes the command channel: it sends wakeup newlines to
// flush any interactive shell prompt, then polls for up to timeout,
// classifying the link by the first signature observed in the accumulated,
// ANSI-stripped output. A shell prompt token means shell-hosted firmware;
// a bare protocol OK marker means bare-metal firmware. Anything else
// leaves the platform Unknown and mode entry fails.
//
// The wakeup count is explicit per call so callers entering an uncertain
// link state can tune how aggressively they re-synchronize.
func (c *Channel) EnterMode(wakeups int, timeout time.Duration) (Platform, error) {
	w := c.conn.Worker()
	if w == nil || !w.IsRunning() {
		return PlatformUnknown, device.ErrNotConnected
	}

	result := PlatformUnknown
	var exchangeErr error

	done := w.EnqueueAndWait(worker.Entry{
		Kind: worker.KindInvoke,
		Fn: func() {
			result, exchangeErr = c.probe(w, wakeups, timeout)
		},
	}, timeout+waitGrace)
	if !done {
		if !w.IsRunning() {
			return PlatformUnknown, device.ErrNotConnected
		}
		return PlatformUnknown, device.ErrTimeout
	}

	c.mu.Lock()
	c.platform = result
	c.mu.Unlock()

	if exchangeErr != nil {
		return result, exchangeErr
	}

	log.Info().Msgf("mode entry ok, platform: %s", result)
	return result, nil
}

// probe runs inside a worker Invoke entry with exclusive transport access.
func (c *Channel) probe(w *worker.Worker, wakeups int, timeout time.Duration) (Platform, error) {
	port := w.Port()
	prompt := c.cfg.ShellPrompt()

	for i := 0; i < wakeups; i++ {
		if _, err := port.Write([]byte("\n")); err != nil {
			return PlatformUnknown, fmt.Errorf("wakeup write failed: %w", err)
		}
	}

	clock := w.Clock()
	deadline := clock.Now().Add(timeout)
	buf := make([]byte, 1024)
	var acc strings.Builder

	for clock.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return PlatformUnknown, fmt.Errorf("probe read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		acc.Write(buf[:n])
		text := StripANSI(acc.String())

		if prompt != "" && strings.Contains(text, prompt) {
			return PlatformShellHosted, nil
		}
		if strings.Contains(text, OKMarker) {
			return PlatformBareMetal, nil
		}
	}

	log.Warn().Msg("mode entry failed: no shell prompt or protocol marker seen")
	return PlatformUnknown, device.ErrTimeout
}

// Send issues one protocol command and waits for its terminal marker. The
// write and all response reads execute inside a single worker entry, so no
// other transport traffic can interleave with the exchange.
func (c *Channel) Send(operation string, args []Arg, timeout time.Duration) (Frame, error) {
	frame, _, err := c.SendWithBody(operation, args, timeout)
	return frame, err
}

// SendWithBody is Send plus the ANSI-stripped response text preceding the
// terminal marker line, for operations whose payload is multi-line.
func (c *Channel) SendWithBody(operation string, args []Arg, timeout time.Duration) (Frame, string, error) {
	w := c.conn.Worker()
	if w == nil || !w.IsRunning() {
		return Frame{}, "", device.ErrNotConnected
	}

	line := FormatCommand(c.cfg.Program(), operation, args)

	var frame Frame
	var body string
	var exchangeErr error

	done := w.EnqueueAndWait(worker.Entry{
		Kind: worker.KindInvoke,
		Fn: func() {
			frame, body, exchangeErr = c.exchange(w, line, timeout)
		},
	}, timeout+waitGrace)
	if !done {
		if !w.IsRunning() {
			return Frame{}, "", device.ErrNotConnected
		}
		return Frame{}, "", device.ErrTimeout
	}

	return frame, body, exchangeErr
}

// exchange runs inside a worker Invoke entry with exclusive transport access.
func (c *Channel) exchange(w *worker.Worker, line string, timeout time.Duration) (Frame, string, error) {
	port := w.Port()

	log.Debug().Msgf("send: %s", line)
	if _, err := port.Write([]byte(line + "\n")); err != nil {
		return Frame{}, "", fmt.Errorf("command write failed: %w", err)
	}

	clock := w.Clock()
	deadline := clock.Now().Add(timeout)
	buf := make([]byte, 1024)
	var acc strings.Builder

	for clock.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return Frame{}, "", fmt.Errorf("response read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		acc.Write(buf[:n])
		if frame, body, ok := ParseResponseBody(acc.String()); ok {
			log.Debug().Msgf("recv: ok=%v msg=%q", frame.OK, frame.Message)
			return frame, body, nil
		}
	}

	return Frame{}, "", device.ErrTimeout
}
