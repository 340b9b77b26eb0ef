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

// Package worker implements the single goroutine that owns a device's
// serial transport. All transport access goes through its FIFO command
// queue, which is what guarantees request/response exchanges are never
// interleaved: the device speaks a strictly request-then-response protocol
// with no multiplexing, so one queue replaces any locking around the port.
package worker

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patchlink-project/patchlink-core/pkg/device/timers"
	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const (
	// backlogWarnThreshold is a backpressure signal, not a limit. The queue
	// is unbounded by design since commands are lightweight.
	backlogWarnThreshold = 32

	defaultTickPeriod = 100 * time.Millisecond
	stopJoinTimeout   = 2 * time.Second
	readBufSize       = 4096
)

// Port is the minimal transport surface the worker needs. Reads must
// return (0, nil) when the port's read timeout elapses with no data.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
}

// EntryKind selects how a queue entry is executed.
type EntryKind int

const (
	// KindWrite sends raw bytes to the transport.
	KindWrite EntryKind = iota
	// KindInvoke runs a closure with exclusive transport access.
	KindInvoke
)

// Entry is one unit of queued work. Done, if non-nil, is closed once the
// entry has been processed (or drained on shutdown) so waiting callers are
// never left hanging.
type Entry struct {
	Fn   func()
	Done chan struct{}
	Data []byte
	Kind EntryKind
}

// Worker drains a FIFO command queue, runs due timers and polls the
// transport for unsolicited output, then sleeps until the next event.
type Worker struct {
	port       Port
	clock      clockwork.Clock
	tm         *timers.Manager
	wake       chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
	onLine     func(string)
	queue      []Entry
	lineBuf    []byte
	tickPeriod time.Duration
	running    bool
	stopping   bool
	mu         syncutil.Mutex
}

// NewWorker creates a worker bound to port. A nil clock defaults to the
// real system clock; a non-positive tickPeriod uses the default.
func NewWorker(port Port, clock clockwork.Clock, tickPeriod time.Duration) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tickPeriod <= 0 {
		tickPeriod = defaultTickPeriod
	}
	return &Worker{
		port:       port,
		clock:      clock,
		tickPeriod: tickPeriod,
	}
}

// SetLineHandler registers a callback for unsolicited output lines read
// during the worker's receive poll. Must be called before Start.
func (w *Worker) SetLineHandler(fn func(string)) {
	w.onLine = fn
}

// Port returns the transport handle. Only safe to use from inside a
// KindInvoke entry, which runs with exclusive transport access.
func (w *Worker) Port() Port {
	return w.port
}

// Clock returns the clock the worker schedules against.
func (w *Worker) Clock() clockwork.Clock {
	return w.clock
}

// Start launches the worker goroutine. Calling Start on a running worker
// is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		log.Debug().Msg("worker already running")
		return
	}
	w.queue = make([]Entry, 0, 16)
	w.tm = timers.NewManager(w.clock)
	w.wake = make(chan struct{}, 1)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	go w.loop()
}

// Stop signals termination, wakes the loop and joins it with a bounded
// timeout, then clears all timers and signals any entries still queued so
// no caller is left blocked in EnqueueAndWait. Safe to call from multiple
// goroutines; only the first caller performs the shutdown.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running || w.stopping {
		w.mu.Unlock()
		return
	}
	w.stopping = true
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	w.Wake()

	select {
	case <-doneCh:
	case <-time.After(stopJoinTimeout):
		log.Warn().Msg("worker did not stop within join timeout")
	}

	w.mu.Lock()
	w.running = false
	w.stopping = false
	rest := w.queue
	w.queue = nil
	if w.tm != nil {
		w.tm.Clear()
		w.tm = nil
	}
	w.mu.Unlock()

	if len(rest) > 0 {
		log.Warn().Msgf("discarding %d queued commands on worker stop", len(rest))
	}
	for i := range rest {
		if rest[i].Done != nil {
			close(rest[i].Done)
		}
	}
}

// IsRunning reports whether the worker goroutine is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Timers returns the worker's timer manager, or nil when the worker is
// not running.
func (w *Worker) Timers() *timers.Manager {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tm
}

// Enqueue appends an entry to the command queue. Returns false if the
// worker is not running.
func (w *Worker) Enqueue(e Entry) bool {
	w.mu.Lock()
	if !w.running || w.queue == nil {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, e)
	w.mu.Unlock()

	w.Wake()
	return true
}

// EnqueueAndWait appends an entry with a completion signal and blocks up
// to timeout for it to be processed. A false return means the command may
// or may not have been applied; callers should re-synchronize via a status
// query rather than assume failure. A true return that races a concurrent
// Stop carries the same caveat: entries still queued at shutdown have Done
// closed without executing.
func (w *Worker) EnqueueAndWait(e Entry, timeout time.Duration) bool {
	if e.Done == nil {
		e.Done = make(chan struct{})
	}
	if !w.Enqueue(e) {
		return false
	}

	select {
	case <-e.Done:
		return true
	case <-w.clock.After(timeout):
		return false
	}
}

// Wake nudges the worker out of its end-of-iteration sleep.
func (w *Worker) Wake() {
	w.mu.Lock()
	wake := w.wake
	w.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (w *Worker) loop() {
	w.mu.Lock()
	doneCh := w.doneCh
	stopCh := w.stopCh
	wake := w.wake
	tm := w.tm
	w.mu.Unlock()

	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if backlog := w.queueLen(); backlog > backlogWarnThreshold {
			log.Warn().Msgf("command queue backlog: %d entries", backlog)
		}

		for {
			e, ok := w.dequeue()
			if !ok {
				break
			}
			w.process(e)
		}

		tm.Tick(w.clock.Now())

		w.pollReceive()

		sleep := w.tickPeriod
		if d, ok := tm.NextWake(w.clock.Now()); ok && d < sleep {
			sleep = d
		}

		select {
		case <-stopCh:
			return
		case <-wake:
			// signal consumed, which also clears it
		case <-w.clock.After(sleep):
		}
	}
}

func (w *Worker) queueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) dequeue() (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Entry{}, false
	}
	e := w.queue[0]
	w.queue = w.queue[1:]
	return e, true
}

func (w *Worker) process(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("queued command panicked: %v", r)
		}
		if e.Done != nil {
			close(e.Done)
		}
	}()

	switch e.Kind {
	case KindWrite:
		if _, err := w.port.Write(e.Data); err != nil {
			log.Error().Err(err).Msg("failed to write to serial port")
		}
	case KindInvoke:
		if e.Fn != nil {
			e.Fn()
		}
	}
}

// pollReceive performs one non-blocking receive poll, draining whatever
// bytes are available and splitting them into lines. The port's short read
// timeout is what bounds each Read call.
func (w *Worker) pollReceive() {
	buf := make([]byte, readBufSize)
	for {
		n, err := w.port.Read(buf)
		if err != nil {
			log.Error().Err(err).Msg("failed to read from serial port")
			return
		}
		if n == 0 {
			return
		}

		w.ingest(buf[:n])

		if n < len(buf) {
			return
		}
	}
}

func (w *Worker) ingest(data []byte) {
	for _, b := range data {
		if b == '\n' {
			line := strings.TrimRight(string(w.lineBuf), "\r")
			w.lineBuf = w.lineBuf[:0]
			if line == "" {
				continue
			}
			log.Debug().Msgf("device: %s", line)
			if w.onLine != nil {
				w.onLine(line)
			}
		} else {
			w.lineBuf = append(w.lineBuf, b)
		}
	}
}
