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

// Package timers implements reschedulable soft timers for the device
// worker. Timers never get their own goroutine; the worker calls Tick on
// each loop iteration and uses NextWake to bound its sleep.
package timers

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Handle identifies a timer registered with a Manager.
type Handle int

type timer struct {
	fn       func()
	next     time.Time
	interval time.Duration
	enabled  bool
}

// Manager is a set of soft timers. All methods are safe for concurrent
// use, though Tick is only ever called from the owning worker goroutine.
type Manager struct {
	clock  clockwork.Clock
	timers map[Handle]*timer
	nextID Handle
	mu     syncutil.Mutex
}

// NewManager creates an empty timer set. A nil clock defaults to the real
// system clock.
func NewManager(clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		clock:  clock,
		timers: make(map[Handle]*timer),
	}
}

// Add registers a periodic callback. The first fire is due one interval
// from now.
func (m *Manager) Add(interval time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	h := m.nextID
	m.timers[h] = &timer{
		interval: interval,
		fn:       fn,
		next:     m.clock.Now().Add(interval),
		enabled:  true,
	}
	return h
}

// Remove deletes a single timer. Removing an unknown handle is a no-op.
func (m *Manager) Remove(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, h)
}

// Clear removes all timers.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = make(map[Handle]*timer)
}

// SetEnabled enables or disables a timer. A disabled timer never fires and
// reports no wake deadline. Re-enabling reschedules relative to now so a
// long-disabled timer doesn't fire immediately.
func (m *Manager) SetEnabled(h Handle, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[h]
	if !ok {
		return
	}
	if enabled && !t.enabled {
		t.next = m.clock.Now().Add(t.interval)
	}
	t.enabled = enabled
}

// Count returns the number of registered timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Tick fires every due timer at most once, even if it is overdue by
// several intervals. Rescheduling is relative to now rather than the
// missed deadline, so persistent overload degrades to the nominal rate
// instead of busy-looping to catch up.
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	due := make([]*timer, 0, len(m.timers))
	for _, t := range m.timers {
		if t.enabled && !now.Before(t.next) {
			t.next = now.Add(t.interval)
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	// Callbacks run outside the lock so they can safely touch the manager.
	for _, t := range due {
		runTimer(t)
	}
}

func runTimer(t *timer) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("timer callback panicked: %v", r)
		}
	}()
	t.fn()
}

// NextWake returns the minimum remaining time across enabled timers, or
// false if none are enabled. It only bounds the worker's sleep; it is not
// a firing latency guarantee.
func (m *Manager) NextWake(now time.Time) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	var minWait time.Duration
	for _, t := range m.timers {
		if !t.enabled {
			continue
		}
		wait := t.next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		if !found || wait < minWait {
			minWait = wait
			found = true
		}
	}
	return minWait, found
}
