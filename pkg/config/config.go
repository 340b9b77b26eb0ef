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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patchlink-project/patchlink-core/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "PATCHLINK_CFG"
	CfgFile       = "config.toml"
	AppVersion    = "0.4.0"
)

type Values struct {
	Device       Device   `toml:"device,omitempty"`
	Transfer     Transfer `toml:"transfer,omitempty"`
	ConfigSchema int      `toml:"config_schema"`
	DebugLogging bool     `toml:"debug_logging"`
}

// Device holds serial link and protocol channel settings.
type Device struct {
	Program            string `toml:"program,omitempty"`
	ShellPrompt        string `toml:"shell_prompt,omitempty"`
	BaudRate           int    `toml:"baud_rate"`
	ReadTimeoutMs      int    `toml:"read_timeout_ms"`
	TickPeriodMs       int    `toml:"tick_period_ms"`
	Wakeups            int    `toml:"wakeups"`
	ModeEntryTimeoutMs int    `toml:"mode_entry_timeout_ms"`
}

// Transfer holds chunked file transfer tuning.
type Transfer struct {
	ChunkSize     int `toml:"chunk_size"`
	WriteDelayMs  int `toml:"write_delay_ms"`
	Retries       int `toml:"retries"`
	RetryDelayMs  int `toml:"retry_delay_ms"`
	TimeoutMs     int `toml:"timeout_ms"`
	ListTimeoutMs int `toml:"list_timeout_ms"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Device: Device{
		Program:            "fl",
		ShellPrompt:        "msh >",
		BaudRate:           115200,
		ReadTimeoutMs:      50,
		TickPeriodMs:       100,
		Wakeups:            3,
		ModeEntryTimeoutMs: 2000,
	},
	Transfer: Transfer{
		ChunkSize:     256,
		WriteDelayMs:  5,
		Retries:       3,
		RetryDelayMs:  100,
		TimeoutMs:     2000,
		ListTimeoutMs: 5000,
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		mu:       syncutil.RWMutex{},
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if _, err := os.Stat(c.cfgPath); err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(c.cfgPath, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

func (c *Instance) Program() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.Program
}

func (c *Instance) ShellPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.ShellPrompt
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.BaudRate
}

func (c *Instance) ReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.ReadTimeoutMs) * time.Millisecond
}

func (c *Instance) TickPeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.TickPeriodMs) * time.Millisecond
}

func (c *Instance) Wakeups() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.Wakeups
}

func (c *Instance) ModeEntryTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.ModeEntryTimeoutMs) * time.Millisecond
}

func (c *Instance) ChunkSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Transfer.ChunkSize
}

func (c *Instance) WriteDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Transfer.WriteDelayMs) * time.Millisecond
}

func (c *Instance) Retries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Transfer.Retries
}

func (c *Instance) RetryDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Transfer.RetryDelayMs) * time.Millisecond
}

func (c *Instance) TransferTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Transfer.TimeoutMs) * time.Millisecond
}

func (c *Instance) ListTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Transfer.ListTimeoutMs) * time.Millisecond
}
