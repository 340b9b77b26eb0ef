/*
PatchLink Core
Copyright (c) 2026 The PatchLink Project Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of PatchLink Core.

PatchLink Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

PatchLink Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with PatchLink Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/patchlink-project/patchlink-core/pkg/config"
	"github.com/patchlink-project/patchlink-core/pkg/device"
	"github.com/patchlink-project/patchlink-core/pkg/device/protocol"
	"github.com/patchlink-project/patchlink-core/pkg/device/transfer"
	"github.com/patchlink-project/patchlink-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

//nolint:gocyclo // one branch per CLI operation
func run() error {
	port := flag.String("port", "", "serial device path (default: first detected)")
	doDetect := flag.Bool("detect", false, "list candidate serial devices and exit")
	doProbe := flag.Bool("probe", false, "enter command mode and report the firmware platform")
	lsPath := flag.String("ls", "", "list a remote directory")
	uploadPath := flag.String("upload", "", "local file to upload")
	downloadPath := flag.String("download", "", "remote file to download")
	remotePath := flag.String("remote", "", "remote path for -upload")
	outPath := flag.String("out", "", "local destination for -download")
	rmPath := flag.String("rm", "", "remove a remote file")
	mkdirPath := flag.String("mkdir", "", "create a remote directory")
	renamePath := flag.String("rename", "", "remote path to rename (requires -to)")
	renameTo := flag.String("to", "", "new remote path for -rename")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	configDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to find config directory: %w", err)
	}
	appDir := filepath.Join(configDir, "patchlink")

	if err := helpers.InitLogging(appDir, nil); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg, err := config.NewConfig(appDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	helpers.SetDebugLogging(*debug || cfg.DebugLogging())

	log.Info().Msgf("version: %s", config.AppVersion)

	if *doDetect {
		devices, err := helpers.GetSerialDeviceList()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no serial devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Println(d)
		}
		return nil
	}

	path := *port
	if path == "" {
		devices, err := helpers.GetSerialDeviceList()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return errors.New("no serial devices found, specify one with -port")
		}
		path = devices[0]
		log.Info().Msgf("no port given, using %s", path)
	}

	conn := device.NewConnection(cfg, nil)
	if err := conn.Connect(path); err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			log.Error().Err(err).Msg("error disconnecting")
		}
	}()

	ch := protocol.NewChannel(cfg, conn)
	platform, err := ch.EnterMode(cfg.Wakeups(), cfg.ModeEntryTimeout())
	if err != nil {
		return fmt.Errorf("mode entry failed: %w", err)
	}

	if *doProbe {
		fmt.Printf("%s: %s firmware\n", path, platform)
		return nil
	}

	client := transfer.NewClient(cfg, ch)

	switch {
	case *lsPath != "":
		listing, err := client.List(*lsPath)
		if err != nil {
			return err
		}
		fmt.Printf("%d dirs, %d files\n", listing.Dirs, listing.Files)
		for _, e := range listing.Entries {
			if e.IsDir {
				fmt.Printf("D %s\n", e.Name)
			} else {
				fmt.Printf("F %s %d\n", e.Name, e.Size)
			}
		}
	case *uploadPath != "":
		if *remotePath == "" {
			return errors.New("-upload requires -remote")
		}
		data, err := os.ReadFile(*uploadPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", *uploadPath, err)
		}
		if err := client.Upload(data, *remotePath); err != nil {
			return err
		}
		fmt.Printf("uploaded %d bytes to %s\n", len(data), *remotePath)
	case *downloadPath != "":
		dest := *outPath
		if dest == "" {
			dest = filepath.Base(*downloadPath)
		}
		data, err := client.Download(*downloadPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		fmt.Printf("downloaded %d bytes to %s\n", len(data), dest)
	case *rmPath != "":
		if err := client.Remove(*rmPath); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", *rmPath)
	case *mkdirPath != "":
		if err := client.Mkdir(*mkdirPath); err != nil {
			return err
		}
		fmt.Printf("created %s\n", *mkdirPath)
	case *renamePath != "":
		if *renameTo == "" {
			return errors.New("-rename requires -to")
		}
		if err := client.Rename(*renamePath, *renameTo); err != nil {
			return err
		}
		fmt.Printf("renamed %s to %s\n", *renamePath, *renameTo)
	default:
		fmt.Printf("%s: %s firmware\n", path, platform)
	}

	return nil
}
