// Copyright 2024 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package impl is the implementation of the bootloader emulator.
package impl

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/badgeteam/badgeboot/internal/boot"
	"github.com/badgeteam/badgeboot/internal/config"
	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/badgeteam/badgeboot/internal/partsys"
	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/badgeteam/badgeboot/internal/protocol"
	"github.com/badgeteam/badgeboot/internal/xip"
	"github.com/golang/glog"
)

// EmulatorOpts encapsulates emulator parameters.
type EmulatorOpts struct {
	// Board is the path of the board description.
	Board string
	// Flash, if set, replaces the board's media with a single XIP flash.
	Flash string
}

// Result describes the outcome of a boot attempt.
type Result struct {
	Sim *platform.Sim
	XIP *xip.Table
	// Booted is the partition which was booted, or nil.
	Booted *partsys.Partition
}

// Main runs one boot attempt on the board described by opts.
func Main(opts EmulatorOpts) error {
	cfg := config.Default()
	if opts.Board != "" {
		var err error
		if cfg, err = config.Load(opts.Board); err != nil {
			return err
		}
	}
	if opts.Flash != "" {
		cfg.Media = []config.Medium{{Name: "flash", Kind: config.KindXIP, Path: opts.Flash}}
	}
	if len(cfg.Media) == 0 {
		return errors.New("no boot media configured")
	}
	res, err := Run(cfg)
	if err != nil {
		return err
	}
	if n := len(res.Sim.Jumps); n > 0 {
		glog.Infof("Booted %v at %#x", res.Booted, res.Sim.Jumps[n-1])
		return nil
	}
	glog.Infof("Booted %v", res.Booted)
	return nil
}

// Run boots the board described by cfg.
func Run(cfg config.Board) (*Result, error) {
	sim := platform.NewSim(cfg.PlatformLayout())
	reg := &boot.Registries{}

	rom := media.NewMem("rom", nil)
	for _, mc := range cfg.Media {
		if mc.Kind == config.KindXIP {
			b, err := os.ReadFile(mc.Path)
			if err != nil {
				return nil, fmt.Errorf("medium %q: %w", mc.Name, err)
			}
			rom = media.NewMem(mc.Name+"-rom", b)
		}
	}
	table, err := xip.New(cfg.XIPConfig(), sim, rom)
	if err != nil {
		return nil, fmt.Errorf("failed to create XIP table: %w", err)
	}

	for _, mc := range cfg.Media {
		m, closer, err := openMedium(mc, table, rom)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			defer closer.Close()
		}
		if err := reg.Media.Register(m); err != nil {
			return nil, err
		}
	}
	if err := registerDrivers(reg, cfg, protocol.Env{XIP: table, Layout: cfg.PlatformLayout(), Platform: sim}); err != nil {
		return nil, err
	}

	s := boot.NewSession(reg, sim, boot.Opts{
		MaxPartitions: cfg.Partitions.Max,
		RawFallback:   cfg.Partitions.RawFallback,
	})
	if err := s.Run(); err != nil {
		return nil, err
	}
	return &Result{Sim: sim, XIP: table, Booted: s.Booted}, nil
}

// openMedium creates the medium described by mc. The returned closer, if
// not nil, releases the backing device.
func openMedium(mc config.Medium, table *xip.Table, rom *media.Mem) (media.Medium, io.Closer, error) {
	switch mc.Kind {
	case config.KindXIP:
		return media.NewXIP(mc.Name, table, rom.Size()), nil, nil
	case config.KindMem:
		b, err := os.ReadFile(mc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("medium %q: %w", mc.Name, err)
		}
		return media.NewMem(mc.Name, b), nil, nil
	case config.KindBlock:
		dev, err := media.OpenFileDev(mc.Path, mc.BlockSize)
		if err != nil {
			return nil, nil, fmt.Errorf("medium %q: %w", mc.Name, err)
		}
		return media.NewBlock(mc.Name, dev), dev, nil
	default:
		return nil, nil, fmt.Errorf("medium %q: unknown kind %q", mc.Name, mc.Kind)
	}
}

// registerDrivers registers the partition systems, filesystems and
// protocols configured for the board.
func registerDrivers(reg *boot.Registries, cfg config.Board, env protocol.Env) error {
	if err := reg.PartSys.Register(&partsys.ESP{
		TableOffset: cfg.Partitions.TableOffset,
		TableSize:   cfg.Partitions.TableSize,
	}); err != nil {
		return err
	}
	for _, name := range cfg.Filesystems {
		var fs filesys.Filesystem
		switch name {
		case config.FilesysAppFS:
			fs = &filesys.AppFS{BootFile: cfg.AppFSBootFile}
		case config.FilesysExt4:
			fs = &filesys.Ext4{BootPath: cfg.Ext4BootPath}
		case config.FilesysRaw:
			fs = filesys.Raw{}
		default:
			return fmt.Errorf("unknown filesystem %q", name)
		}
		if err := reg.Filesys.Register(fs); err != nil {
			return err
		}
	}
	for _, name := range cfg.Protocols {
		var p protocol.Protocol
		switch name {
		case config.ProtocolESP:
			p = protocol.NewESP(env, cfg.ChipID)
		case config.ProtocolELF:
			p = &protocol.ELF{Env: env}
		case config.ProtocolWASM:
			p = &protocol.WASM{EntryPoint: cfg.WASMEntryPoint}
		default:
			return fmt.Errorf("unknown protocol %q", name)
		}
		if err := reg.Protocols.Register(p); err != nil {
			return err
		}
	}
	return nil
}
