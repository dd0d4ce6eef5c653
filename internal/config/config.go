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

// Package config describes a board and the boot chain configured for it.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/badgeteam/badgeboot/internal/xip"
	"gopkg.in/yaml.v3"
)

// Medium kinds.
const (
	KindXIP   = "xip"
	KindBlock = "block"
	KindMem   = "mem"
)

// Filesystem names.
const (
	FilesysAppFS = "appfs"
	FilesysExt4  = "ext4"
	FilesysRaw   = "raw"
)

// Protocol names.
const (
	ProtocolESP  = "esp"
	ProtocolELF  = "elf"
	ProtocolWASM = "wasm"
)

// Board is the configuration of a board and its boot chain.
type Board struct {
	// ChipID is the chip id ESP images must carry.
	ChipID uint16 `yaml:"ChipID"`
	// Layout lists the windows images may be loaded to.
	Layout Layout `yaml:"Layout"`
	// XIP is the geometry of the XIP MMU.
	XIP XIP `yaml:"XIP"`
	// Partitions configures partition discovery.
	Partitions Partitions `yaml:"Partitions"`
	// Media are the boot media, in the order they are tried.
	Media []Medium `yaml:"Media"`
	// Filesystems are tried on each partition in order.
	Filesystems []string `yaml:"Filesystems"`
	// Protocols are tried on each boot file in order.
	Protocols []string `yaml:"Protocols"`

	// AppFSBootFile names the AppFS file to boot; empty boots the first.
	AppFSBootFile string `yaml:"AppFSBootFile"`
	// Ext4BootPath is the path of the boot file on ext4 partitions.
	Ext4BootPath string `yaml:"Ext4BootPath"`
	// WASMEntryPoint is the function run by the WASM protocol.
	WASMEntryPoint string `yaml:"WASMEntryPoint"`
}

// Layout is the address map of the board.
type Layout struct {
	XIPBase uint32 `yaml:"XIPBase"`
	XIPSize uint32 `yaml:"XIPSize"`
	RAMBase uint32 `yaml:"RAMBase"`
	RAMSize uint32 `yaml:"RAMSize"`
}

// XIP is the geometry of the XIP MMU.
type XIP struct {
	Slots       int    `yaml:"Slots"`
	PhysPages   int    `yaml:"PhysPages"`
	PageSize    uint32 `yaml:"PageSize"`
	MinPageSize uint32 `yaml:"MinPageSize"`
	MaxPageSize uint32 `yaml:"MaxPageSize"`
}

// Partitions configures partition discovery.
type Partitions struct {
	// TableOffset and TableSize locate the ESP partition table.
	TableOffset int64 `yaml:"TableOffset"`
	TableSize   int64 `yaml:"TableSize"`
	// Max is the capacity of the boot partition table.
	Max int `yaml:"Max"`
	// RawFallback treats a medium without a partition table as a single
	// bootable partition.
	RawFallback bool `yaml:"RawFallback"`
}

// Medium describes one boot medium.
type Medium struct {
	Name string `yaml:"Name"`
	// Kind is one of "xip", "block" or "mem".
	Kind string `yaml:"Kind"`
	// Path is the image file backing the medium.
	Path string `yaml:"Path"`
	// BlockSize is the sector size of block media.
	BlockSize uint `yaml:"BlockSize"`
}

// Default returns the configuration of an ESP32-C6 badge booting from its
// SPI flash.
func Default() Board {
	return Board{
		ChipID: format.ChipESP32C6,
		Layout: Layout{
			XIPBase: platform.ESP32C6.XIP.Base,
			XIPSize: platform.ESP32C6.XIP.Size,
			RAMBase: platform.ESP32C6.RAM.Base,
			RAMSize: platform.ESP32C6.RAM.Size,
		},
		XIP: XIP{
			Slots:       256,
			PhysPages:   256,
			PageSize:    0x10000,
			MinPageSize: 0x2000,
			MaxPageSize: 0x10000,
		},
		Partitions: Partitions{
			TableOffset: format.PartitionTableOffset,
			TableSize:   format.PartitionTableSize,
			Max:         16,
		},
		Filesystems:    []string{FilesysAppFS, FilesysExt4, FilesysRaw},
		Protocols:      []string{ProtocolESP, ProtocolELF},
		Ext4BootPath:   "/boot/kernel.elf",
		WASMEntryPoint: "main",
	}
}

// Parse decodes a YAML board description on top of the defaults.
func Parse(b []byte) (Board, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Board{}, fmt.Errorf("failed to unmarshal board config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Board{}, err
	}
	return c, nil
}

// Load reads and decodes the board description at path.
func Load(path string) (Board, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Board{}, fmt.Errorf("failed to read board config: %w", err)
	}
	return Parse(b)
}

// Validate checks that the configuration is usable.
func (c Board) Validate() error {
	if err := c.XIPConfig().Validate(); err != nil {
		return fmt.Errorf("invalid XIP config: %w", err)
	}
	if c.Partitions.Max <= 0 {
		return fmt.Errorf("invalid partition table capacity %d", c.Partitions.Max)
	}
	if c.Partitions.TableOffset < 0 || c.Partitions.TableSize < format.PartitionEntrySize {
		return fmt.Errorf("invalid partition table location %#x+%#x", c.Partitions.TableOffset, c.Partitions.TableSize)
	}
	if uint64(c.Layout.XIPSize) < uint64(c.XIP.Slots)*uint64(c.XIP.MinPageSize) {
		return fmt.Errorf("XIP window of %#x bytes smaller than the MMU's %d slots", c.Layout.XIPSize, c.XIP.Slots)
	}
	names := map[string]bool{}
	xips := 0
	for i, m := range c.Media {
		if m.Name == "" {
			return fmt.Errorf("medium %d has no name", i)
		}
		if names[m.Name] {
			return fmt.Errorf("duplicate medium %q", m.Name)
		}
		names[m.Name] = true
		switch m.Kind {
		case KindXIP:
			xips++
			if xips > 1 {
				return fmt.Errorf("medium %q: only one XIP medium is supported", m.Name)
			}
		case KindMem:
		case KindBlock:
			if m.BlockSize == 0 || m.BlockSize&(m.BlockSize-1) != 0 {
				return fmt.Errorf("medium %q: block size %d is not a power of two", m.Name, m.BlockSize)
			}
		default:
			return fmt.Errorf("medium %q: unknown kind %q", m.Name, m.Kind)
		}
	}
	for _, f := range c.Filesystems {
		switch f {
		case FilesysAppFS, FilesysExt4, FilesysRaw:
		default:
			return fmt.Errorf("unknown filesystem %q", f)
		}
	}
	if len(c.Protocols) == 0 {
		return errors.New("no boot protocols configured")
	}
	for _, p := range c.Protocols {
		switch p {
		case ProtocolESP, ProtocolELF, ProtocolWASM:
		default:
			return fmt.Errorf("unknown protocol %q", p)
		}
	}
	return nil
}

// XIPConfig returns the XIP MMU geometry.
func (c Board) XIPConfig() xip.Config {
	return xip.Config{
		Base:        c.Layout.XIPBase,
		Slots:       c.XIP.Slots,
		PhysPages:   c.XIP.PhysPages,
		PageSize:    c.XIP.PageSize,
		MinPageSize: c.XIP.MinPageSize,
		MaxPageSize: c.XIP.MaxPageSize,
	}
}

// PlatformLayout returns the board's address map.
func (c Board) PlatformLayout() platform.Layout {
	return platform.Layout{
		XIP: platform.Window{Base: c.Layout.XIPBase, Size: c.Layout.XIPSize},
		RAM: platform.Window{Base: c.Layout.RAMBase, Size: c.Layout.RAMSize},
	}
}
