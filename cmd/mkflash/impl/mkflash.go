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

// Package impl is the implementation of the mkflash tool.
package impl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
)

// MkflashOpts encapsulates mkflash parameters.
type MkflashOpts struct {
	Manifest string
	Output   string
	Quiet    bool
}

// Manifest describes the contents of a flash image.
type Manifest struct {
	// Size is the size of the flash in bytes.
	Size       int64       `yaml:"Size"`
	Partitions []Partition `yaml:"Partitions"`
}

// Partition describes one partition table entry and its contents.
type Partition struct {
	Name string `yaml:"Name"`
	// Type is "app", "data", "appfs" or a number.
	Type string `yaml:"Type"`
	// Subtype is e.g. "factory", "ota_0", "nvs" or a number.
	Subtype   string `yaml:"Subtype"`
	Offset    uint32 `yaml:"Offset"`
	Size      uint32 `yaml:"Size"`
	Encrypted bool   `yaml:"Encrypted"`

	// Image is written to the start of the partition.
	Image string `yaml:"Image"`
	// Files are stored in an AppFS partition.
	Files []File `yaml:"Files"`
	// Serial is the AppFS metadata serial.
	Serial uint32 `yaml:"Serial"`
}

// File is a file stored in an AppFS partition.
type File struct {
	Name    string `yaml:"Name"`
	Title   string `yaml:"Title"`
	Version uint16 `yaml:"Version"`
	Path    string `yaml:"Path"`
}

var types = map[string]uint8{
	"app":   format.TypeApp,
	"data":  format.TypeData,
	"appfs": format.TypeAppFS,
}

var subtypes = map[uint8]map[string]uint8{
	format.TypeApp: {
		"factory": format.SubtypeAppFactory,
		"test":    format.SubtypeAppTest,
	},
	format.TypeData: {
		"ota":      format.SubtypeDataOTA,
		"phy":      format.SubtypeDataPHY,
		"nvs":      format.SubtypeDataNVS,
		"coredump": format.SubtypeDataCoreDump,
		"nvs_keys": format.SubtypeDataNVSKey,
		"esphttpd": format.SubtypeDataESPHTTPD,
		"fat":      format.SubtypeDataFATFS,
		"spiffs":   format.SubtypeDataSPIFFS,
		"littlefs": format.SubtypeDataLittleFS,
	},
	format.TypeAppFS: {
		"":      format.SubtypeAppFS,
		"appfs": format.SubtypeAppFS,
	},
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// parseType resolves the type and subtype names of a partition.
func parseType(typ, subtype string) (uint8, uint8, error) {
	t, ok := types[strings.ToLower(typ)]
	if !ok {
		var err error
		if t, err = parseUint8(typ); err != nil {
			return 0, 0, fmt.Errorf("unknown partition type %q", typ)
		}
	}
	subtype = strings.ToLower(subtype)
	if s, ok := subtypes[t][subtype]; ok {
		return t, s, nil
	}
	if t == format.TypeApp && strings.HasPrefix(subtype, "ota_") {
		n, err := strconv.Atoi(strings.TrimPrefix(subtype, "ota_"))
		if err != nil || n < 0 || n > format.SubtypeAppOTA15-format.SubtypeAppOTA0 {
			return 0, 0, fmt.Errorf("invalid OTA subtype %q", subtype)
		}
		return t, uint8(format.SubtypeAppOTA0 + n), nil
	}
	if subtype == "" {
		return t, 0, nil
	}
	s, err := parseUint8(subtype)
	if err != nil {
		return 0, 0, fmt.Errorf("unknown subtype %q for type %q", subtype, typ)
	}
	return t, s, nil
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(b []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return m, nil
}

// validate checks that the partitions fit on the flash without overlapping
// each other or the partition table.
func (m Manifest) validate() error {
	if m.Size <= format.PartitionTableOffset+format.PartitionTableSize {
		return fmt.Errorf("flash size %#x leaves no room for partitions", m.Size)
	}
	type span struct {
		name       string
		start, end int64
	}
	spans := []span{{"partition table", format.PartitionTableOffset, format.PartitionTableOffset + format.PartitionTableSize}}
	for _, p := range m.Partitions {
		if p.Name == "" || len(p.Name) > format.MaxLabelLen {
			return fmt.Errorf("invalid partition name %q", p.Name)
		}
		if p.Size == 0 {
			return fmt.Errorf("partition %q is empty", p.Name)
		}
		end := int64(p.Offset) + int64(p.Size)
		if end > m.Size {
			return fmt.Errorf("partition %q [%#x, %#x) exceeds flash size %#x", p.Name, p.Offset, end, m.Size)
		}
		spans = append(spans, span{p.Name, int64(p.Offset), end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("%q overlaps %q", spans[i].name, spans[i-1].name)
		}
	}
	return nil
}

// Build assembles the flash image described by m. Relative paths are
// resolved against dir.
func Build(m Manifest, dir string) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	flash := bytes.Repeat([]byte{0xFF}, int(m.Size))
	entries := make([]format.PartitionEntry, 0, len(m.Partitions))
	for _, p := range m.Partitions {
		t, s, err := parseType(p.Type, p.Subtype)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", p.Name, err)
		}
		e := format.NewPartitionEntry(p.Name, t, s, p.Offset, p.Size)
		if p.Encrypted {
			e.Flags |= format.FlagEncrypted
		}
		entries = append(entries, e)

		var content []byte
		switch {
		case p.Image != "" && len(p.Files) > 0:
			return nil, fmt.Errorf("partition %q has both an image and files", p.Name)
		case p.Image != "":
			if content, err = os.ReadFile(resolve(dir, p.Image)); err != nil {
				return nil, fmt.Errorf("partition %q: %w", p.Name, err)
			}
		case t == format.TypeAppFS:
			files := make([]format.AppFSFile, 0, len(p.Files))
			for _, f := range p.Files {
				data, err := os.ReadFile(resolve(dir, f.Path))
				if err != nil {
					return nil, fmt.Errorf("partition %q: %w", p.Name, err)
				}
				files = append(files, format.AppFSFile{Name: f.Name, Title: f.Title, Version: f.Version, Data: data})
			}
			if content, err = format.BuildAppFS(int64(p.Size), p.Serial, files); err != nil {
				return nil, fmt.Errorf("partition %q: %w", p.Name, err)
			}
		case len(p.Files) > 0:
			return nil, fmt.Errorf("partition %q: files need an appfs partition", p.Name)
		}
		if int64(len(content)) > int64(p.Size) {
			return nil, fmt.Errorf("partition %q: %d bytes of content do not fit in %d", p.Name, len(content), p.Size)
		}
		copy(flash[p.Offset:], content)
		glog.V(1).Infof("Partition %q at %#x: %d bytes", p.Name, p.Offset, len(content))
	}
	table, err := format.BuildPartitionTable(entries)
	if err != nil {
		return nil, err
	}
	copy(flash[format.PartitionTableOffset:], table)
	return flash, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Main builds the flash image described by opts.Manifest.
func Main(opts MkflashOpts) error {
	if opts.Manifest == "" || opts.Output == "" {
		return errors.New("manifest and output must be set")
	}
	b, err := os.ReadFile(opts.Manifest)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(b)
	if err != nil {
		return err
	}
	img, err := Build(m, filepath.Dir(opts.Manifest))
	if err != nil {
		return fmt.Errorf("failed to build flash image: %w", err)
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	var w io.Writer = f
	if !opts.Quiet {
		bar := progressbar.DefaultBytes(int64(len(img)), fmt.Sprintf("writing %s", opts.Output))
		defer bar.Close()
		w = io.MultiWriter(f, bar)
	}
	if _, err := io.Copy(w, bytes.NewReader(img)); err != nil {
		f.Close()
		os.Remove(opts.Output)
		return fmt.Errorf("failed to write flash image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("failed to close flash image: %w", err)
	}
	glog.Infof("Wrote %d partitions to %q", len(m.Partitions), opts.Output)
	return nil
}
