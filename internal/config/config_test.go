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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(Default().PlatformLayout(), platform.ESP32C6); diff != "" {
		t.Errorf("PlatformLayout diff (-got +want):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	for _, test := range []struct {
		name    string
		yaml    string
		want    func(b *Board)
		wantErr bool
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			want: func(*Board) {},
		}, {
			name: "media and overrides",
			yaml: `
AppFSBootFile: launcher
Partitions:
  Max: 4
  RawFallback: true
Media:
  - Name: flash
    Kind: xip
    Path: flash.bin
  - Name: sd
    Kind: block
    Path: sd.img
    BlockSize: 512
Protocols: [esp, wasm]
`,
			want: func(b *Board) {
				b.AppFSBootFile = "launcher"
				b.Partitions.Max = 4
				b.Partitions.RawFallback = true
				b.Media = []Medium{
					{Name: "flash", Kind: KindXIP, Path: "flash.bin"},
					{Name: "sd", Kind: KindBlock, Path: "sd.img", BlockSize: 512},
				}
				b.Protocols = []string{ProtocolESP, ProtocolWASM}
			},
		}, {
			name:    "unknown protocol",
			yaml:    "Protocols: [uefi]",
			wantErr: true,
		}, {
			name:    "unknown filesystem",
			yaml:    "Filesystems: [fat]",
			wantErr: true,
		}, {
			name:    "no protocols",
			yaml:    "Protocols: []",
			wantErr: true,
		}, {
			name:    "bad block size",
			yaml:    "Media: [{Name: sd, Kind: block, BlockSize: 500}]",
			wantErr: true,
		}, {
			name:    "unknown medium kind",
			yaml:    "Media: [{Name: usb, Kind: usb}]",
			wantErr: true,
		}, {
			name:    "duplicate medium",
			yaml:    "Media: [{Name: a, Kind: mem}, {Name: a, Kind: mem}]",
			wantErr: true,
		}, {
			name:    "two XIP media",
			yaml:    "Media: [{Name: a, Kind: xip}, {Name: b, Kind: xip}]",
			wantErr: true,
		}, {
			name:    "bad page size",
			yaml:    "XIP: {PageSize: 0x3000}",
			wantErr: true,
		}, {
			name:    "zero capacity",
			yaml:    "Partitions: {Max: 0}",
			wantErr: true,
		}, {
			name:    "malformed",
			yaml:    "Media: {",
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse([]byte(test.yaml))
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Parse: %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			want := Default()
			test.want(&want)
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("Parse diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, []byte("ChipID: 0x05\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := b.ChipID, uint16(5); got != want {
		t.Errorf("ChipID: got %#x, want %#x", got, want)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
