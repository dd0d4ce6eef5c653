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

package partsys

import (
	"testing"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const flashSize = 0x400000

func flash(t *testing.T, entries ...format.PartitionEntry) *media.Mem {
	t.Helper()
	b := make([]byte, flashSize)
	tbl, err := format.BuildPartitionTable(entries)
	if err != nil {
		t.Fatalf("BuildPartitionTable: %v", err)
	}
	copy(b[format.PartitionTableOffset:], tbl)
	return media.NewMem("flash", b)
}

func TestESPIdentify(t *testing.T) {
	for _, test := range []struct {
		name string
		m    media.Medium
		want int
	}{
		{
			name: "no table",
			m:    media.NewMem("flash", make([]byte, flashSize)),
			want: 0,
		}, {
			name: "too small",
			m:    media.NewMem("flash", make([]byte, 0x100)),
			want: 0,
		}, {
			name: "three partitions",
			m: flash(t,
				format.NewPartitionEntry("nvs", format.TypeData, format.SubtypeDataNVS, 0x9000, 0x6000),
				format.NewPartitionEntry("factory", format.TypeApp, format.SubtypeAppFactory, 0x10000, 0x100000),
				format.NewPartitionEntry("appfs", format.TypeAppFS, format.SubtypeAppFS, 0x110000, 0x200000),
			),
			want: 3,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := NewESP().Identify(test.m); got != test.want {
				t.Errorf("Identify: got %d, want %d", got, test.want)
			}
		})
	}
}

func TestESPIdentifyFullTable(t *testing.T) {
	b := make([]byte, flashSize)
	e, _ := format.NewPartitionEntry("p", format.TypeData, format.SubtypeDataNVS, 0x9000, 0x1000).MarshalBinary()
	// Fill the whole table space with records; no MD5 record terminates it.
	for off := 0; off < format.PartitionTableSize; off += format.PartitionEntrySize {
		copy(b[format.PartitionTableOffset+off:], e)
	}
	m := media.NewMem("flash", b)
	if got, want := NewESP().Identify(m), format.PartitionTableSize/format.PartitionEntrySize; got != want {
		t.Errorf("Identify: got %d, want %d", got, want)
	}
}

func TestESPRead(t *testing.T) {
	m := flash(t,
		format.NewPartitionEntry("nvs", format.TypeData, format.SubtypeDataNVS, 0x9000, 0x6000),
		format.NewPartitionEntry("factory", format.TypeApp, format.SubtypeAppFactory, 0x10000, 0x100000),
		format.NewPartitionEntry("ota_3", format.TypeApp, format.SubtypeAppOTA0+3, 0x110000, 0x100000),
		format.NewPartitionEntry("test", format.TypeApp, format.SubtypeAppTest, 0x210000, 0x10000),
		format.NewPartitionEntry("appfs", format.TypeAppFS, format.SubtypeAppFS, 0x220000, 0x100000),
		format.NewPartitionEntry("huge", format.TypeApp, format.SubtypeAppFactory, 0x300000, 0x200000),
	)
	for _, test := range []struct {
		index   int
		want    Partition
		wantErr bool
	}{
		{
			index: 0,
			want:  Partition{Index: 0, Offset: 0x9000, Length: 0x6000, Name: "nvs", Type: format.TypeData, Subtype: format.SubtypeDataNVS, Priority: PriorityLowest},
		}, {
			index: 1,
			want:  Partition{Index: 1, Offset: 0x10000, Length: 0x100000, Name: "factory", Bootable: true, Priority: PriorityFactory},
		}, {
			index: 2,
			want:  Partition{Index: 2, Offset: 0x110000, Length: 0x100000, Name: "ota_3", Subtype: format.SubtypeAppOTA0 + 3, Bootable: true, Priority: 5},
		}, {
			index: 3,
			want:  Partition{Index: 3, Offset: 0x210000, Length: 0x10000, Name: "test", Subtype: format.SubtypeAppTest, Bootable: true, Priority: PriorityTest},
		}, {
			index: 4,
			want:  Partition{Index: 4, Offset: 0x220000, Length: 0x100000, Name: "appfs", Type: format.TypeAppFS, Subtype: format.SubtypeAppFS, Bootable: true, Priority: PriorityAppFS},
		}, {
			index:   5,
			wantErr: true,
		}, {
			index:   6,
			wantErr: true,
		},
	} {
		t.Run(test.want.Name, func(t *testing.T) {
			got, err := NewESP().Read(m, test.index)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Read(%d): %v, wantErr %t", test.index, err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if got.Medium != media.Medium(m) {
				t.Errorf("Read(%d): partition on wrong medium", test.index)
			}
			if diff := cmp.Diff(got, test.want, cmpopts.IgnoreFields(Partition{}, "Medium")); diff != "" {
				t.Errorf("Read(%d) diff (-got +want):\n%s", test.index, diff)
			}
		})
	}
}

func TestWhole(t *testing.T) {
	m := media.NewMem("sd", make([]byte, 1234))
	p := Whole(m)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !p.Bootable || p.Priority != PriorityHighest || p.Length != 1234 || p.Name != "raw" {
		t.Errorf("Whole: got %+v", p)
	}
}
