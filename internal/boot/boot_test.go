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

package boot

//go:generate mockgen -write_package_comment=false -package boot -destination mock_protocol_test.go github.com/badgeteam/badgeboot/internal/protocol Protocol

import (
	"errors"
	"testing"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/badgeteam/badgeboot/internal/partsys"
	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/badgeteam/badgeboot/internal/registry"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const flashSize = 0x40000

// flash returns a medium carrying an ESP partition table with a data
// partition, three bootable partitions and one which overruns the medium.
func flash(t *testing.T, name string) media.Medium {
	t.Helper()
	table, err := format.BuildPartitionTable([]format.PartitionEntry{
		format.NewPartitionEntry("nvs", format.TypeData, format.SubtypeDataNVS, 0x9000, 0x6000),
		format.NewPartitionEntry("factory", format.TypeApp, format.SubtypeAppFactory, 0x10000, 0x10000),
		format.NewPartitionEntry("ota_0", format.TypeApp, format.SubtypeAppOTA0, 0x20000, 0x10000),
		format.NewPartitionEntry("appfs", format.TypeAppFS, format.SubtypeAppFS, 0x30000, 0x10000),
		format.NewPartitionEntry("huge", format.TypeApp, format.SubtypeAppOTA0+1, 0x30000, 0x100000),
	})
	if err != nil {
		t.Fatalf("BuildPartitionTable: %v", err)
	}
	b := make([]byte, flashSize)
	copy(b[format.PartitionTableOffset:], table)
	return media.NewMem(name, b)
}

func newRegistries(t *testing.T, ms ...media.Medium) *Registries {
	t.Helper()
	reg := &Registries{}
	for _, m := range ms {
		if err := reg.Media.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := reg.PartSys.Register(partsys.NewESP()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Filesys.Register(filesys.Raw{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestOrder(t *testing.T) {
	for _, test := range []struct {
		prio []int
		want []int
	}{
		{prio: []int{5, 1, 1, 9}, want: []int{1, 2, 0, 3}},
		{prio: []int{}, want: []int{}},
		{prio: []int{3, 3, 3}, want: []int{0, 1, 2}},
		{prio: []int{255, 18, 0, 2}, want: []int{2, 3, 1, 0}},
	} {
		if diff := cmp.Diff(Order(test.prio), test.want); diff != "" {
			t.Errorf("Order(%v) diff (-got +want):\n%s", test.prio, diff)
		}
	}
}

func TestDiscover(t *testing.T) {
	blank := media.NewMem("blank", make([]byte, 0x1000))
	espParts := []partsys.Partition{
		{Index: 1, Offset: 0x10000, Length: 0x10000, Bootable: true, Priority: partsys.PriorityFactory, Name: "factory", Type: format.TypeApp, Subtype: format.SubtypeAppFactory},
		{Index: 2, Offset: 0x20000, Length: 0x10000, Bootable: true, Priority: partsys.PriorityOTA0, Name: "ota_0", Type: format.TypeApp, Subtype: format.SubtypeAppOTA0},
		{Index: 3, Offset: 0x30000, Length: 0x10000, Bootable: true, Priority: partsys.PriorityAppFS, Name: "appfs", Type: format.TypeAppFS, Subtype: format.SubtypeAppFS},
	}
	rawPart := partsys.Partition{Length: 0x1000, Bootable: true, Priority: partsys.PriorityHighest, Name: "raw"}
	for _, test := range []struct {
		name string
		opts Opts
		want []partsys.Partition
	}{
		{
			name: "no fallback",
			want: espParts,
		}, {
			name: "raw fallback",
			opts: Opts{RawFallback: true},
			want: append(append([]partsys.Partition{}, espParts...), rawPart),
		}, {
			name: "table full",
			opts: Opts{RawFallback: true, MaxPartitions: 2},
			want: espParts[:2],
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			s := NewSession(newRegistries(t, flash(t, "flash"), blank), platform.NewSim(platform.ESP32C6), test.opts)
			got := s.Discover()
			if diff := cmp.Diff(got, test.want, cmpopts.IgnoreFields(partsys.Partition{}, "Medium")); diff != "" {
				t.Errorf("Discover diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestRunRegistrationOrderTieBreak(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := NewMockProtocol(ctrl)
	second := NewMockProtocol(ctrl)
	first.EXPECT().Identify(gomock.Any()).Return(true)
	first.EXPECT().Boot(gomock.Any()).Return(nil)

	reg := newRegistries(t, flash(t, "flash"))
	for _, p := range []*MockProtocol{first, second} {
		if err := reg.Protocols.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	s := NewSession(reg, platform.NewSim(platform.ESP32C6), Opts{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Booted == nil || s.Booted.Name != "appfs" {
		t.Errorf("Booted: got %v, want appfs", s.Booted)
	}
}

func TestRunFallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	esp := NewMockProtocol(ctrl)
	other := NewMockProtocol(ctrl)
	var tried []string
	esp.EXPECT().Identify(gomock.Any()).Return(true).AnyTimes()
	esp.EXPECT().Boot(gomock.Any()).DoAndReturn(func(f *filesys.File) error {
		tried = append(tried, f.Name)
		if f.Name == "appfs" {
			return errors.New("checksum mismatch")
		}
		return nil
	}).Times(2)
	other.EXPECT().Identify(gomock.Any()).Return(false).Times(1)

	reg := newRegistries(t, flash(t, "flash"))
	for _, p := range []*MockProtocol{esp, other} {
		if err := reg.Protocols.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	s := NewSession(reg, platform.NewSim(platform.ESP32C6), Opts{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(tried, []string{"appfs", "factory"}); diff != "" {
		t.Errorf("Boot attempts diff (-got +want):\n%s", diff)
	}
	if s.Booted == nil || s.Booted.Name != "factory" {
		t.Errorf("Booted: got %v, want factory", s.Booted)
	}
}

// brokenFS recognises every partition but fails to open it.
type brokenFS struct{ opened int }

func (b *brokenFS) Identify(partsys.Partition) bool { return true }

func (b *brokenFS) Open(partsys.Partition) (*filesys.File, error) {
	b.opened++
	return nil, errors.New("corrupt")
}

func TestRunFilesystemFallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	pr := NewMockProtocol(ctrl)
	pr.EXPECT().Identify(gomock.Any()).Return(true)
	pr.EXPECT().Boot(gomock.Any()).Return(nil)

	broken := &brokenFS{}
	reg := &Registries{}
	if err := reg.Media.Register(flash(t, "flash")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.PartSys.Register(partsys.NewESP()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, fs := range []filesys.Filesystem{broken, filesys.Raw{}} {
		if err := reg.Filesys.Register(fs); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := reg.Protocols.Register(pr); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s := NewSession(reg, platform.NewSim(platform.ESP32C6), Opts{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := broken.opened, 1; got != want {
		t.Errorf("broken filesystem opened %d times, want %d", got, want)
	}
}

func TestRunExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	pr := NewMockProtocol(ctrl)
	pr.EXPECT().Identify(gomock.Any()).Return(false).Times(3)

	reg := newRegistries(t, flash(t, "flash"))
	if err := reg.Protocols.Register(pr); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sim := platform.NewSim(platform.ESP32C6)
	s := NewSession(reg, sim, Opts{})
	if err := s.Run(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Run: got %v, want %v", err, ErrExhausted)
	}
	if !sim.Halted {
		t.Error("platform not halted")
	}
	if s.Booted != nil {
		t.Errorf("Booted: got %v, want nil", s.Booted)
	}
	if err := s.Run(); !errors.Is(err, ErrSessionUsed) {
		t.Errorf("second Run: got %v, want %v", err, ErrSessionUsed)
	}
	if err := reg.Protocols.Register(pr); !errors.Is(err, registry.ErrSealed) {
		t.Errorf("Register after Run: got %v, want %v", err, registry.ErrSealed)
	}
}

func TestRunNoMedia(t *testing.T) {
	sim := platform.NewSim(platform.ESP32C6)
	s := NewSession(&Registries{}, sim, Opts{RawFallback: true})
	if err := s.Run(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Run: got %v, want %v", err, ErrExhausted)
	}
	if !sim.Halted {
		t.Error("platform not halted")
	}
}
