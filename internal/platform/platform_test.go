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

package platform

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWindowContains(t *testing.T) {
	w := Window{Base: 0x40800000, Size: 0x1000}
	for _, test := range []struct {
		name         string
		addr, length uint32
		want         bool
	}{
		{name: "whole", addr: 0x40800000, length: 0x1000, want: true},
		{name: "inside", addr: 0x40800010, length: 0x10, want: true},
		{name: "one past", addr: 0x40800001, length: 0x1000, want: false},
		{name: "below", addr: 0x407fffff, length: 2, want: false},
		{name: "wraps", addr: 0x40800010, length: 0xfffffff8, want: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := w.Contains(test.addr, test.length); got != test.want {
				t.Errorf("Contains(%#x, %#x): got %t, want %t", test.addr, test.length, got, test.want)
			}
		})
	}
}

func TestSim(t *testing.T) {
	s := NewSim(Layout{RAM: Window{Base: 0x40800000, Size: 0x100}})
	if err := s.WriteRAM(0x40800010, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteRAM: %v", err)
	}
	if err := s.WriteRAM(0x408000ff, []byte{1, 2}); err == nil {
		t.Error("WriteRAM past the end succeeded")
	}
	got, err := s.ReadRAM(0x4080000f, 5)
	if err != nil {
		t.Fatalf("ReadRAM: %v", err)
	}
	if diff := cmp.Diff(got, []byte{0, 1, 2, 3, 0}); diff != "" {
		t.Errorf("ReadRAM diff (-got +want):\n%s", diff)
	}

	if !s.InterruptsEnabled {
		t.Fatal("interrupts disabled at reset")
	}
	if !s.PreHandover() || s.InterruptsEnabled {
		t.Error("PreHandover did not disable interrupts")
	}
	s.Jump(0x40800010)
	s.Halt()
	if diff := cmp.Diff(s.Jumps, []uint32{0x40800010}); diff != "" {
		t.Errorf("Jumps diff (-got +want):\n%s", diff)
	}
	if !s.Halted {
		t.Error("Halt not recorded")
	}
}
