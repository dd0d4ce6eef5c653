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
	"fmt"

	"github.com/golang/glog"
)

// Sim is a simulated board for running the bootloader on a host.
// Jump and Halt record the event and return.
type Sim struct {
	Layout Layout

	ram []byte
	// InterruptsEnabled is cleared by PreHandover.
	InterruptsEnabled bool
	// Jumps records every entry point jumped to.
	Jumps []uint32
	// Halted is set once Halt is called.
	Halted bool
	// Flushes counts cache flushes.
	Flushes int
}

var _ Platform = &Sim{}

// NewSim returns a simulated board with zeroed RAM.
func NewSim(l Layout) *Sim {
	return &Sim{
		Layout:            l,
		ram:               make([]byte, l.RAM.Size),
		InterruptsEnabled: true,
	}
}

// WriteRAM implements Platform.
func (s *Sim) WriteRAM(addr uint32, p []byte) error {
	if !s.Layout.RAM.Contains(addr, uint32(len(p))) {
		return fmt.Errorf("write of %d bytes at %#x outside RAM %v", len(p), addr, s.Layout.RAM)
	}
	copy(s.ram[addr-s.Layout.RAM.Base:], p)
	return nil
}

// ReadRAM returns a copy of length bytes of RAM at addr.
func (s *Sim) ReadRAM(addr, length uint32) ([]byte, error) {
	if !s.Layout.RAM.Contains(addr, length) {
		return nil, fmt.Errorf("read of %d bytes at %#x outside RAM %v", length, addr, s.Layout.RAM)
	}
	off := addr - s.Layout.RAM.Base
	return append([]byte{}, s.ram[off:off+length]...), nil
}

// PreHandover implements Platform.
func (s *Sim) PreHandover() bool {
	s.InterruptsEnabled = false
	return true
}

// Jump implements Platform.
func (s *Sim) Jump(entry uint32) {
	glog.V(1).Infof("Sim: jump to %#x", entry)
	s.Jumps = append(s.Jumps, entry)
}

// Halt implements Platform.
func (s *Sim) Halt() {
	glog.V(1).Info("Sim: halted")
	s.Halted = true
}

// FlushCache implements xip.Flusher.
func (s *Sim) FlushCache(vaddr, length uint32) error {
	glog.V(2).Infof("Cache flush %#x+%#x", vaddr, length)
	s.Flushes++
	return nil
}
