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

// Package boot runs a boot attempt: it discovers the partitions on every
// registered medium and tries them in priority order until a boot protocol
// takes over.
package boot

import (
	"errors"
	"fmt"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/badgeteam/badgeboot/internal/partsys"
	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/badgeteam/badgeboot/internal/protocol"
	"github.com/badgeteam/badgeboot/internal/registry"
	"github.com/golang/glog"
)

// DefaultMaxPartitions is the capacity of the partition table of a session.
const DefaultMaxPartitions = 16

var (
	// ErrExhausted is returned by Run when no partition could be booted and
	// the platform's Halt returned.
	ErrExhausted = errors.New("no bootable partitions")
	// ErrSessionUsed is returned when Run is called twice on one Session.
	ErrSessionUsed = errors.New("boot session already ran")
)

// Registries holds the drivers for each stage of the boot chain.
// They are populated once at startup and sealed when the first session runs.
type Registries struct {
	Media     registry.List[media.Medium]
	PartSys   registry.List[partsys.System]
	Filesys   registry.List[filesys.Filesystem]
	Protocols registry.List[protocol.Protocol]
}

// Seal ends the registration phase of every list.
func (r *Registries) Seal() {
	r.Media.Seal()
	r.PartSys.Seal()
	r.Filesys.Seal()
	r.Protocols.Seal()
}

// Opts configures a Session.
type Opts struct {
	// MaxPartitions caps the number of bootable partitions considered.
	// Partitions found after the table is full are dropped.
	MaxPartitions int
	// RawFallback treats a medium on which no partition system is found as
	// one bootable partition.
	RawFallback bool
}

// Session holds the state of one boot attempt.
type Session struct {
	reg  *Registries
	plat platform.Platform
	opts Opts

	// Partitions is the table built by Discover, in discovery order.
	Partitions []partsys.Partition
	// Booted is the partition control was handed to, if any.
	Booted *partsys.Partition

	ran bool
}

// NewSession returns a session which boots from the drivers in reg.
func NewSession(reg *Registries, plat platform.Platform, opts Opts) *Session {
	if opts.MaxPartitions <= 0 {
		opts.MaxPartitions = DefaultMaxPartitions
	}
	return &Session{reg: reg, plat: plat, opts: opts}
}

// identify returns the first partition system which recognises m, and the
// number of partitions it found.
func (s *Session) identify(m media.Medium) (partsys.System, int) {
	for _, ps := range s.reg.PartSys.All() {
		if n := ps.Identify(m); n > 0 {
			return ps, n
		}
	}
	return nil, 0
}

// add appends p to the partition table. It returns false once the table is
// full.
func (s *Session) add(p partsys.Partition) bool {
	if len(s.Partitions) >= s.opts.MaxPartitions {
		glog.Warningf("Partition table full, ignoring %v", p)
		return false
	}
	s.Partitions = append(s.Partitions, p)
	return true
}

// Discover enumerates the bootable partitions on every medium into the
// session's partition table.
func (s *Session) Discover() []partsys.Partition {
	s.Partitions = nil
	for _, m := range s.reg.Media.All() {
		ps, n := s.identify(m)
		if ps == nil {
			if !s.opts.RawFallback {
				glog.Infof("%s: no partition system found", m.Name())
				continue
			}
			glog.Infof("%s: no partition system found, using whole medium", m.Name())
			if !s.add(partsys.Whole(m)) {
				return s.Partitions
			}
			continue
		}
		glog.V(1).Infof("%s: %d partitions", m.Name(), n)
		for i := 0; i < n; i++ {
			p, err := ps.Read(m, i)
			if err != nil {
				glog.Warningf("%s: partition %d: %v", m.Name(), i, err)
				continue
			}
			if !p.Bootable {
				continue
			}
			if err := p.Validate(); err != nil {
				glog.Warningf("%s: %v", m.Name(), err)
				continue
			}
			if !s.add(p) {
				return s.Partitions
			}
		}
	}
	return s.Partitions
}

// Order returns the indices of prio sorted by ascending priority value.
// Equal priorities keep their relative order.
func Order(prio []int) []int {
	used := make([]bool, len(prio))
	order := make([]int, 0, len(prio))
	for range prio {
		best := -1
		for i, p := range prio {
			if used[i] {
				continue
			}
			if best < 0 || p < prio[best] {
				best = i
			}
		}
		used[best] = true
		order = append(order, best)
	}
	return order
}

// open finds a filesystem on p and opens its boot file.
func (s *Session) open(p partsys.Partition) (*filesys.File, error) {
	for _, fs := range s.reg.Filesys.All() {
		if !fs.Identify(p) {
			continue
		}
		f, err := fs.Open(p)
		if err != nil {
			glog.Warningf("%v: opening boot file: %v", p, err)
			continue
		}
		return f, nil
	}
	return nil, errors.New("no filesystem found")
}

// boot hands f to the first protocol which accepts it.
func (s *Session) boot(f *filesys.File) error {
	for _, pr := range s.reg.Protocols.All() {
		if !pr.Identify(f) {
			continue
		}
		if err := pr.Boot(f); err != nil {
			glog.Warningf("%s: boot failed: %v", f.Name, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: no boot protocol accepted the image", f.Name)
}

// Try attempts to boot from p.
func (s *Session) Try(p partsys.Partition) error {
	f, err := s.open(p)
	if err != nil {
		return err
	}
	glog.V(1).Infof("%v: boot file %q (%d bytes)", p, f.Name, f.Size())
	return s.boot(f)
}

// Run discovers the partitions and boots the first one which succeeds.
// On a real board a successful boot does not return; Run returns nil when
// the platform's Jump does. If every partition fails the platform is halted
// and ErrExhausted is returned.
func (s *Session) Run() error {
	if s.ran {
		return ErrSessionUsed
	}
	s.ran = true
	s.reg.Seal()

	parts := s.Discover()
	prio := make([]int, len(parts))
	for i, p := range parts {
		prio[i] = p.Priority
	}
	for _, i := range Order(prio) {
		p := parts[i]
		glog.Infof("Trying %v (priority %d)", p, p.Priority)
		if err := s.Try(p); err != nil {
			glog.Warningf("%v: %v", p, err)
			continue
		}
		s.Booted = &parts[i]
		return nil
	}
	glog.Errorf("No bootable partitions found among %d candidates", len(parts))
	s.plat.Halt()
	return ErrExhausted
}
