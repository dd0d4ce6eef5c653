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

// Package protocol provides the boot protocols, which recognise an image
// format, load the image and transfer control to it.
package protocol

import (
	"fmt"
	"math/bits"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/badgeteam/badgeboot/internal/platform"
	"github.com/badgeteam/badgeboot/internal/xip"
	"github.com/golang/glog"
)

// Protocol is a bootable image format.
type Protocol interface {
	// Identify reports whether f is in this format.
	Identify(f *filesys.File) bool
	// Boot loads f and jumps to it. A nil return means control was handed
	// over; on hardware Boot does not return in that case.
	Boot(f *filesys.File) error
}

// Env is the machine an image is loaded into.
type Env struct {
	XIP      *xip.Table
	Layout   platform.Layout
	Platform platform.Platform
}

// placement is a run of the file bound for a load address.
type placement struct {
	fileOff int64
	length  int64
	addr    uint32
}

// PageBound returns the largest page size at which a mapping of disk
// offset disk to virtual address vaddr keeps both on the same page offset:
// two to the power of the number of low-order bits they share.
func PageBound(disk int64, vaddr uint32) uint64 {
	tz := bits.TrailingZeros64(uint64(disk) ^ uint64(vaddr))
	if tz > 32 {
		tz = 32
	}
	return 1 << tz
}

// setPageSize picks the XIP page size for mapping the given placements
// and applies it to the table.
func (e *Env) setPageSize(f *filesys.File, ps []placement) error {
	bound := uint64(1) << 32
	mapped := false
	for _, p := range ps {
		if !e.Layout.XIP.Contains(p.addr, uint32(p.length)) {
			continue
		}
		disk, ok := f.DiskOffset(p.fileOff)
		if !ok {
			continue
		}
		mapped = true
		if b := PageBound(disk, p.addr); b < bound {
			bound = b
		}
	}
	if !mapped {
		return nil
	}
	max := uint32(bound - 1)
	if bound <= 1<<31 {
		max = uint32(bound)
	}
	size := f.NegotiatePage(max)
	if size == 0 {
		size = e.XIP.FitPageSize(max)
	}
	if size == 0 {
		return fmt.Errorf("no XIP page size fits alignment bound %#x", bound)
	}
	glog.V(1).Infof("XIP page size bound %#x, using %#x", bound, size)
	return e.XIP.SetPageSize(size)
}

// place loads each placement into the XIP window by mapping or into RAM by
// copying. Every placement is attempted; an error is returned if any
// failed.
func (e *Env) place(f *filesys.File, ps []placement) error {
	failed := 0
	for i, p := range ps {
		switch {
		case e.Layout.XIP.Contains(p.addr, uint32(p.length)):
			if err := f.MMap(p.fileOff, p.length, p.addr); err != nil {
				glog.Errorf("Unable to map segment %d at %#x: %v", i, p.addr, err)
				failed++
			}
		case e.Layout.RAM.Contains(p.addr, uint32(p.length)):
			buf := make([]byte, p.length)
			if _, err := f.ReadAt(buf, p.fileOff); err != nil {
				glog.Errorf("Unable to read segment %d: %v", i, err)
				failed++
				continue
			}
			if err := e.Platform.WriteRAM(p.addr, buf); err != nil {
				glog.Errorf("Unable to load segment %d at %#x: %v", i, p.addr, err)
				failed++
			}
		default:
			glog.Errorf("Unable to satisfy virtual address range %#x-%#x", p.addr, uint64(p.addr)+uint64(p.length))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d segments could not be loaded", failed, len(ps))
	}
	return nil
}

// handover quiesces the board and jumps to entry.
func (e *Env) handover(entry uint32) error {
	e.XIP.Dump()
	if !e.Platform.PreHandover() {
		return fmt.Errorf("platform refused handover to %#x", entry)
	}
	glog.Infof("Jumping to %#x", entry)
	e.Platform.Jump(entry)
	return nil
}
