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

// Package xip manages the execute-in-place MMU table which maps physical
// ROM pages into a fixed virtual window.
//
// The table has a fixed number of virtual slots and a single page size which
// applies to every slot at once. Every change to the table is followed by a
// cache flush for the affected virtual range, since stale cache lines would
// otherwise alias the new mapping.
package xip

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// ErrNoFreeSlot is returned when every virtual slot is in use.
var ErrNoFreeSlot = errors.New("no free XIP slot")

// Flusher invalidates the cache lines backing a virtual address range.
type Flusher interface {
	FlushCache(vaddr, length uint32) error
}

// Config describes the XIP MMU of a particular chip.
type Config struct {
	// Base is the first virtual address of the mapped window.
	Base uint32
	// Slots is the number of virtual pages in the table.
	Slots int
	// PhysPages is the number of addressable ROM pages.
	PhysPages int
	// PageSize is the page size in effect at reset.
	PageSize uint32
	// MinPageSize and MaxPageSize bound the supported power-of-two page sizes.
	MinPageSize uint32
	MaxPageSize uint32
}

// Validate checks that the configuration is self-consistent.
func (c Config) Validate() error {
	if c.Slots <= 0 || c.PhysPages <= 0 {
		return fmt.Errorf("invalid XIP table geometry: %d slots, %d physical pages", c.Slots, c.PhysPages)
	}
	for _, s := range []uint32{c.MinPageSize, c.MaxPageSize, c.PageSize} {
		if s == 0 || s&(s-1) != 0 {
			return fmt.Errorf("XIP page size %#x is not a power of two", s)
		}
	}
	if c.MinPageSize > c.MaxPageSize || c.PageSize < c.MinPageSize || c.PageSize > c.MaxPageSize {
		return fmt.Errorf("XIP page size %#x outside [%#x, %#x]", c.PageSize, c.MinPageSize, c.MaxPageSize)
	}
	if uint64(c.Base)+uint64(c.Slots)*uint64(c.MaxPageSize) > 1<<32 {
		return fmt.Errorf("XIP window at %#x does not fit the address space", c.Base)
	}
	return nil
}

// Range describes a mapping between ROM and the virtual window.
type Range struct {
	ROMAddr uint32
	MapAddr uint32
	Length  uint32
	Enabled bool
}

func (r Range) String() string {
	return fmt.Sprintf("%#x-%#x to %#x-%#x", r.ROMAddr, r.ROMAddr+r.Length-1, r.MapAddr, r.MapAddr+r.Length-1)
}

// slot is one entry of the hardware table.
type slot struct {
	page  uint32
	valid bool
}

// Table is the XIP MMU.
// This structure is not thread-safe; the bootloader drives it from a single
// core.
type Table struct {
	cfg      Config
	pageSize uint32
	slots    []slot
	flush    Flusher
	rom      io.ReaderAt
}

// New creates a table with every slot invalid.
// rom provides the physical contents seen through the window, and may be nil
// if the caller never reads through the table.
func New(cfg Config, flush Flusher, rom io.ReaderAt) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if flush == nil {
		return nil, errors.New("XIP table requires a cache flusher")
	}
	return &Table{
		cfg:      cfg,
		pageSize: cfg.PageSize,
		slots:    make([]slot, cfg.Slots),
		flush:    flush,
		rom:      rom,
	}, nil
}

// Reset invalidates every slot and restores the reset page size.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = slot{}
	}
	t.pageSize = t.cfg.PageSize
}

// Base returns the first virtual address of the window.
func (t *Table) Base() uint32 {
	return t.cfg.Base
}

// Slots returns the number of virtual slots.
func (t *Table) Slots() int {
	return len(t.slots)
}

// PageSize returns the page size currently in effect.
func (t *Table) PageSize() uint32 {
	return t.pageSize
}

// WindowSize returns the size of the virtual window at the current page size.
func (t *Table) WindowSize() uint32 {
	return uint32(len(t.slots)) * t.pageSize
}

// ROMSize returns the amount of ROM addressable at the current page size.
func (t *Table) ROMSize() uint32 {
	return uint32(t.cfg.PhysPages) * t.pageSize
}

// SetPageSize changes the page size of the entire table.
// Existing slot contents are reinterpreted at the new granularity, so callers
// should do this before mapping anything they intend to use.
func (t *Table) SetPageSize(size uint32) error {
	if size == 0 || size&(size-1) != 0 || size < t.cfg.MinPageSize || size > t.cfg.MaxPageSize {
		glog.Errorf("Invalid XIP page size: %d", size)
		return fmt.Errorf("unsupported XIP page size %d", size)
	}
	if size != t.pageSize {
		glog.V(1).Infof("XIP page size %d -> %d", t.pageSize, size)
	}
	t.pageSize = size
	return nil
}

// FitPageSize returns the largest supported page size not exceeding max, or
// zero if even the smallest page is too large.
func (t *Table) FitPageSize(max uint32) uint32 {
	for s := t.cfg.MaxPageSize; s >= t.cfg.MinPageSize && s != 0; s >>= 1 {
		if s <= max {
			return s
		}
	}
	return 0
}

// Get returns the mapping held by the slot at index.
func (t *Table) Get(index int) Range {
	if index < 0 || index >= len(t.slots) {
		glog.Errorf("Invalid XIP region index: %d", index)
		return Range{}
	}
	s := t.slots[index]
	return Range{
		ROMAddr: s.page * t.pageSize,
		MapAddr: t.cfg.Base + uint32(index)*t.pageSize,
		Length:  t.pageSize,
		Enabled: s.valid,
	}
}

// Set writes a single slot.
// The virtual address of an enabled range is fixed by the slot index.
func (t *Table) Set(index int, r Range) error {
	if index < 0 || index >= len(t.slots) {
		glog.Errorf("Invalid XIP region index: %d", index)
		return fmt.Errorf("XIP index %d out of range [0, %d)", index, len(t.slots))
	}
	vaddr := t.cfg.Base + uint32(index)*t.pageSize
	if r.Enabled {
		switch {
		case r.MapAddr != vaddr:
			glog.Errorf("Invalid XIP region map address: %#x-%#x", r.MapAddr, r.MapAddr+r.Length-1)
			return fmt.Errorf("map address %#x does not belong to slot %d", r.MapAddr, index)
		case r.ROMAddr&(t.pageSize-1) != 0, r.ROMAddr/t.pageSize >= uint32(t.cfg.PhysPages):
			glog.Errorf("Invalid XIP region ROM address: %#x-%#x", r.ROMAddr, r.ROMAddr+r.Length-1)
			return fmt.Errorf("invalid ROM address %#x", r.ROMAddr)
		case r.Length != t.pageSize:
			glog.Errorf("Invalid XIP region length: %#x", r.Length)
			return fmt.Errorf("length %#x is not one page", r.Length)
		}
		t.slots[index] = slot{page: r.ROMAddr / t.pageSize, valid: true}
	} else {
		t.slots[index] = slot{}
	}
	return t.flush.FlushCache(vaddr, t.pageSize)
}

// Map maps a ROM range of arbitrary length into the window.
//
// The range is rounded outward to whole pages. If override is false and any
// covered slot is already in use, nothing is written.
func (t *Table) Map(r Range, override bool) error {
	if !r.Enabled {
		glog.Warning("Region passed to Map not enabled")
		return errors.New("range not enabled")
	}
	ps := t.pageSize
	end := uint64(r.MapAddr) + uint64(r.Length)
	switch {
	case r.MapAddr < t.cfg.Base || end > uint64(t.cfg.Base)+uint64(t.WindowSize()):
		glog.Errorf("Invalid XIP region map address: %#x-%#x", r.MapAddr, end-1)
		return fmt.Errorf("virtual range %#x-%#x outside XIP window", r.MapAddr, end)
	case uint64(r.ROMAddr)+uint64(r.Length) > uint64(t.ROMSize()):
		glog.Errorf("Invalid XIP region ROM address: %#x-%#x", r.ROMAddr, uint64(r.ROMAddr)+uint64(r.Length)-1)
		return fmt.Errorf("ROM range %#x+%#x exceeds capacity %#x", r.ROMAddr, r.Length, t.ROMSize())
	case r.ROMAddr%ps != r.MapAddr%ps:
		glog.Errorf("Mismatched sub-page address: paddr %#x vs vaddr %#x (mapping %#x to %#x)", r.ROMAddr%ps, r.MapAddr%ps, r.ROMAddr, r.MapAddr)
		return fmt.Errorf("ROM address %#x and map address %#x differ in sub-page alignment", r.ROMAddr, r.MapAddr)
	}

	// Round outward to whole pages.
	sub := r.MapAddr % ps
	vaddr, rom := r.MapAddr-sub, r.ROMAddr-sub
	length := uint64(r.Length) + uint64(sub)
	if rem := length % uint64(ps); rem != 0 {
		length += uint64(ps) - rem
	}
	first := int((vaddr - t.cfg.Base) / ps)
	count := int(length / uint64(ps))

	if !override {
		for i := first; i < first+count; i++ {
			if t.slots[i].valid {
				pv := t.cfg.Base + uint32(i)*ps
				glog.Errorf("Region at vaddr %#x-%#x overlaps with existing page at vaddr %#x-%#x", vaddr, uint64(vaddr)+length-1, pv, pv+ps-1)
				return fmt.Errorf("slot %d already mapped", i)
			}
		}
	}
	page := rom / ps
	for i := first; i < first+count; i++ {
		t.slots[i] = slot{page: page, valid: true}
		page++
	}
	glog.V(2).Infof("XIP mapped %d pages at %#x from ROM %#x", count, vaddr, rom)
	return t.flush.FlushCache(vaddr, uint32(length))
}

// Unmap clears every slot covering [vaddr, vaddr+length). Unmapping an
// already-empty range succeeds.
func (t *Table) Unmap(vaddr, length uint32) error {
	ps := t.pageSize
	end := uint64(vaddr) + uint64(length)
	if vaddr < t.cfg.Base || end > uint64(t.cfg.Base)+uint64(t.WindowSize()) {
		glog.Errorf("Invalid XIP region map address: %#x-%#x", vaddr, end-1)
		return fmt.Errorf("virtual range %#x-%#x outside XIP window", vaddr, end)
	}
	sub := vaddr % ps
	vaddr -= sub
	l := uint64(length) + uint64(sub)
	if rem := l % uint64(ps); rem != 0 {
		l += uint64(ps) - rem
	}
	first := int((vaddr - t.cfg.Base) / ps)
	for i := first; i < first+int(l/uint64(ps)); i++ {
		t.slots[i] = slot{}
	}
	return t.flush.FlushCache(vaddr, uint32(l))
}

// FindVaddr returns the virtual address of the highest-indexed free slot.
func (t *Table) FindVaddr() (uint32, bool) {
	for i := len(t.slots) - 1; i >= 0; i-- {
		if !t.slots[i].valid {
			return t.cfg.Base + uint32(i)*t.pageSize, true
		}
	}
	return 0, false
}

// ReadVirtual reads len(p) bytes from the window starting at vaddr, as the
// CPU would see them through the current mappings.
func (t *Table) ReadVirtual(p []byte, vaddr uint32) (int, error) {
	if t.rom == nil {
		return 0, errors.New("no ROM behind XIP table")
	}
	n := 0
	for n < len(p) {
		a := vaddr + uint32(n)
		if a < t.cfg.Base || a-t.cfg.Base >= t.WindowSize() {
			return n, fmt.Errorf("address %#x outside XIP window", a)
		}
		i := int((a - t.cfg.Base) / t.pageSize)
		if !t.slots[i].valid {
			return n, fmt.Errorf("address %#x is not mapped", a)
		}
		off := (a - t.cfg.Base) % t.pageSize
		chunk := int(t.pageSize - off)
		if chunk > len(p)-n {
			chunk = len(p) - n
		}
		c, err := t.rom.ReadAt(p[n:n+chunk], int64(t.slots[i].page)*int64(t.pageSize)+int64(off))
		n += c
		if err != nil {
			return n, fmt.Errorf("ROM read at %#x: %w", a, err)
		}
	}
	return n, nil
}

// Dump logs every valid mapping.
func (t *Table) Dump() {
	if !glog.V(1) {
		return
	}
	glog.Infof("XIP page size: %d", t.pageSize)
	glog.Info("XIP mapping:")
	for i := range t.slots {
		if r := t.Get(i); r.Enabled {
			glog.Info(r.String())
		}
	}
}
