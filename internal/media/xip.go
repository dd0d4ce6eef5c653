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

package media

import (
	"fmt"
	"io"

	"github.com/badgeteam/badgeboot/internal/xip"
	"github.com/golang/glog"
)

// XIP is the SPI flash sitting behind the XIP MMU.
//
// The flash is not directly addressable, so reads borrow a free page of the
// XIP window for each ROM page touched and release it afterwards.
type XIP struct {
	name  string
	table *xip.Table
	size  int64
}

var (
	_ Medium         = &XIP{}
	_ Mapper         = &XIP{}
	_ PageNegotiator = &XIP{}
)

// NewXIP returns a medium of size bytes read through table.
func NewXIP(name string, table *xip.Table, size int64) *XIP {
	return &XIP{name: name, table: table, size: size}
}

// Name implements Medium.
func (m *XIP) Name() string { return m.name }

// Size implements Medium.
func (m *XIP) Size() int64 { return m.size }

// ReadAt implements io.ReaderAt.
func (m *XIP) ReadAt(p []byte, off int64) (int, error) {
	q, err := clamp(p, off, m.size)
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(q) {
		ps := int64(m.table.PageSize())
		vaddr, ok := m.table.FindVaddr()
		if !ok {
			glog.Error("Out of XIP to map for reading")
			return n, xip.ErrNoFreeSlot
		}
		pos := off + int64(n)
		r := xip.Range{
			ROMAddr: uint32(pos - pos%ps),
			MapAddr: vaddr,
			Length:  uint32(ps),
			Enabled: true,
		}
		if err := m.table.Map(r, true); err != nil {
			glog.Errorf("Unable to map XIP for reading: %v", err)
			return n, fmt.Errorf("mapping %v: %w", r, err)
		}

		start := pos % ps
		chunk := ps - start
		if rem := int64(len(q) - n); chunk > rem {
			chunk = rem
		}
		c, rerr := m.table.ReadVirtual(q[n:n+int(chunk)], vaddr+uint32(start))
		n += c
		if err := m.table.Unmap(vaddr, uint32(ps)); err != nil {
			return n, fmt.Errorf("releasing page %#x: %w", vaddr, err)
		}
		if rerr != nil {
			return n, rerr
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// MMap implements Mapper.
func (m *XIP) MMap(off, length int64, vaddr uint32) error {
	if off < 0 || length < 0 || off+length > m.size {
		return fmt.Errorf("range %#x+%#x outside medium %q", off, length, m.name)
	}
	return m.table.Map(xip.Range{
		ROMAddr: uint32(off),
		MapAddr: vaddr,
		Length:  uint32(length),
		Enabled: true,
	}, true)
}

// NegotiatePage implements PageNegotiator.
func (m *XIP) NegotiatePage(max uint32) uint32 {
	return m.table.FitPageSize(max)
}
