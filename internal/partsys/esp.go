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
	"fmt"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/golang/glog"
)

// Priorities of the bootable ESP partition types.
const (
	PriorityAppFS   = 0
	PriorityFactory = 1
	// OTA slot n gets PriorityOTA0+n.
	PriorityOTA0 = 2
	PriorityTest = 18
)

// ESP is the partition table used by ESP-IDF.
type ESP struct {
	// TableOffset is the location of the table on the medium.
	TableOffset int64
	// TableSize bounds the bytes scanned for records.
	TableSize int64
}

var _ System = &ESP{}

// NewESP returns an ESP partition system at the default location.
func NewESP() *ESP {
	return &ESP{
		TableOffset: format.PartitionTableOffset,
		TableSize:   format.PartitionTableSize,
	}
}

func (s *ESP) entry(m media.Medium, index int) (format.PartitionEntry, error) {
	b := make([]byte, format.PartitionEntrySize)
	if _, err := m.ReadAt(b, s.TableOffset+int64(index)*format.PartitionEntrySize); err != nil {
		return format.PartitionEntry{}, fmt.Errorf("reading partition entry %d: %w", index, err)
	}
	return format.ParsePartitionEntry(b)
}

// Identify implements System.
// The table runs until the first record without the partition magic, which
// is usually the MD5 record, or until the table space is exhausted.
func (s *ESP) Identify(m media.Medium) int {
	max := int(s.TableSize / format.PartitionEntrySize)
	i := 0
	for ; i < max; i++ {
		e, err := s.entry(m, i)
		if err != nil {
			if i == 0 {
				glog.Warningf("%s: too few bytes read from media (magic): %v", m.Name(), err)
			}
			break
		}
		if e.Magic != format.PartitionMagic {
			break
		}
		if t := e.TypeName(); t != "" {
			glog.Infof("Partition %d %q at %#x-%#x: %s", i, e.Name(), e.Offset, e.Offset+e.Size-1, t)
		} else {
			glog.Infof("Partition %d %q at %#x-%#x: unknown (%#02x/%#02x)", i, e.Name(), e.Offset, e.Offset+e.Size-1, e.Type, e.Subtype)
		}
	}
	return i
}

// Read implements System.
func (s *ESP) Read(m media.Medium, index int) (Partition, error) {
	e, err := s.entry(m, index)
	if err != nil {
		return Partition{}, err
	}
	if e.Magic != format.PartitionMagic {
		return Partition{}, fmt.Errorf("no partition at index %d", index)
	}
	p := Partition{
		Medium:    m,
		Index:     index,
		Offset:    int64(e.Offset),
		Length:    int64(e.Size),
		Name:      e.Name(),
		Type:      e.Type,
		Subtype:   e.Subtype,
		Encrypted: e.Encrypted(),
		Priority:  PriorityLowest,
	}
	switch e.Type {
	case format.TypeApp:
		p.Bootable = true
		switch {
		case e.Subtype == format.SubtypeAppFactory:
			p.Priority = PriorityFactory
		case e.Subtype >= format.SubtypeAppOTA0 && e.Subtype <= format.SubtypeAppOTA15:
			p.Priority = PriorityOTA0 + int(e.Subtype-format.SubtypeAppOTA0)
		case e.Subtype == format.SubtypeAppTest:
			p.Priority = PriorityTest
		}
	case format.TypeAppFS:
		p.Bootable = true
		p.Priority = PriorityAppFS
	}
	if err := p.Validate(); err != nil {
		return Partition{}, err
	}
	return p, nil
}
