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

// Package partsys provides the partition systems which divide a boot medium
// into partitions.
package partsys

import (
	"fmt"
	"io"

	"github.com/badgeteam/badgeboot/internal/media"
)

// Boot priorities. Lower values are tried first.
const (
	PriorityHighest = 0
	// PriorityLowest is given to partitions which should only be tried
	// after everything else.
	PriorityLowest = 255
)

// Partition is a contiguous region of a medium.
type Partition struct {
	Medium media.Medium
	// Index is the partition's position in the medium's table.
	Index  int
	Offset int64
	Length int64
	// Bootable partitions are the only ones considered for booting.
	Bootable bool
	Priority int
	Name     string

	Type      uint8
	Subtype   uint8
	Encrypted bool
}

func (p Partition) String() string {
	return fmt.Sprintf("%s#%d %q [%#x, %#x)", p.Medium.Name(), p.Index, p.Name, p.Offset, p.Offset+p.Length)
}

// Validate checks that the partition lies within its medium.
func (p Partition) Validate() error {
	if p.Medium == nil {
		return fmt.Errorf("partition %q has no medium", p.Name)
	}
	if p.Offset < 0 || p.Length < 0 || p.Offset+p.Length > p.Medium.Size() {
		return fmt.Errorf("partition %q [%#x, %#x) exceeds medium %q of %#x bytes", p.Name, p.Offset, p.Offset+p.Length, p.Medium.Name(), p.Medium.Size())
	}
	return nil
}

// Section returns a reader over the partition's contents.
func (p Partition) Section() *io.SectionReader {
	return io.NewSectionReader(p.Medium, p.Offset, p.Length)
}

// System is a partitioning scheme.
type System interface {
	// Identify returns the number of partitions on m, or zero if m does not
	// use this scheme.
	Identify(m media.Medium) int
	// Read returns the partition at index, which is less than the count
	// returned by Identify.
	Read(m media.Medium, index int) (Partition, error)
}

// Whole returns a single bootable partition covering all of m.
func Whole(m media.Medium) Partition {
	return Partition{
		Medium:   m,
		Offset:   0,
		Length:   m.Size(),
		Bootable: true,
		Priority: PriorityHighest,
		Name:     "raw",
	}
}
