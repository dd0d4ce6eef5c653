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

package filesys

import (
	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/badgeteam/badgeboot/internal/partsys"
)

// Raw treats the whole partition as the boot file, as ESP app partitions
// hold their image directly. It accepts every partition, so it should be
// registered after the real filesystems.
type Raw struct{}

var _ Filesystem = Raw{}

// Identify implements Filesystem.
func (Raw) Identify(p partsys.Partition) bool {
	return p.Length > 0
}

// Open implements Filesystem.
func (Raw) Open(p partsys.Partition) (*File, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return OpenExtent(p.Name, p.Medium, p.Offset, p.Length), nil
}

// OpenExtent returns a file of length bytes stored at off on m.
func OpenExtent(name string, m media.Medium, off, length int64) *File {
	return &File{
		Name:   name,
		size:   length,
		medium: m,
		src:    newExtents(m, []extent{{fileOff: 0, diskOff: off, length: length}}),
	}
}
