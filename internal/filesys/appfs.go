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
	"errors"
	"fmt"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/badgeteam/badgeboot/internal/partsys"
	"github.com/golang/glog"
)

// AppFS is the flash application store used on badge.team devices.
type AppFS struct {
	// BootFile names the file to boot. If empty, the first file is booted.
	BootFile string
}

var _ Filesystem = &AppFS{}

func metaOffset(copy int) int64 {
	return int64(copy) * format.AppFSPageSize / 2
}

// Identify implements Filesystem.
func (a *AppFS) Identify(p partsys.Partition) bool {
	r := p.Section()
	magic := make([]byte, len(format.AppFSMagic))
	for c := 0; c < format.AppFSMetaCopies; c++ {
		if _, err := r.ReadAt(magic, metaOffset(c)); err != nil {
			glog.Warningf("%v: too few bytes read from media (header %d): %v", p, c, err)
			return false
		}
		if string(magic) == format.AppFSMagic {
			return true
		}
	}
	return false
}

// activeMeta returns the valid metadata copy with the highest serial.
func (a *AppFS) activeMeta(p partsys.Partition) (*format.AppFSMeta, int, error) {
	r := p.Section()
	var best *format.AppFSMeta
	bestCopy := -1
	buf := make([]byte, format.AppFSMetaSize)
	for c := 0; c < format.AppFSMetaCopies; c++ {
		if _, err := r.ReadAt(buf, metaOffset(c)); err != nil {
			glog.Errorf("%v: too few bytes read from media (header %d): %v", p, c, err)
			continue
		}
		m, err := format.ParseAppFSMeta(buf)
		if err != nil {
			return nil, 0, err
		}
		if !m.Valid() {
			glog.V(1).Infof("%v: AppFS metadata copy %d invalid", p, c)
			continue
		}
		if best == nil || m.Header.Serial > best.Header.Serial {
			best, bestCopy = m, c
		}
	}
	if best == nil {
		return nil, 0, errors.New("no valid AppFS metadata")
	}
	return best, bestCopy, nil
}

// Open implements Filesystem.
func (a *AppFS) Open(p partsys.Partition) (*File, error) {
	meta, c, err := a.activeMeta(p)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("%v: using AppFS metadata copy %d (serial %d)", p, c, meta.Header.Serial)

	// A file starts at each data page which no other page points to.
	referenced := make([]bool, format.AppFSPages)
	for i := range meta.FAT {
		if e := &meta.FAT[i]; e.Used == format.AppFSUseData && e.Next != 0 && int(e.Next) < format.AppFSPages {
			referenced[e.Next] = true
		}
	}
	first := -1
	for i := range meta.FAT {
		e := &meta.FAT[i]
		if e.Used != format.AppFSUseData || referenced[i] {
			continue
		}
		name := e.FileName()
		glog.V(1).Infof("%v: AppFS file %q (%q, version %d, %d bytes) at page %d", p, name, e.FileTitle(), e.Version, e.Size, i)
		if a.BootFile == "" || name == a.BootFile {
			first = i
			break
		}
	}
	if first < 0 {
		if a.BootFile != "" {
			return nil, fmt.Errorf("no AppFS file named %q", a.BootFile)
		}
		return nil, errors.New("AppFS holds no files")
	}

	head := &meta.FAT[first]
	var runs []extent
	seen := make([]bool, format.AppFSPages)
	size := int64(head.Size)
	for page, off := first, int64(0); off < size; off += format.AppFSPageSize {
		if page < 0 || page >= format.AppFSPages || seen[page] {
			return nil, fmt.Errorf("AppFS file %q has a broken page chain at page %d", head.FileName(), page)
		}
		seen[page] = true
		if meta.FAT[page].Used != format.AppFSUseData {
			return nil, fmt.Errorf("AppFS file %q chains to unused page %d", head.FileName(), page)
		}
		disk := int64(page+1) * format.AppFSPageSize
		length := int64(format.AppFSPageSize)
		if rem := size - off; length > rem {
			length = rem
		}
		if disk+length > p.Length {
			return nil, fmt.Errorf("AppFS page %d lies beyond partition end", page)
		}
		runs = append(runs, extent{fileOff: off, diskOff: p.Offset + disk, length: length})

		next := int(meta.FAT[page].Next)
		if next == 0 {
			if off+length < size {
				return nil, fmt.Errorf("AppFS file %q ends after %d of %d bytes", head.FileName(), off+length, size)
			}
			break
		}
		page = next
	}

	return &File{
		Name:   head.FileName(),
		size:   size,
		medium: p.Medium,
		src:    newExtents(p.Medium, runs),
	}, nil
}
