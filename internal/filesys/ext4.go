// The ext4 lookup is derived from https://github.com/f-secure-foundry/armory-boot
// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/badgeteam/badgeboot/internal/partsys"
	"github.com/dsoprea/go-ext4"
	"github.com/golang/glog"
)

// Ext4 opens the boot file from an ext4 filesystem, typically on an SD card.
// The file is read into memory, so it cannot be mapped in place.
type Ext4 struct {
	// BootPath is the absolute path of the boot file.
	BootPath string
}

var _ Filesystem = &Ext4{}

const (
	superblockMagicOffset = 0x38
	superblockMagic       = 0xEF53
)

func blockGroupDescriptor(rs io.ReadSeeker, inode int) (*ext4.BlockGroupDescriptor, error) {
	if _, err := rs.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return nil, err
	}
	sb, err := ext4.NewSuperblockWithReader(rs)
	if err != nil {
		return nil, err
	}
	bgdl, err := ext4.NewBlockGroupDescriptorListWithReadSeeker(rs, sb)
	if err != nil {
		return nil, err
	}
	return bgdl.GetWithAbsoluteInode(inode)
}

// Identify implements Filesystem.
func (e *Ext4) Identify(p partsys.Partition) bool {
	rs := p.Section()
	magic := make([]byte, 2)
	if _, err := rs.ReadAt(magic, ext4.Superblock0Offset+superblockMagicOffset); err != nil {
		return false
	}
	if binary.LittleEndian.Uint16(magic) != superblockMagic {
		return false
	}
	if _, err := rs.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return false
	}
	if _, err := ext4.NewSuperblockWithReader(rs); err != nil {
		glog.V(2).Infof("%v: not ext4: %v", p, err)
		return false
	}
	return true
}

// lookup walks the directory tree down to the inode at path.
func lookup(rs io.ReadSeeker, fullPath string) (int, *ext4.BlockGroupDescriptor, error) {
	elems := strings.Split(strings.TrimPrefix(path.Clean("/"+fullPath), "/"), "/")

	inode := ext4.InodeRootDirectory
	bgd, err := blockGroupDescriptor(rs, inode)
	if err != nil {
		return 0, nil, err
	}
	for _, elem := range elems {
		dw, err := ext4.NewDirectoryWalk(rs, bgd, inode)
		if err != nil {
			return 0, nil, err
		}
		found := false
		for {
			name, de, err := dw.Next()
			if err == io.EOF {
				break
			} else if err != nil {
				return 0, nil, err
			}
			// The walk recurses into subdirectories, reporting their entries
			// by relative path.
			if name != elem {
				continue
			}
			inode = int(de.Data().Inode)
			found = true
			break
		}
		if !found {
			return 0, nil, fmt.Errorf("%q not found", fullPath)
		}
		if bgd, err = blockGroupDescriptor(rs, inode); err != nil {
			return 0, nil, err
		}
	}
	return inode, bgd, nil
}

// Open implements Filesystem.
func (e *Ext4) Open(p partsys.Partition) (*File, error) {
	if !e.Identify(p) {
		return nil, errors.New("no ext4 superblock")
	}
	rs := p.Section()
	num, bgd, err := lookup(rs, e.BootPath)
	if err != nil {
		return nil, fmt.Errorf("ext4 lookup: %w", err)
	}
	inode, err := ext4.NewInodeWithReadSeeker(bgd, rs, num)
	if err != nil {
		return nil, fmt.Errorf("ext4 inode %d: %w", num, err)
	}
	en := ext4.NewExtentNavigatorWithReadSeeker(rs, inode)
	buf, err := io.ReadAll(ext4.NewInodeReader(en))
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", e.BootPath, err)
	}
	glog.V(1).Infof("%v: read %d bytes of %q", p, len(buf), e.BootPath)
	return &File{
		Name:   path.Base(e.BootPath),
		size:   int64(len(buf)),
		medium: p.Medium,
		src:    buffer(buf),
	}, nil
}
