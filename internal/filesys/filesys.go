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

// Package filesys locates the boot file within a partition.
package filesys

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/badgeteam/badgeboot/internal/media"
	"github.com/badgeteam/badgeboot/internal/partsys"
)

var (
	// ErrOutOfBounds is returned for mappings which extend beyond the file.
	ErrOutOfBounds = errors.New("range outside file")
	// ErrNotMappable is returned by MMap when the file's storage cannot be
	// mapped into the address space.
	ErrNotMappable = errors.New("file not mappable")
)

// Filesystem is a filesystem format which can hold the boot file.
type Filesystem interface {
	// Identify reports whether p holds this filesystem.
	Identify(p partsys.Partition) bool
	// Open opens the boot file on p.
	Open(p partsys.Partition) (*File, error)
}

// source provides the contents of a file. Offsets passed in are already
// bounds-checked against the file size.
type source interface {
	ReadAt(p []byte, off int64) (int, error)
	MMap(off, length int64, vaddr uint32) error
	DiskOffset(off int64) (int64, bool)
}

// File is an open boot file.
type File struct {
	Name   string
	size   int64
	medium media.Medium
	src    source
}

// Size returns the length of the file in bytes.
func (f *File) Size() int64 { return f.size }

// Medium returns the medium the file is stored on.
func (f *File) Medium() media.Medium { return f.medium }

// ReadAt implements io.ReaderAt.
// Reads past the end of the file are truncated.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d", f.Name, off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	q := p
	if rem := f.size - off; int64(len(q)) > rem {
		q = q[:rem]
	}
	n, err := f.src.ReadAt(q, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// MMap makes [off, off+length) of the file visible at vaddr.
func (f *File) MMap(off, length int64, vaddr uint32) error {
	if off < 0 || length < 0 || off+length > f.size {
		return fmt.Errorf("%s: mapping %#x+%#x of %#x bytes: %w", f.Name, off, length, f.size, ErrOutOfBounds)
	}
	return f.src.MMap(off, length, vaddr)
}

// DiskOffset returns the medium offset holding byte off of the file, if the
// file is stored directly on the medium.
func (f *File) DiskOffset(off int64) (int64, bool) {
	if off < 0 || off >= f.size {
		return 0, false
	}
	return f.src.DiskOffset(off)
}

// NegotiatePage asks the underlying medium for a mapping page size of at
// most max bytes. It returns zero if the medium has no say in the matter.
func (f *File) NegotiatePage(max uint32) uint32 {
	if n, ok := f.medium.(media.PageNegotiator); ok {
		return n.NegotiatePage(max)
	}
	return 0
}

// extent is a run of file bytes stored contiguously on the medium.
type extent struct {
	fileOff int64
	diskOff int64
	length  int64
}

// extents is a file stored as a list of runs on a medium.
type extents struct {
	medium media.Medium
	list   []extent
	// last is the index of the most recently used extent; reads are mostly
	// sequential.
	last int
}

// newExtents returns a source for runs, merging runs which are adjacent on
// the medium.
func newExtents(m media.Medium, runs []extent) *extents {
	e := &extents{medium: m}
	for _, r := range runs {
		if n := len(e.list); n > 0 {
			p := &e.list[n-1]
			if p.fileOff+p.length == r.fileOff && p.diskOff+p.length == r.diskOff {
				p.length += r.length
				continue
			}
		}
		e.list = append(e.list, r)
	}
	return e
}

// find returns the index of the extent holding off.
func (e *extents) find(off int64) (int, bool) {
	if e.last < len(e.list) {
		if x := e.list[e.last]; off >= x.fileOff && off < x.fileOff+x.length {
			return e.last, true
		}
	}
	i := sort.Search(len(e.list), func(i int) bool {
		return e.list[i].fileOff+e.list[i].length > off
	})
	if i == len(e.list) || off < e.list[i].fileOff {
		return 0, false
	}
	e.last = i
	return i, true
}

func (e *extents) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		i, ok := e.find(pos)
		if !ok {
			return n, fmt.Errorf("offset %#x not backed by an extent", pos)
		}
		x := e.list[i]
		chunk := x.fileOff + x.length - pos
		if rem := int64(len(p) - n); chunk > rem {
			chunk = rem
		}
		c, err := e.medium.ReadAt(p[n:n+int(chunk)], x.diskOff+pos-x.fileOff)
		n += c
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (e *extents) MMap(off, length int64, vaddr uint32) error {
	mapper, ok := e.medium.(media.Mapper)
	if !ok {
		return fmt.Errorf("medium %q: %w", e.medium.Name(), ErrNotMappable)
	}
	done := int64(0)
	for done < length {
		pos := off + done
		i, ok := e.find(pos)
		if !ok {
			return fmt.Errorf("offset %#x not backed by an extent", pos)
		}
		x := e.list[i]
		chunk := x.fileOff + x.length - pos
		if rem := length - done; chunk > rem {
			chunk = rem
		}
		if err := mapper.MMap(x.diskOff+pos-x.fileOff, chunk, vaddr+uint32(done)); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

func (e *extents) DiskOffset(off int64) (int64, bool) {
	i, ok := e.find(off)
	if !ok {
		return 0, false
	}
	return e.list[i].diskOff + off - e.list[i].fileOff, true
}

// buffer is a file which has been read into memory.
type buffer []byte

func (b buffer) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, b[off:]), nil
}

func (b buffer) MMap(int64, int64, uint32) error {
	return ErrNotMappable
}

func (b buffer) DiskOffset(int64) (int64, bool) {
	return 0, false
}
