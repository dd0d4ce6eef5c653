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

package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// AppFS layout.
//
// An AppFS partition starts with two copies of the metadata, at offset 0 and
// half a page in. Each copy is a header followed by one FAT entry per data
// page. Data page n lives at (n+1)*AppFSPageSize.
const (
	AppFSMagic      = "AppFsDsc"
	AppFSPages      = 255
	AppFSPageSize   = 65536
	AppFSHeaderSize = 128
	AppFSEntrySize  = 128
	AppFSMetaSize   = AppFSHeaderSize + AppFSPages*AppFSEntrySize
	AppFSMetaCopies = 2

	AppFSNameLen  = 48
	AppFSTitleLen = 64
)

// FAT entry usage.
const (
	AppFSUseFree    = 0xFF
	AppFSUseIllegal = 0x55
	AppFSUseData    = 0x00
)

// AppFSHeader starts a metadata copy.
type AppFSHeader struct {
	Magic  [8]byte
	Serial uint32
	// CRC32 is the IEEE CRC of the FAT which follows.
	CRC32    uint32
	Reserved [AppFSHeaderSize - 16]byte
}

// AppFSEntry describes one data page.
// Name, Title and Version are only meaningful on a file's first page.
type AppFSEntry struct {
	Name     [AppFSNameLen]byte
	Title    [AppFSTitleLen]byte
	Size     uint32
	Next     uint8
	Used     uint8
	Version  uint16
	Reserved [8]byte
}

// FileName returns the entry's name up to its terminator.
func (e *AppFSEntry) FileName() string {
	return cstring(e.Name[:])
}

// FileTitle returns the entry's description up to its terminator.
func (e *AppFSEntry) FileTitle() string {
	return cstring(e.Title[:])
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// AppFSMeta is one copy of the AppFS metadata.
type AppFSMeta struct {
	Header AppFSHeader
	FAT    [AppFSPages]AppFSEntry
}

// ParseAppFSMeta decodes a metadata copy from the start of b.
func ParseAppFSMeta(b []byte) (*AppFSMeta, error) {
	if len(b) < AppFSMetaSize {
		return nil, fmt.Errorf("AppFS metadata needs %d bytes, got %d", AppFSMetaSize, len(b))
	}
	m := &AppFSMeta{}
	if err := binary.Read(bytes.NewReader(b[:AppFSMetaSize]), binary.LittleEndian, m); err != nil {
		return nil, fmt.Errorf("failed to decode AppFS metadata: %w", err)
	}
	return m, nil
}

// MarshalBinary encodes the metadata copy.
func (m *AppFSMeta) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ComputeCRC returns the CRC of the FAT.
func (m *AppFSMeta) ComputeCRC() uint32 {
	buf := &bytes.Buffer{}
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, m.FAT)
	return crc32.ChecksumIEEE(buf.Bytes())
}

// Valid reports whether the copy carries the magic and a matching CRC.
func (m *AppFSMeta) Valid() bool {
	return string(m.Header.Magic[:]) == AppFSMagic && m.Header.CRC32 == m.ComputeCRC()
}

// AppFSFile is a file to be written by BuildAppFS.
type AppFSFile struct {
	Name    string
	Title   string
	Version uint16
	Data    []byte
}

// BuildAppFS lays out files in an AppFS partition of size bytes.
// Files occupy consecutive pages in the order given. Both metadata copies
// are written with the given serial.
func BuildAppFS(size int64, serial uint32, files []AppFSFile) ([]byte, error) {
	if size < 2*AppFSPageSize {
		return nil, fmt.Errorf("AppFS partition of %d bytes has no room for data", size)
	}
	pages := int(size/AppFSPageSize) - 1
	if pages > AppFSPages {
		pages = AppFSPages
	}

	m := &AppFSMeta{}
	copy(m.Header.Magic[:], AppFSMagic)
	m.Header.Serial = serial
	for i := range m.FAT {
		m.FAT[i] = freeEntry()
	}

	out := bytes.Repeat([]byte{0xFF}, int(size))
	page := 0
	for _, f := range files {
		if f.Name == "" || len(f.Name) >= AppFSNameLen {
			return nil, fmt.Errorf("invalid AppFS file name %q", f.Name)
		}
		if len(f.Title) >= AppFSTitleLen {
			return nil, fmt.Errorf("title of %q too long", f.Name)
		}
		n := (len(f.Data) + AppFSPageSize - 1) / AppFSPageSize
		if n == 0 {
			n = 1
		}
		if page+n > pages {
			return nil, fmt.Errorf("no room for %q: needs %d pages, %d left", f.Name, n, pages-page)
		}
		for i := 0; i < n; i++ {
			e := freeEntry()
			if i == 0 {
				e.Name = [AppFSNameLen]byte{}
				e.Title = [AppFSTitleLen]byte{}
				copy(e.Name[:], f.Name)
				copy(e.Title[:], f.Title)
				e.Version = f.Version
			}
			e.Size = uint32(len(f.Data))
			e.Used = AppFSUseData
			e.Next = 0
			if i+1 < n {
				e.Next = uint8(page + i + 1)
			}
			m.FAT[page+i] = e

			start := i * AppFSPageSize
			end := start + AppFSPageSize
			if end > len(f.Data) {
				end = len(f.Data)
			}
			copy(out[(page+i+1)*AppFSPageSize:], f.Data[start:end])
		}
		page += n
	}
	m.Header.CRC32 = m.ComputeCRC()
	meta, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	for c := 0; c < AppFSMetaCopies; c++ {
		copy(out[c*AppFSPageSize/2:], meta)
	}
	return out, nil
}

func freeEntry() AppFSEntry {
	e := AppFSEntry{Size: 0xFFFFFFFF, Next: 0xFF, Used: AppFSUseFree, Version: 0xFFFF}
	for i := range e.Name {
		e.Name[i] = 0xFF
	}
	for i := range e.Title {
		e.Title[i] = 0xFF
	}
	for i := range e.Reserved {
		e.Reserved[i] = 0xFF
	}
	return e
}
