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
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

const (
	// PartitionTableOffset is the default location of the partition table.
	PartitionTableOffset = 0x8000
	// PartitionTableSize is the space reserved for the partition table.
	PartitionTableSize = 0xC00
	// PartitionEntrySize is the size of a single table record.
	PartitionEntrySize = 32

	// PartitionMagic starts every partition record.
	PartitionMagic = 0x50AA
	// PartitionMD5Magic starts the checksum record which ends the table.
	PartitionMD5Magic = 0xEBEB

	// MaxLabelLen is the longest partition name kept.
	MaxLabelLen = 15

	// FlagEncrypted marks an encrypted partition.
	FlagEncrypted = 1 << 0
)

// Partition types.
const (
	TypeApp   = 0x00
	TypeData  = 0x01
	TypeAppFS = 0x43
)

// Partition subtypes.
const (
	SubtypeAppFactory = 0x00
	SubtypeAppOTA0    = 0x10
	SubtypeAppOTA15   = 0x1F
	SubtypeAppTest    = 0x20

	SubtypeDataOTA      = 0x00
	SubtypeDataPHY      = 0x01
	SubtypeDataNVS      = 0x02
	SubtypeDataCoreDump = 0x03
	SubtypeDataNVSKey   = 0x04
	SubtypeDataESPHTTPD = 0x80
	SubtypeDataFATFS    = 0x81
	SubtypeDataSPIFFS   = 0x82
	SubtypeDataLittleFS = 0x83

	SubtypeAppFS = 0x03
)

// PartitionEntry is one record of the partition table.
type PartitionEntry struct {
	Magic   uint16
	Type    uint8
	Subtype uint8
	Offset  uint32
	Size    uint32
	Label   [16]byte
	Flags   uint32
}

// NewPartitionEntry returns a record with the given properties.
func NewPartitionEntry(label string, typ, subtype uint8, offset, size uint32) PartitionEntry {
	e := PartitionEntry{
		Magic:   PartitionMagic,
		Type:    typ,
		Subtype: subtype,
		Offset:  offset,
		Size:    size,
	}
	copy(e.Label[:MaxLabelLen], label)
	return e
}

// ParsePartitionEntry decodes a record from the start of b.
func ParsePartitionEntry(b []byte) (PartitionEntry, error) {
	var e PartitionEntry
	if len(b) < PartitionEntrySize {
		return e, fmt.Errorf("partition entry needs %d bytes, got %d", PartitionEntrySize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:PartitionEntrySize]), binary.LittleEndian, &e); err != nil {
		return e, fmt.Errorf("failed to decode partition entry: %w", err)
	}
	return e, nil
}

// MarshalBinary encodes the record.
func (e PartitionEntry) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Name returns the label up to its terminator, at most MaxLabelLen bytes.
func (e PartitionEntry) Name() string {
	l := e.Label[:MaxLabelLen]
	if i := bytes.IndexByte(l, 0); i >= 0 {
		l = l[:i]
	}
	return string(l)
}

// Encrypted reports whether the encrypted flag is set.
func (e PartitionEntry) Encrypted() bool {
	return e.Flags&FlagEncrypted != 0
}

// TypeName describes the partition's type, or returns "" for unknown types.
func (e PartitionEntry) TypeName() string {
	switch e.Type {
	case TypeApp:
		switch {
		case e.Subtype == SubtypeAppFactory:
			return "factory app"
		case e.Subtype >= SubtypeAppOTA0 && e.Subtype <= SubtypeAppOTA15:
			return "OTA app"
		case e.Subtype == SubtypeAppTest:
			return "test app"
		}
	case TypeData:
		switch e.Subtype {
		case SubtypeDataOTA:
			return "OTA selection data"
		case SubtypeDataPHY:
			return "PHY init data"
		case SubtypeDataNVS:
			return "NVS data"
		case SubtypeDataCoreDump:
			return "core dump data"
		case SubtypeDataNVSKey:
			return "NVS key data"
		case SubtypeDataESPHTTPD:
			return "ESPHTTPD data"
		case SubtypeDataFATFS:
			return "FAT filesystem"
		case SubtypeDataSPIFFS:
			return "SPIFFS filesystem"
		case SubtypeDataLittleFS:
			return "LittleFS filesystem"
		}
	case TypeAppFS:
		if e.Subtype == SubtypeAppFS {
			return "AppFS filesystem"
		}
	}
	return ""
}

// BuildPartitionTable encodes entries into a table of PartitionTableSize
// bytes, followed by the MD5 record, with the remainder erased (0xFF).
func BuildPartitionTable(entries []PartitionEntry) ([]byte, error) {
	if (len(entries)+1)*PartitionEntrySize > PartitionTableSize {
		return nil, fmt.Errorf("%d partitions do not fit in the table", len(entries))
	}
	tbl := bytes.Repeat([]byte{0xFF}, PartitionTableSize)
	off := 0
	for i, e := range entries {
		b, err := e.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
		off += copy(tbl[off:], b)
	}
	sum := md5.Sum(tbl[:off])
	binary.LittleEndian.PutUint16(tbl[off:], PartitionMD5Magic)
	copy(tbl[off+PartitionEntrySize-md5.Size:], sum[:])
	return tbl, nil
}
