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

// Package format provides encoding and decoding of the on-flash structures
// understood by the bootloader: ESP application images, the ESP partition
// table, and AppFS metadata.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// ImageMagic is the first byte of every ESP application image.
	ImageMagic = 0xE9
	// ImageHeaderSize is the size of the fixed image header.
	ImageHeaderSize = 24
	// SegmentHeaderSize is the size of the header preceding each segment.
	SegmentHeaderSize = 8
	// MaxSegments is the largest segment count accepted.
	MaxSegments = 16
	// ChecksumSeed is the initial state of the image checksum.
	ChecksumSeed = 0xEF

	// ChipESP32C6 is the chip id of the ESP32-C6.
	ChipESP32C6 = 0x000D
)

// ImageHeader is the little-endian header at the start of an ESP image.
type ImageHeader struct {
	Magic         uint8
	SegmentCount  uint8
	SPIMode       uint8
	SPISpeedSize  uint8
	Entry         uint32
	WPPin         uint8
	DriveSettings [3]uint8
	ChipID        uint16
	Deprecated    uint8
	MinRev        uint16
	MaxRev        uint16
	Reserved      uint32
	// HashAppended is non-zero if a SHA-256 digest follows the checksum.
	HashAppended uint8
}

// ParseImageHeader decodes an image header from the start of b.
func ParseImageHeader(b []byte) (ImageHeader, error) {
	var h ImageHeader
	if len(b) < ImageHeaderSize {
		return h, fmt.Errorf("image header needs %d bytes, got %d", ImageHeaderSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:ImageHeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("failed to decode image header: %w", err)
	}
	return h, nil
}

// MarshalBinary encodes the header.
func (h ImageHeader) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SegmentHeader precedes each segment's payload.
type SegmentHeader struct {
	// Addr is the address the payload is loaded to.
	Addr   uint32
	Length uint32
}

// ParseSegmentHeader decodes a segment header from the start of b.
func ParseSegmentHeader(b []byte) (SegmentHeader, error) {
	if len(b) < SegmentHeaderSize {
		return SegmentHeader{}, fmt.Errorf("segment header needs %d bytes, got %d", SegmentHeaderSize, len(b))
	}
	return SegmentHeader{
		Addr:   binary.LittleEndian.Uint32(b),
		Length: binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// Segment is a load address together with its payload.
type Segment struct {
	Addr uint32
	Data []byte
}

// Checksum folds data into the running XOR checksum state.
func Checksum(state byte, data []byte) byte {
	for _, b := range data {
		state ^= b
	}
	return state
}

// ChecksumOffset returns the offset, relative to the image start, of the
// checksum byte of an image whose segments end at end.
// The checksum is the final byte of the 16-byte block which follows the
// segments, padding included.
func ChecksumOffset(end int64) int64 {
	return end | 15
}

// BuildImage assembles a checksummed image from its header and segments.
// The header's segment count is filled in from segs.
func BuildImage(h ImageHeader, segs []Segment) ([]byte, error) {
	if len(segs) == 0 || len(segs) > MaxSegments {
		return nil, fmt.Errorf("image needs 1 to %d segments, got %d", MaxSegments, len(segs))
	}
	h.SegmentCount = uint8(len(segs))
	hdr, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	img := append([]byte{}, hdr...)
	for _, s := range segs {
		img = binary.LittleEndian.AppendUint32(img, s.Addr)
		img = binary.LittleEndian.AppendUint32(img, uint32(len(s.Data)))
		img = append(img, s.Data...)
	}
	return AppendChecksum(img)
}

// AppendChecksum pads img with zeroes and appends the checksum byte over
// every segment payload, so that the result is a multiple of 16 bytes long.
// img must end exactly at the end of its last segment.
func AppendChecksum(img []byte) ([]byte, error) {
	h, err := ParseImageHeader(img)
	if err != nil {
		return nil, err
	}
	if h.Magic != ImageMagic {
		return nil, fmt.Errorf("bad image magic %#x", h.Magic)
	}
	if h.SegmentCount == 0 {
		return nil, errors.New("image has no segments")
	}
	xsum := byte(ChecksumSeed)
	off := int64(ImageHeaderSize)
	for i := 0; i < int(h.SegmentCount); i++ {
		if off+SegmentHeaderSize > int64(len(img)) {
			return nil, fmt.Errorf("segment %d header truncated", i)
		}
		s, _ := ParseSegmentHeader(img[off:])
		off += SegmentHeaderSize
		if off+int64(s.Length) > int64(len(img)) {
			return nil, fmt.Errorf("segment %d payload (%d bytes) truncated", i, s.Length)
		}
		xsum = Checksum(xsum, img[off:off+int64(s.Length)])
		off += int64(s.Length)
	}
	if off != int64(len(img)) {
		return nil, fmt.Errorf("%d trailing bytes after last segment", int64(len(img))-off)
	}
	out := make([]byte, ChecksumOffset(off)+1)
	copy(out, img)
	out[len(out)-1] = xsum
	return out, nil
}
