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

package protocol

import (
	"errors"
	"fmt"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/golang/glog"
)

// checksumChunk is the read size used while checksumming payloads.
const checksumChunk = 4096

// ESP boots ESP-IDF application images.
//
// The image checksum is a plain XOR and only catches accidental corruption.
type ESP struct {
	Env
	// ChipID is the chip the image must have been built for.
	ChipID uint16
}

var _ Protocol = &ESP{}

// NewESP returns the ESP protocol for the given chip.
func NewESP(env Env, chipID uint16) *ESP {
	return &ESP{Env: env, ChipID: chipID}
}

func (e *ESP) header(f *filesys.File) (format.ImageHeader, error) {
	b := make([]byte, format.ImageHeaderSize)
	if _, err := f.ReadAt(b, 0); err != nil {
		return format.ImageHeader{}, fmt.Errorf("too few bytes read from media (header): %w", err)
	}
	return format.ParseImageHeader(b)
}

// Identify implements Protocol.
func (e *ESP) Identify(f *filesys.File) bool {
	h, err := e.header(f)
	if err != nil {
		glog.Warningf("%s: %v", f.Name, err)
		return false
	}
	return h.Magic == format.ImageMagic && h.ChipID == e.ChipID
}

// segments reads the segment table, returning the placements and the
// offset of the end of the last payload.
func (e *ESP) segments(f *filesys.File, h format.ImageHeader) ([]placement, int64, error) {
	ps := make([]placement, 0, h.SegmentCount)
	off := int64(format.ImageHeaderSize)
	b := make([]byte, format.SegmentHeaderSize)
	for i := 0; i < int(h.SegmentCount); i++ {
		if _, err := f.ReadAt(b, off); err != nil {
			return nil, 0, fmt.Errorf("too few bytes read from media (segment %d): %w", i, err)
		}
		s, err := format.ParseSegmentHeader(b)
		if err != nil {
			return nil, 0, err
		}
		off += format.SegmentHeaderSize
		if off+int64(s.Length) > f.Size() {
			return nil, 0, fmt.Errorf("segment %d payload %#x+%#x runs past end of file (%#x)", i, off, s.Length, f.Size())
		}
		glog.Infof("Segment %d/%d: map %#x bytes from %#x to %#x", i+1, h.SegmentCount, s.Length, off, s.Addr)
		ps = append(ps, placement{fileOff: off, length: int64(s.Length), addr: s.Addr})
		off += int64(s.Length)
	}
	return ps, off, nil
}

// checksum verifies the XOR checksum over all payloads.
func (e *ESP) checksum(f *filesys.File, ps []placement, end int64) error {
	stored := make([]byte, 1)
	if _, err := f.ReadAt(stored, format.ChecksumOffset(end)); err != nil {
		return fmt.Errorf("too few bytes read from media (checksum): %w", err)
	}
	xsum := byte(format.ChecksumSeed)
	buf := make([]byte, checksumChunk)
	for _, p := range ps {
		for done := int64(0); done < p.length; {
			n := int64(len(buf))
			if rem := p.length - done; n > rem {
				n = rem
			}
			if _, err := f.ReadAt(buf[:n], p.fileOff+done); err != nil {
				return fmt.Errorf("reading payload at %#x: %w", p.fileOff+done, err)
			}
			xsum = format.Checksum(xsum, buf[:n])
			done += n
		}
	}
	if stored[0] != xsum {
		glog.Errorf("Checksum mismatch: expected %#02x, got %#02x", stored[0], xsum)
		return errors.New("image checksum mismatch")
	}
	return nil
}

// Boot implements Protocol.
func (e *ESP) Boot(f *filesys.File) error {
	h, err := e.header(f)
	if err != nil {
		return err
	}
	if h.Magic != format.ImageMagic || h.ChipID != e.ChipID {
		return fmt.Errorf("invalid ESP image header (magic %#02x, chip %#04x)", h.Magic, h.ChipID)
	}
	if h.SegmentCount == 0 || h.SegmentCount > format.MaxSegments {
		return fmt.Errorf("invalid ESP segment count (%d)", h.SegmentCount)
	}
	if h.HashAppended != 0 {
		glog.Warning("ESP image has SHA256 appended, ignoring")
	}

	ps, end, err := e.segments(f, h)
	if err != nil {
		return err
	}
	if err := e.checksum(f, ps, end); err != nil {
		return err
	}

	glog.Info("Loading kernel")
	if err := e.setPageSize(f, ps); err != nil {
		return err
	}
	if err := e.place(f, ps); err != nil {
		return err
	}
	return e.handover(h.Entry)
}
