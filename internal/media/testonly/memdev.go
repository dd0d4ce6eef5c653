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

// Package testonly provides support for media tests.
package testonly

import (
	"errors"
	"fmt"
	"testing"
)

// MemBlockSize is the number of bytes in a single memory block.
const MemBlockSize = 512

// MemDev is a simple in-memory block device.
//
// FailReads, if positive, is the number of upcoming ReadBlocks calls which
// will fail before the device starts answering again.
type MemDev struct {
	Data      [][MemBlockSize]byte
	FailReads int
	Reads     int
}

// BlockSize returns the block size of the underlying storage system.
func (md *MemDev) BlockSize() uint {
	return MemBlockSize
}

// Blocks returns the number of blocks on the device.
func (md *MemDev) Blocks() uint {
	return uint(len(md.Data))
}

// ReadBlocks reads len(b) bytes into b from contiguous storage blocks starting
// at the given block address.
// b must be an integer multiple of the device's block size.
func (md *MemDev) ReadBlocks(lba uint, b []byte) error {
	md.Reads++
	if md.FailReads > 0 {
		md.FailReads--
		return errors.New("transient read failure")
	}
	if lba >= uint(len(md.Data)) {
		return fmt.Errorf("lba (%d) >= device blocks (%d)", lba, len(md.Data))
	}
	bl := uint(len(b)) / MemBlockSize
	if l := uint(len(md.Data)); lba+bl > l {
		bl = l - lba
	}
	for i := uint(0); i < bl; i++ {
		copy(b[i*MemBlockSize:], md.Data[lba+i][:])
	}
	return nil
}

// Write copies b into the device starting at byte offset off.
func (md *MemDev) Write(off int, b []byte) {
	for i, v := range b {
		p := off + i
		md.Data[p/MemBlockSize][p%MemBlockSize] = v
	}
}

// NewMemDev creates a new in-memory block device.
func NewMemDev(t *testing.T, numBlocks uint) *MemDev {
	t.Helper()
	return &MemDev{Data: make([][MemBlockSize]byte, numBlocks)}
}
