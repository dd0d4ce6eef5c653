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

// Package media provides the boot media backends: sources of raw boot bytes
// such as the XIP-mapped SPI flash, an SD card, or an image held in memory.
package media

import (
	"fmt"
	"io"
)

// Medium is an abstract bootable device.
//
// ReadAt follows the io.ReaderAt contract: a read which reaches the end of
// the medium returns the bytes available together with io.EOF.
type Medium interface {
	io.ReaderAt
	// Size returns the size of the medium in bytes.
	Size() int64
	// Name identifies the medium in logs.
	Name() string
}

// Mapper is implemented by media which can be mapped into the CPU's address
// space without copying.
type Mapper interface {
	// MMap makes [off, off+length) of the medium visible at vaddr.
	MMap(off, length int64, vaddr uint32) error
}

// PageNegotiator is implemented by media whose mappings have a configurable
// page size.
type PageNegotiator interface {
	// NegotiatePage returns the page size the medium will use given that
	// pages must not exceed max bytes, or zero if no such size exists.
	NegotiatePage(max uint32) uint32
}

// BlockReader describes a type which knows how to read whole blocks from
// some backing storage.
type BlockReader interface {
	// BlockSize returns the block size of the underlying storage system.
	BlockSize() uint

	// Blocks returns the number of blocks on the device.
	Blocks() uint

	// ReadBlocks reads len(b) bytes into b from contiguous storage blocks starting
	// at the given block address.
	// b must be an integer multiple of the device's block size.
	ReadBlocks(lba uint, b []byte) error
}

// clamp bounds a read of len(p) bytes at off to a medium of the given size.
// It returns the usable prefix of p, or io.EOF if nothing can be read.
func clamp(p []byte, off, size int64) ([]byte, error) {
	if off < 0 {
		return nil, fmt.Errorf("negative offset %d", off)
	}
	if off >= size {
		return nil, io.EOF
	}
	if rem := size - off; int64(len(p)) > rem {
		p = p[:rem]
	}
	return p, nil
}
