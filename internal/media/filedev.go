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

package media

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FileDev is a block device backed by a disk image file.
type FileDev struct {
	f         *os.File
	blockSize uint
	blocks    uint
}

var _ BlockReader = &FileDev{}

// OpenFileDev opens the image at path as a device of blockSize-byte blocks.
// A trailing partial block is visible, zero padded.
func OpenFileDev(path string, blockSize uint) (*FileDev, error) {
	if blockSize == 0 {
		return nil, errors.New("block size must be positive")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device image %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat device image %q: %w", path, err)
	}
	return &FileDev{
		f:         f,
		blockSize: blockSize,
		blocks:    uint((st.Size() + int64(blockSize) - 1) / int64(blockSize)),
	}, nil
}

// Close releases the image file.
func (d *FileDev) Close() error {
	return d.f.Close()
}

// BlockSize returns the size in bytes of the each block in the underlying storage.
func (d *FileDev) BlockSize() uint {
	return d.blockSize
}

// Blocks returns the number of blocks in the image.
func (d *FileDev) Blocks() uint {
	return d.blocks
}

// ReadBlocks reads data from the image at the given block address into b.
// b must be a multiple of the block size.
func (d *FileDev) ReadBlocks(lba uint, b []byte) error {
	if len(b)%int(d.blockSize) != 0 {
		return fmt.Errorf("read of %d bytes is not a multiple of the block size (%d)", len(b), d.blockSize)
	}
	if lba+uint(len(b))/d.blockSize > d.blocks {
		return fmt.Errorf("read of blocks [%d, %d) past device end (%d)", lba, lba+uint(len(b))/d.blockSize, d.blocks)
	}
	n, err := d.f.ReadAt(b, int64(lba)*int64(d.blockSize))
	if err == io.EOF {
		// Partial final block.
		for i := n; i < len(b); i++ {
			b[i] = 0
		}
		return nil
	}
	return err
}
