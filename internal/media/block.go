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
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

// MaxTransferBytes is the largest single transfer issued to a block device.
// Larger reads are chunked.
var MaxTransferBytes = 32 * 1024

// Block is a medium on a block device such as an SD card or eMMC.
// Unaligned reads are served by reading the covering whole blocks.
type Block struct {
	name string
	dev  BlockReader

	// NewBackOff returns the retry policy for a single block transfer.
	// Cards occasionally fail a transfer right after power-up, so reads are
	// retried a few times before the medium is given up on.
	NewBackOff func() backoff.BackOff
}

var _ Medium = &Block{}

// NewBlock returns a medium reading from dev.
func NewBlock(name string, dev BlockReader) *Block {
	return &Block{
		name:       name,
		dev:        dev,
		NewBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 500 * time.Millisecond
	return backoff.WithMaxRetries(b, 3)
}

// Name implements Medium.
func (m *Block) Name() string { return m.name }

// Size implements Medium.
func (m *Block) Size() int64 {
	return int64(m.dev.Blocks()) * int64(m.dev.BlockSize())
}

// ReadAt implements io.ReaderAt.
func (m *Block) ReadAt(p []byte, off int64) (int, error) {
	q, err := clamp(p, off, m.Size())
	if err != nil {
		return 0, err
	}
	bs := int64(m.dev.BlockSize())
	maxBlocks := int64(MaxTransferBytes) / bs
	if maxBlocks == 0 {
		maxBlocks = 1
	}

	n := 0
	for n < len(q) {
		pos := off + int64(n)
		lba := pos / bs
		skip := pos % bs
		blocks := (skip + int64(len(q)-n) + bs - 1) / bs
		if blocks > maxBlocks {
			blocks = maxBlocks
		}
		buf := make([]byte, blocks*bs)
		if err := m.readBlocks(uint(lba), buf); err != nil {
			return n, err
		}
		n += copy(q[n:], buf[skip:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Block) readBlocks(lba uint, b []byte) error {
	attempt := 0
	op := func() error {
		attempt++
		err := m.dev.ReadBlocks(lba, b)
		if err != nil {
			glog.V(1).Infof("%s: read of block %d failed (attempt %d): %v", m.name, lba, attempt, err)
		}
		return err
	}
	if err := backoff.Retry(op, m.NewBackOff()); err != nil {
		glog.Warningf("%s: giving up reading block %d after %d attempts: %v", m.name, lba, attempt, err)
		return fmt.Errorf("read block %d: %w", lba, err)
	}
	return nil
}
