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

import "io"

// Mem is a medium backed by a byte slice, e.g. an image preloaded into RAM
// by an earlier stage.
type Mem struct {
	name string
	b    []byte
}

var _ Medium = &Mem{}

// NewMem returns a medium exposing b.
func NewMem(name string, b []byte) *Mem {
	return &Mem{name: name, b: b}
}

// Name implements Medium.
func (m *Mem) Name() string { return m.name }

// Size implements Medium.
func (m *Mem) Size() int64 { return int64(len(m.b)) }

// ReadAt implements io.ReaderAt.
func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	q, err := clamp(p, off, m.Size())
	if err != nil {
		return 0, err
	}
	n := copy(q, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
