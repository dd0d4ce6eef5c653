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

// Package registry provides the append-only driver lists used by each stage
// of the boot chain.
package registry

import (
	"errors"
)

// ErrSealed is returned when registering into a list after discovery started.
var ErrSealed = errors.New("registry is sealed")

// List is an ordered list of drivers.
// Iteration order is registration order, which is also the tie-break when
// more than one driver would accept the same input.
type List[T any] struct {
	entries []T
	sealed  bool
}

// Register appends d to the end of the list. Duplicates are not detected.
func (l *List[T]) Register(d T) error {
	if l.sealed {
		return ErrSealed
	}
	l.entries = append(l.entries, d)
	return nil
}

// Seal ends the registration phase.
func (l *List[T]) Seal() {
	l.sealed = true
}

// Sealed reports whether Seal has been called.
func (l *List[T]) Sealed() bool {
	return l.sealed
}

// Len returns the number of registered drivers.
func (l *List[T]) Len() int {
	return len(l.entries)
}

// All returns the drivers in registration order.
// The returned slice must not be modified.
func (l *List[T]) All() []T {
	return l.entries
}
