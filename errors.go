// Copyright 2024 The Cockroach Authors
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

package linmap

import (
	"errors"
	"fmt"
)

// Errors returned by Map operations. Use errors.Is to test for them as they
// are usually wrapped with additional context. Looking up or deleting a key
// that is not present is not an error.
var (
	// ErrConfig is returned by New and NewFixed when the requested capacity
	// or combination of options is invalid.
	ErrConfig = errors.New("linmap: invalid configuration")
	// ErrOutOfMemory is returned when the Allocator or an Owner fails, or
	// when the map cannot grow any further.
	ErrOutOfMemory = errors.New("linmap: out of memory")
	// ErrFull is returned by Put on a fixed capacity map that has no empty
	// slot left.
	ErrFull = errors.New("linmap: map is full")
	// ErrConcurrentModification is returned by an Iterator used after the
	// map was mutated.
	ErrConcurrentModification = errors.New("linmap: map modified during iteration")
	// ErrClosed is returned by Put on a map that has been closed.
	ErrClosed = errors.New("linmap: map is closed")
)

// fail returns err, or panics with it if the map was constructed using
// WithFailFast.
func (m *Map[K, V]) fail(err error) error {
	if m.failFast {
		panic(err)
	}
	return err
}

// outOfMemory wraps an error returned by an Allocator or Owner so that it
// matches ErrOutOfMemory.
func outOfMemory(op string, err error) error {
	if errors.Is(err, ErrOutOfMemory) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrOutOfMemory, err)
}
