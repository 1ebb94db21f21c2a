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
	"bytes"
	"strings"
)

// Ownership describes which of a Map's keys and values are owned by the map.
// An owned key or value is duplicated when it is stored and released when it
// is overwritten, deleted, cleared, or the map is closed.
type Ownership uint8

const (
	// OwnNone stores keys and values as given.
	OwnNone Ownership = 0
	// OwnKeys duplicates keys.
	OwnKeys Ownership = 1 << 0
	// OwnValues duplicates values.
	OwnValues Ownership = 1 << 1
	// OwnBoth duplicates keys and values.
	OwnBoth = OwnKeys | OwnValues
)

func (o Ownership) String() string {
	switch o {
	case OwnNone:
		return "none"
	case OwnKeys:
		return "keys"
	case OwnValues:
		return "values"
	case OwnBoth:
		return "both"
	}
	return "unknown"
}

// Owner duplicates and releases keys or values of type T on behalf of a
// Map. See WithKeyOwner and WithValueOwner.
//
// Dup returns a copy of v that the map owns from then on. An error from Dup
// fails the operation with ErrOutOfMemory. Release is called exactly once
// for every value returned by a successful Dup.
type Owner[T any] interface {
	Dup(v T) (T, error)
	Release(v T)
}

// StringOwner owns strings by copying their contents into a fresh
// allocation, so that the map does not retain memory shared with the
// caller's string (e.g. a substring of a large buffer).
type StringOwner struct{}

// Dup implements Owner.
func (StringOwner) Dup(s string) (string, error) {
	return strings.Clone(s), nil
}

// Release implements Owner.
func (StringOwner) Release(string) {}

// BytesOwner owns byte slices by copying them. A nil slice stays nil.
type BytesOwner struct{}

// Dup implements Owner.
func (BytesOwner) Dup(b []byte) ([]byte, error) {
	return bytes.Clone(b), nil
}

// Release implements Owner.
func (BytesOwner) Release([]byte) {}

// Ownership returns which of the keys and values the map owns.
func (m *Map[K, V]) Ownership() Ownership {
	var o Ownership
	if m.keyOwner != nil {
		o |= OwnKeys
	}
	if m.valueOwner != nil {
		o |= OwnValues
	}
	return o
}

func (m *Map[K, V]) owns() bool {
	return m.keyOwner != nil || m.valueOwner != nil
}

// dup duplicates the owned parts of an entry. If the value cannot be
// duplicated the already duplicated key is released again.
func (m *Map[K, V]) dup(key K, value V) (K, V, error) {
	if m.keyOwner != nil {
		k, err := m.keyOwner.Dup(key)
		if err != nil {
			return key, value, outOfMemory("duplicating key", err)
		}
		key = k
	}
	if m.valueOwner != nil {
		v, err := m.valueOwner.Dup(value)
		if err != nil {
			if m.keyOwner != nil {
				m.keyOwner.Release(key)
			}
			return key, value, outOfMemory("duplicating value", err)
		}
		value = v
	}
	return key, value, nil
}

// release releases the owned parts of the entry in slot s.
func (m *Map[K, V]) release(s *Slot[K, V]) {
	if m.keyOwner != nil {
		m.keyOwner.Release(s.key)
	}
	if m.valueOwner != nil {
		m.valueOwner.Release(s.value)
	}
}
