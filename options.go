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

// Option configures a Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash HashFunc[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// It is required for keys wider than 8 bytes that are not strings. The hash
// must be consistent with the map's equality function.
func WithHash[K comparable, V any](hash HashFunc[K]) Option[K, V] {
	return hashOption[K, V]{hash}
}

type equalOption[K comparable, V any] struct {
	equal func(a, b K) bool
}

func (op equalOption[K, V]) apply(m *Map[K, V]) {
	m.equal = op.equal
}

// WithEqual is an option to specify how keys are compared. The default is
// Go's == operator.
func WithEqual[K comparable, V any](equal func(a, b K) bool) Option[K, V] {
	return equalOption[K, V]{equal}
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
	m.customAllocator = true
}

// WithAllocator is an option for specify the Allocator to use for a
// growable Map[K,V]. It cannot be combined with NewFixed.
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}

type keyOwnerOption[K comparable, V any] struct {
	owner Owner[K]
}

func (op keyOwnerOption[K, V]) apply(m *Map[K, V]) {
	m.keyOwner = op.owner
}

// WithKeyOwner makes the map own its keys using the supplied Owner.
func WithKeyOwner[K comparable, V any](owner Owner[K]) Option[K, V] {
	return keyOwnerOption[K, V]{owner}
}

type valueOwnerOption[K comparable, V any] struct {
	owner Owner[V]
}

func (op valueOwnerOption[K, V]) apply(m *Map[K, V]) {
	m.valueOwner = op.owner
}

// WithValueOwner makes the map own its values using the supplied Owner.
func WithValueOwner[K comparable, V any](owner Owner[V]) Option[K, V] {
	return valueOwnerOption[K, V]{owner}
}

type failFastOption[K comparable, V any] struct{}

func (failFastOption[K, V]) apply(m *Map[K, V]) {
	m.failFast = true
}

// WithFailFast makes the map panic instead of returning ErrOutOfMemory,
// ErrFull, ErrConcurrentModification and ErrClosed. The panic value is the
// error that would otherwise have been returned. Configuration errors are
// always returned.
func WithFailFast[K comparable, V any]() Option[K, V] {
	return failFastOption[K, V]{}
}
