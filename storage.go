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

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Link is a node of the insertion order list. A Map keeps one Link per slot
// and the links refer to each other by slot index, so the list survives
// reallocation of the backing arrays without fixups.
type Link struct {
	prev int32
	next int32
}

// noSlot is the index used for an absent list node.
const noSlot int32 = -1

// Allocator specifies an interface for allocating and releasing the memory
// used by a growable Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// Any Alloc method may return an error, in which case the operation that
// required the memory fails with ErrOutOfMemory and the map is left
// unchanged. If the allocator is manually managing memory then Map.Close
// must be called in order to ensure the Free methods are called.
type Allocator[K comparable, V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) ([]Slot[K, V], error)

	// AllocLinks should return a slice equivalent to make([]Link, n).
	AllocLinks(n int) ([]Link, error)

	// AllocBitmap should return a slice equivalent to make([]uint64, n).
	AllocBitmap(n int) ([]uint64, error)

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocSlots.
	FreeSlots(v []Slot[K, V])

	// FreeLinks can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocLinks.
	FreeLinks(v []Link)

	// FreeBitmap can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBitmap.
	FreeBitmap(v []uint64)
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) AllocLinks(n int) ([]Link, error) {
	return make([]Link, n), nil
}

func (defaultAllocator[K, V]) AllocBitmap(n int) ([]uint64, error) {
	return make([]uint64, n), nil
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

func (defaultAllocator[K, V]) FreeLinks(v []Link) {
}

func (defaultAllocator[K, V]) FreeBitmap(v []uint64) {
}

// Buffer is caller owned storage for a fixed capacity Map. A Buffer is bound
// to at most one open Map at a time; closing the map makes the buffer
// available again. A map built on a Buffer never allocates.
type Buffer[K comparable, V any] struct {
	storage[K, V]
	capacity int
	bound    bool
}

// NewBuffer returns storage for a fixed capacity map holding at most
// capacity entries.
func NewBuffer[K comparable, V any](capacity int) *Buffer[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[K, V]{
		storage: storage[K, V]{
			slots:  make([]Slot[K, V], capacity),
			links:  make([]Link, capacity),
			bitmap: make([]uint64, bitmapWords(capacity)),
		},
		capacity: capacity,
	}
}

// Cap returns the number of slots in the buffer.
func (b *Buffer[K, V]) Cap() int {
	return b.capacity
}

// storage is the set of parallel arrays backing a map: slots, the order
// list links, and the occupancy bitmap with one bit per slot.
type storage[K comparable, V any] struct {
	slots  []Slot[K, V]
	links  []Link
	bitmap []uint64
}

func bitmapWords(n int) int {
	return (n + 63) / 64
}

// allocStorage allocates storage for n slots. On failure anything already
// allocated is returned to the allocator.
func allocStorage[K comparable, V any](a Allocator[K, V], n int) (storage[K, V], error) {
	slots, err := a.AllocSlots(n)
	if err != nil {
		return storage[K, V]{}, err
	}
	links, err := a.AllocLinks(n)
	if err != nil {
		a.FreeSlots(slots)
		return storage[K, V]{}, err
	}
	bitmap, err := a.AllocBitmap(bitmapWords(n))
	if err != nil {
		a.FreeSlots(slots)
		a.FreeLinks(links)
		return storage[K, V]{}, err
	}
	clear(bitmap)
	return storage[K, V]{slots: slots, links: links, bitmap: bitmap}, nil
}

func (s *storage[K, V]) free(a Allocator[K, V]) {
	a.FreeSlots(s.slots)
	a.FreeLinks(s.links)
	a.FreeBitmap(s.bitmap)
	*s = storage[K, V]{}
}

func (s *storage[K, V]) occupied(i int) bool {
	return s.bitmap[i>>6]&(1<<(uint(i)&63)) != 0
}

func (s *storage[K, V]) setOccupied(i int) {
	s.bitmap[i>>6] |= 1 << (uint(i) & 63)
}

func (s *storage[K, V]) clearOccupied(i int) {
	s.bitmap[i>>6] &^= 1 << (uint(i) & 63)
}

// appendLink links slot i at the tail of the list starting at head and
// returns the new head.
func (s *storage[K, V]) appendLink(head int32, i int32) int32 {
	if head == noSlot {
		s.links[i] = Link{prev: i, next: i}
		return i
	}
	tail := s.links[head].prev
	s.links[i] = Link{prev: tail, next: head}
	s.links[tail].next = i
	s.links[head].prev = i
	return head
}

// unlink removes slot i from the list starting at head and returns the new
// head, which is noSlot if i was the only entry.
func (s *storage[K, V]) unlink(head int32, i int32) int32 {
	l := s.links[i]
	if l.next == i {
		return noSlot
	}
	s.links[l.prev].next = l.next
	s.links[l.next].prev = l.prev
	if head == i {
		head = l.next
	}
	return head
}

// moveLink transfers the list position of slot from to slot to, leaving the
// order of the list unchanged, and returns the new head.
func (s *storage[K, V]) moveLink(head int32, from, to int32) int32 {
	l := s.links[from]
	if l.next == from {
		s.links[to] = Link{prev: to, next: to}
	} else {
		s.links[to] = l
		s.links[l.prev].next = to
		s.links[l.next].prev = to
	}
	if head == from {
		head = to
	}
	return head
}
