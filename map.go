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

// Package linmap implements an insertion ordered hash map using open
// addressing with linear probing and tombstone-free deletion.
//
// # Layout
//
// A Map is backed by parallel arrays of capacity c: the slots holding keys
// and values, an occupancy bitmap with one bit per slot, and one Link per
// slot. The links thread the occupied slots into a circular doubly linked
// list in insertion order. Links are slot indexes rather than pointers, so
// the slot array doubles as the arena for the list and no per-entry
// allocation is performed.
//
// A Map is either growable (New), allocating its arrays through an
// Allocator, or fixed (NewFixed), bound to a caller owned Buffer that it
// never outgrows.
//
// # Probing
//
// The home slot of a key is hash(key) % c. Lookups scan linearly from the
// home slot while slots are occupied, stopping at the first empty slot or
// when the scan wraps back around to the home slot. The map maintains the
// invariant that every slot on the path from an entry's home slot to the
// entry itself is occupied, so an empty slot proves the key is absent.
//
// # Growth
//
// A growable map grows by a factor of 3/2 before an insertion would exceed a
// load factor of 3/4. Growth walks the order list, not the slot array, and
// reinserts every entry into the new arrays, appending it to a fresh order
// list. The iteration order is thus preserved while slot indexes change.
//
// # Deletion
//
// Deletion does not leave tombstones. Removing an entry opens a gap at slot
// i, which may now hide later entries from lookups. The probe chain after
// the gap is scanned until the next empty slot: an entry at slot x with home
// slot h can be moved back into the gap iff h does not lie in the cyclic
// interval (i, x], i.e. iff slot i is on the entry's own probe path before
// x. After a move the vacated slot x becomes the gap. A moved entry keeps
// its position in the order list; only the slot the list node refers to
// changes.
//
//	before Delete(b)          after
//	  h(a)=1 h(b)=1 h(c)=2
//	  [1]=a  [2]=b  [3]=c      [1]=a  [2]=c  [3]=empty
//
// # Iteration
//
// Iterators walk the order list and capture the map's modification count.
// Any Put, effective Delete, Clear or Close invalidates outstanding
// iterators, which then report ErrConcurrentModification.
package linmap

import (
	"fmt"
	"math"
	"strings"
)

const (
	debug = false

	// minCapacity is the smallest capacity accepted by New and NewFixed.
	minCapacity = 4
	// maxCapacity keeps slot indexes representable in a Link.
	maxCapacity = math.MaxInt32
)

// PutResult reports whether Put inserted a new entry or updated an existing
// one.
type PutResult int8

const (
	// Inserted means the key was not present and has been appended to the
	// iteration order.
	Inserted PutResult = iota + 1
	// Updated means the key was present and its value was overwritten in
	// place, keeping its position in the iteration order.
	Updated
)

func (r PutResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}
	return fmt.Sprintf("PutResult(%d)", int8(r))
}

// Map is an insertion ordered map from keys to values with Put, Get, Delete,
// and ordered iteration. By default strings are hashed by content and keys of
// at most 8 bytes by their bit pattern; other key types need WithHash.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	storage[K, V]
	hash       HashFunc[K]
	equal      func(a, b K) bool
	allocator  Allocator[K, V]
	keyOwner   Owner[K]
	valueOwner Owner[V]
	// fixed is the caller's buffer for a fixed capacity map, nil for a
	// growable map.
	fixed *Buffer[K, V]
	// The total number of slots. Zero once the map has been closed.
	capacity int
	// The number of occupied slots.
	used int
	// head is the slot of the oldest entry, or noSlot if the map is empty.
	head int32
	// mc is incremented by every mutation and checked by iterators.
	mc              uint64
	failFast        bool
	customAllocator bool
}

// New constructs a growable map with room for initialCapacity slots, which
// must be at least 4. The map grows as needed on Put.
func New[K comparable, V any](initialCapacity int, options ...Option[K, V]) (*Map[K, V], error) {
	if initialCapacity < minCapacity || initialCapacity > maxCapacity {
		return nil, fmt.Errorf("%w: capacity %d out of range [%d, %d]",
			ErrConfig, initialCapacity, minCapacity, maxCapacity)
	}
	m := &Map[K, V]{
		allocator: defaultAllocator[K, V]{},
		head:      noSlot,
	}
	if err := m.configure(options); err != nil {
		return nil, err
	}
	if m.allocator == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrConfig)
	}
	s, err := allocStorage(m.allocator, initialCapacity)
	if err != nil {
		return nil, m.fail(outOfMemory("allocating map", err))
	}
	m.storage = s
	m.capacity = initialCapacity
	m.checkInvariants()
	return m, nil
}

// NewFixed constructs a fixed capacity map backed by buf. The map never
// allocates and Put returns ErrFull once no slot is left. The buffer must
// have at least 4 slots and must not be in use by another open map.
func NewFixed[K comparable, V any](buf *Buffer[K, V], options ...Option[K, V]) (*Map[K, V], error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", ErrConfig)
	}
	if buf.capacity < minCapacity || buf.capacity > maxCapacity {
		return nil, fmt.Errorf("%w: capacity %d out of range [%d, %d]",
			ErrConfig, buf.capacity, minCapacity, maxCapacity)
	}
	if buf.bound {
		return nil, fmt.Errorf("%w: buffer is in use by another map", ErrConfig)
	}
	m := &Map[K, V]{head: noSlot}
	if err := m.configure(options); err != nil {
		return nil, err
	}
	if m.customAllocator {
		return nil, fmt.Errorf("%w: an allocator cannot be used with a fixed buffer", ErrConfig)
	}
	clear(buf.slots)
	clear(buf.bitmap)
	buf.bound = true
	m.fixed = buf
	m.storage = buf.storage
	m.capacity = buf.capacity
	m.checkInvariants()
	return m, nil
}

func (m *Map[K, V]) configure(options []Option[K, V]) error {
	for _, op := range options {
		op.apply(m)
	}
	if m.hash == nil {
		h, err := defaultHasher[K]()
		if err != nil {
			return err
		}
		m.hash = h
	}
	return nil
}

// Close releases every owned key and value and returns the map's storage to
// its allocator; a fixed map releases its Buffer for reuse. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	if m.capacity == 0 {
		return
	}
	m.Clear()
	if m.fixed != nil {
		m.fixed.bound = false
		m.fixed = nil
		m.storage = storage[K, V]{}
	} else {
		m.storage.free(m.allocator)
	}
	m.capacity = 0
	m.mc++
}

// Clear deletes all entries, releasing the owned ones. The capacity of the
// map is retained.
func (m *Map[K, V]) Clear() {
	if m.capacity == 0 {
		return
	}
	if m.owns() && m.head != noSlot {
		i := m.head
		for {
			m.release(&m.slots[i])
			i = m.links[i].next
			if i == m.head {
				break
			}
		}
	}
	clear(m.slots)
	clear(m.bitmap)
	m.used = 0
	m.head = noSlot
	m.mc++
	m.checkInvariants()
}

// Put inserts an entry into the map, overwriting the value of an existing
// entry with an equal key. An overwrite keeps the entry's position in the
// iteration order.
//
// Put fails with ErrFull if a fixed map has no room for a new key, and with
// ErrOutOfMemory if growing the map or duplicating an owned key or value
// fails. A failed Put leaves the map unchanged.
func (m *Map[K, V]) Put(key K, value V) (PutResult, error) {
	if m.capacity == 0 {
		return 0, m.fail(ErrClosed)
	}

	var i int
	var found bool
	if m.fixed != nil {
		if i, found = m.find(key); i < 0 {
			if debug {
				fmt.Printf("put(%v): full capacity=%d\n", key, m.capacity)
			}
			return 0, m.fail(fmt.Errorf("%w: capacity %d", ErrFull, m.capacity))
		}
	}
	k, v, err := m.dup(key, value)
	if err != nil {
		return 0, m.fail(err)
	}
	if m.fixed == nil {
		if m.used >= m.capacity*3/4 {
			if err := m.grow(); err != nil {
				m.release(&Slot[K, V]{key: k, value: v})
				return 0, m.fail(err)
			}
		}
		// A growable map always has an empty slot after the load check.
		i, found = m.find(key)
	}

	s := &m.slots[i]
	m.mc++
	if found {
		if debug {
			fmt.Printf("put(updating): index=%d key=%v\n", i, key)
		}
		m.release(s)
		s.key, s.value = k, v
		m.checkInvariants()
		return Updated, nil
	}

	if debug {
		fmt.Printf("put(inserting): index=%d key=%v used=%d\n", i, key, m.used+1)
	}
	s.key, s.value = k, v
	m.setOccupied(i)
	m.head = m.appendLink(m.head, int32(i))
	m.used++
	m.checkInvariants()
	return Inserted, nil
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if m.capacity == 0 {
		return value, false
	}
	if i, found := m.find(key); found {
		return m.slots[i].value, true
	}
	return value, false
}

// GetPtr returns a pointer to the value stored for key, or nil if the key is
// not present. The pointer is only valid until the next Put, Delete, Clear
// or Close on the map, any of which may move or release the entry.
func (m *Map[K, V]) GetPtr(key K) *V {
	if m.capacity == 0 {
		return nil
	}
	if i, found := m.find(key); found {
		return &m.slots[i].value
	}
	return nil
}

// Delete deletes the entry corresponding to the specified key from the map
// and reports whether it was present. It is a noop to delete a non-existent
// key.
func (m *Map[K, V]) Delete(key K) bool {
	if m.capacity == 0 {
		return false
	}
	i, found := m.find(key)
	if !found {
		return false
	}
	if debug {
		fmt.Printf("delete(%v): index=%d used=%d\n", key, i, m.used-1)
	}
	m.release(&m.slots[i])
	m.slots[i] = Slot[K, V]{}
	m.clearOccupied(i)
	m.head = m.unlink(m.head, int32(i))
	m.backshift(i)
	m.used--
	m.mc++
	m.checkInvariants()
	return true
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Cap returns the number of slots in the map.
func (m *Map[K, V]) Cap() int {
	return m.capacity
}

// home returns the home slot of key.
func (m *Map[K, V]) home(key K) int {
	return int(m.hash(key) % uint64(m.capacity))
}

// next returns the slot after i, wrapping at the end of the slot array.
func (m *Map[K, V]) next(i int) int {
	if i++; i == m.capacity {
		return 0
	}
	return i
}

// distance returns the number of linear probe steps from slot i to slot j.
func (m *Map[K, V]) distance(i, j int) int {
	if d := j - i; d >= 0 {
		return d
	}
	return j - i + m.capacity
}

func (m *Map[K, V]) eq(a, b K) bool {
	if m.equal != nil {
		return m.equal(a, b)
	}
	return a == b
}

// find returns the slot holding key and found=true, or the first empty slot
// on the key's probe path and found=false. If the probe wraps around a map
// with no empty slot, find returns -1.
func (m *Map[K, V]) find(key K) (i int, found bool) {
	h := m.home(key)
	for i = h; m.occupied(i); {
		if m.eq(m.slots[i].key, key) {
			return i, true
		}
		if i = m.next(i); i == h {
			return -1, false
		}
	}
	return i, false
}

// grow reallocates the map with 3/2 of its capacity. The entries are
// reinserted in iteration order so that the new order list matches the old
// one. On failure the map is left untouched.
func (m *Map[K, V]) grow() error {
	newCapacity := m.capacity * 3 / 2
	if newCapacity <= m.capacity || newCapacity > maxCapacity {
		return fmt.Errorf("%w: capacity %d cannot grow", ErrOutOfMemory, m.capacity)
	}
	s, err := allocStorage(m.allocator, newCapacity)
	if err != nil {
		return outOfMemory("growing map", err)
	}
	if debug {
		fmt.Printf("grow: capacity=%d->%d used=%d\n", m.capacity, newCapacity, m.used)
	}

	head := noSlot
	if m.head != noSlot {
		i := m.head
		for {
			slot := &m.slots[i]
			j := int(m.hash(slot.key) % uint64(newCapacity))
			// The new arrays have more slots than entries, so an empty one
			// is always found.
			for s.occupied(j) {
				if j++; j == newCapacity {
					j = 0
				}
			}
			s.slots[j] = *slot
			s.setOccupied(j)
			head = s.appendLink(head, int32(j))
			i = m.links[i].next
			if i == m.head {
				break
			}
		}
	}

	m.storage.free(m.allocator)
	m.storage = s
	m.capacity = newCapacity
	m.head = head
	// Slot indices held by iterators refer to the old arrays.
	m.mc++
	m.checkInvariants()
	return nil
}

// backshift closes the gap left by deleting slot gap. Each entry in the probe
// chain following the gap moves back into it when the gap lies on the
// entry's probe path, after which the entry's old slot is the new gap. The
// scan ends at the first empty slot, which exists because the gap is empty.
func (m *Map[K, V]) backshift(gap int) {
	for x := m.next(gap); m.occupied(x); x = m.next(x) {
		h := m.home(m.slots[x].key)
		// The entry at x cannot move if its home slot lies in (gap, x]: the
		// gap precedes its home and lookups for it never visit the gap.
		if d := m.distance(gap, h); d > 0 && d <= m.distance(gap, x) {
			continue
		}
		if debug {
			fmt.Printf("delete(shifting): %d -> %d key=%v home=%d\n", x, gap, m.slots[x].key, h)
		}
		m.slots[gap] = m.slots[x]
		m.slots[x] = Slot[K, V]{}
		m.setOccupied(gap)
		m.clearOccupied(x)
		m.head = m.moveLink(m.head, int32(x), int32(gap))
		gap = x
	}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if err := m.verify(); err != nil {
			panic(err)
		}
	}
}

// verify checks the map's structural invariants, returning an error that
// describes the first violation found.
func (m *Map[K, V]) verify() error {
	if m.capacity == 0 {
		if m.used != 0 || m.head != noSlot {
			return fmt.Errorf("invariant failed: closed map has used=%d head=%d", m.used, m.head)
		}
		return nil
	}
	if m.used > m.capacity {
		return fmt.Errorf("invariant failed: used %d exceeds capacity %d", m.used, m.capacity)
	}

	// Every occupied slot must be reachable from its home slot without
	// crossing an empty slot.
	var occupied int
	for i := 0; i < m.capacity; i++ {
		if !m.occupied(i) {
			continue
		}
		occupied++
		h := m.home(m.slots[i].key)
		for j := h; j != i; j = m.next(j) {
			if !m.occupied(j) {
				return fmt.Errorf("invariant failed: slot(%d): %v [home=%d] is hidden by empty slot %d\n%s",
					i, m.slots[i].key, h, j, m.debugString())
			}
		}
	}
	if occupied != m.used {
		return fmt.Errorf("invariant failed: found %d occupied slots, but used count is %d\n%s",
			occupied, m.used, m.debugString())
	}

	// The order list must visit every occupied slot exactly once.
	var listed int
	if m.head != noSlot {
		visited := make([]bool, m.capacity)
		i := m.head
		for {
			switch {
			case i < 0 || int(i) >= m.capacity:
				return fmt.Errorf("invariant failed: list refers to slot %d\n%s", i, m.debugString())
			case !m.occupied(int(i)):
				return fmt.Errorf("invariant failed: list refers to empty slot %d\n%s", i, m.debugString())
			case visited[i]:
				return fmt.Errorf("invariant failed: list visits slot %d twice\n%s", i, m.debugString())
			case m.links[m.links[i].next].prev != i:
				return fmt.Errorf("invariant failed: slot %d: next.prev != self\n%s", i, m.debugString())
			}
			visited[i] = true
			listed++
			i = m.links[i].next
			if i == m.head {
				break
			}
		}
	}
	if listed != m.used {
		return fmt.Errorf("invariant failed: list has %d entries, but used count is %d\n%s",
			listed, m.used, m.debugString())
	}
	return nil
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  head=%d  mc=%d\n", m.capacity, m.used, m.head, m.mc)
	for i := 0; i < m.capacity; i++ {
		if !m.occupied(i) {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		s := &m.slots[i]
		l := m.links[i]
		fmt.Fprintf(&buf, "  %4d: %v [home=%d prev=%d next=%d]\n", i, s.key, m.home(s.key), l.prev, l.next)
	}
	return buf.String()
}
