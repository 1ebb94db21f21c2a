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

// Iterator walks the entries of a Map in insertion order. An Iterator is
// invalidated by any mutation of the map after its creation, after which
// its methods return ErrConcurrentModification. Overwriting a value with Put
// counts as a mutation.
//
//	it := m.Iterator()
//	for {
//		k, v, ok, err := it.NextEntry()
//		if err != nil || !ok {
//			break
//		}
//		...
//	}
type Iterator[K comparable, V any] struct {
	m    *Map[K, V]
	next int32
	mc   uint64
}

// Iterator returns an iterator positioned at the oldest entry of the map.
func (m *Map[K, V]) Iterator() Iterator[K, V] {
	return Iterator[K, V]{m: m, next: m.head, mc: m.mc}
}

func (it *Iterator[K, V]) check() error {
	if it.m.mc != it.mc {
		return it.m.fail(ErrConcurrentModification)
	}
	return nil
}

// HasNext reports whether a call to Next would return an entry.
func (it *Iterator[K, V]) HasNext() (bool, error) {
	if err := it.check(); err != nil {
		return false, err
	}
	return it.next != noSlot, nil
}

// Next returns the key of the next entry and advances the iterator. It
// returns ok=false once every entry has been returned.
func (it *Iterator[K, V]) Next() (key K, ok bool, err error) {
	key, _, ok, err = it.NextEntry()
	return key, ok, err
}

// NextEntry returns a copy of the key and value of the next entry and
// advances the iterator. It returns ok=false once every entry has been
// returned.
func (it *Iterator[K, V]) NextEntry() (key K, value V, ok bool, err error) {
	if err = it.check(); err != nil {
		return key, value, false, err
	}
	i := it.next
	if i == noSlot {
		return key, value, false, nil
	}
	m := it.m
	if n := m.links[i].next; n != m.head {
		it.next = n
	} else {
		it.next = noSlot
	}
	s := &m.slots[i]
	return s.key, s.value, true, nil
}

// All calls yield sequentially for each key and value present in the map in
// insertion order. If yield returns false, All stops the iteration. The map
// must not be mutated by yield unless it then returns false; otherwise All
// panics with ErrConcurrentModification.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	it := m.Iterator()
	for {
		k, v, ok, err := it.NextEntry()
		if err != nil {
			panic(err)
		}
		if !ok || !yield(k, v) {
			return
		}
	}
}

// Keys calls yield sequentially for each key present in the map in insertion
// order, with the same rules as All.
func (m *Map[K, V]) Keys(yield func(key K) bool) {
	m.All(func(k K, _ V) bool {
		return yield(k)
	})
}
