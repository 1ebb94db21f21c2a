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
	"testing"

	"github.com/stretchr/testify/require"
)

type countingAllocator[K comparable, V any] struct {
	slots, links, bitmaps          int
	freeSlots, freeLinks, freeBits int
	// fail, if set, is consulted before every allocation.
	fail func(kind string) error
}

func (a *countingAllocator[K, V]) check(kind string) error {
	if a.fail != nil {
		return a.fail(kind)
	}
	return nil
}

func (a *countingAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	if err := a.check("slots"); err != nil {
		return nil, err
	}
	a.slots++
	return make([]Slot[K, V], n), nil
}

func (a *countingAllocator[K, V]) AllocLinks(n int) ([]Link, error) {
	if err := a.check("links"); err != nil {
		return nil, err
	}
	a.links++
	return make([]Link, n), nil
}

func (a *countingAllocator[K, V]) AllocBitmap(n int) ([]uint64, error) {
	if err := a.check("bitmap"); err != nil {
		return nil, err
	}
	a.bitmaps++
	// Hand out dirty memory to make sure the map clears it.
	v := make([]uint64, n)
	for i := range v {
		v[i] = ^uint64(0)
	}
	return v, nil
}

func (a *countingAllocator[K, V]) FreeSlots(_ []Slot[K, V]) {
	a.freeSlots++
}

func (a *countingAllocator[K, V]) FreeLinks(_ []Link) {
	a.freeLinks++
}

func (a *countingAllocator[K, V]) FreeBitmap(_ []uint64) {
	a.freeBits++
}

func TestAllocator(t *testing.T) {
	a := &countingAllocator[int, int]{}
	m := mustNew[int, int](t, 4, WithAllocator[int, int](a))

	for i := 0; i < 100; i++ {
		_, err := m.Put(i, i)
		require.NoError(t, err)
	}

	// 4 -> 6 -> 9 -> 13 -> 19 -> 28 -> 42 -> 63 -> 94 -> 141
	const expected = 10
	require.EqualValues(t, 141, m.Cap())
	require.EqualValues(t, expected, a.slots)
	require.EqualValues(t, expected, a.links)
	require.EqualValues(t, expected, a.bitmaps)
	require.EqualValues(t, expected-1, a.freeSlots)
	require.EqualValues(t, expected-1, a.freeLinks)
	require.EqualValues(t, expected-1, a.freeBits)

	m.Close()

	require.EqualValues(t, expected, a.freeSlots)
	require.EqualValues(t, expected, a.freeLinks)
	require.EqualValues(t, expected, a.freeBits)
}

func TestAllocatorFailure(t *testing.T) {
	errNoMemory := errors.New("no memory")

	for _, kind := range []string{"slots", "links", "bitmap"} {
		t.Run(kind, func(t *testing.T) {
			a := &countingAllocator[int, int]{}
			m := mustNew[int, int](t, 4, WithAllocator[int, int](a))
			for i := 0; i < 3; i++ {
				_, err := m.Put(i, i)
				require.NoError(t, err)
			}

			a.fail = func(k string) error {
				if k == kind {
					return errNoMemory
				}
				return nil
			}
			_, err := m.Put(3, 3)
			require.ErrorIs(t, err, ErrOutOfMemory)
			require.ErrorIs(t, err, errNoMemory)

			// The map is unchanged and every successful allocation of the
			// failed growth was freed.
			require.EqualValues(t, 4, m.Cap())
			require.EqualValues(t, 3, m.Len())
			require.Equal(t, []int{0, 1, 2}, m.keys())
			require.NoError(t, m.verify())
			require.Equal(t, a.slots-1, a.freeSlots)
			require.Equal(t, a.links-1, a.freeLinks)
			require.Equal(t, a.bitmaps-1, a.freeBits)

			a.fail = nil
			_, err = m.Put(3, 3)
			require.NoError(t, err)
			require.EqualValues(t, 6, m.Cap())
			require.Equal(t, []int{0, 1, 2, 3}, m.keys())
		})
	}

	t.Run("new", func(t *testing.T) {
		a := &countingAllocator[int, int]{
			fail: func(string) error { return errNoMemory },
		}
		_, err := New[int, int](4, WithAllocator[int, int](a))
		require.ErrorIs(t, err, ErrOutOfMemory)

		requirePanicsWithErrorIs(t, ErrOutOfMemory, func() {
			_, _ = New[int, int](4, WithAllocator[int, int](a), WithFailFast[int, int]())
		})
	})
}

func TestLinks(t *testing.T) {
	s := storage[int, int]{links: make([]Link, 4)}
	order := func(head int32) []int32 {
		var r []int32
		if head == noSlot {
			return r
		}
		for i := head; ; {
			r = append(r, i)
			if i = s.links[i].next; i == head {
				return r
			}
		}
	}

	head := noSlot
	head = s.appendLink(head, 2)
	head = s.appendLink(head, 0)
	head = s.appendLink(head, 3)
	require.Equal(t, []int32{2, 0, 3}, order(head))

	// Moving a node changes the slot it refers to, not its position.
	head = s.moveLink(head, 2, 1)
	require.Equal(t, []int32{1, 0, 3}, order(head))
	head = s.moveLink(head, 0, 2)
	require.Equal(t, []int32{1, 2, 3}, order(head))

	head = s.unlink(head, 1)
	require.Equal(t, []int32{2, 3}, order(head))
	head = s.unlink(head, 3)
	require.Equal(t, []int32{2}, order(head))
	head = s.moveLink(head, 2, 0)
	require.Equal(t, []int32{0}, order(head))
	head = s.unlink(head, 0)
	require.Equal(t, noSlot, head)
}

func TestBitmap(t *testing.T) {
	buf := NewBuffer[int, int](130)
	require.Len(t, buf.bitmap, 3)
	s := &buf.storage
	for _, i := range []int{0, 63, 64, 129} {
		require.False(t, s.occupied(i))
		s.setOccupied(i)
		require.True(t, s.occupied(i))
	}
	require.False(t, s.occupied(1))
	require.False(t, s.occupied(128))
	s.clearOccupied(64)
	require.False(t, s.occupied(64))
	require.True(t, s.occupied(63))
}
