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

package linmap_test

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/linmap"
)

func Example() {
	m, err := linmap.New[string, string](4)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	_, _ = m.Put("hello", "world")
	_, _ = m.Put("good bye", "universe")
	_, _ = m.Put("hello", "there")

	m.All(func(k, v string) bool {
		fmt.Printf("%q: %q\n", k, v)
		return true
	})
	// Output:
	// "hello": "there"
	// "good bye": "universe"
}

func ExampleNewFixed() {
	buf := linmap.NewBuffer[int, int](4)
	m, err := linmap.NewFixed(buf)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	for i := 0; i < 5; i++ {
		if _, err := m.Put(i, i*i); errors.Is(err, linmap.ErrFull) {
			fmt.Printf("put %d: full\n", i)
		}
	}
	m.Delete(0)
	_, _ = m.Put(4, 16)

	m.All(func(k, v int) bool {
		fmt.Println(k, v)
		return true
	})
	// Output:
	// put 4: full
	// 1 1
	// 2 4
	// 3 9
	// 4 16
}

func ExampleIterator() {
	m, err := linmap.New[int, string](4)
	if err != nil {
		panic(err)
	}
	for i, s := range []string{"a", "b", "c"} {
		_, _ = m.Put(i, s)
	}

	it := m.Iterator()
	for {
		k, v, ok, err := it.NextEntry()
		if err != nil || !ok {
			break
		}
		fmt.Println(k, v)
	}

	it = m.Iterator()
	_, _ = m.Put(3, "d")
	_, err = it.HasNext()
	fmt.Println(err)
	// Output:
	// 0 a
	// 1 b
	// 2 c
	// linmap: map modified during iteration
}

func ExampleWithKeyOwner() {
	m, err := linmap.New[string, []byte](4,
		linmap.WithKeyOwner[string, []byte](linmap.StringOwner{}),
		linmap.WithValueOwner[string, []byte](linmap.BytesOwner{}))
	if err != nil {
		panic(err)
	}
	defer m.Close()

	value := []byte("value")
	_, _ = m.Put("key", value)
	value[0] = 'V'

	v, _ := m.Get("key")
	fmt.Println(m.Ownership(), string(v))
	// Output:
	// both value
}
