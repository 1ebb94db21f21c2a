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
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/cpu"
)

// HashFunc computes a 64-bit hash of a key. A Map reduces the hash modulo
// its capacity to find the key's home slot, so all 64 bits should be well
// mixed.
type HashFunc[K any] func(key K) uint64

const (
	fnvOffset64 = 0xcbf29ce484222325
	fnvPrime64  = 0x100000001b3
)

// byteOrder is the native byte order, used to pack keys whose width has no
// matching integer load.
var byteOrder binary.ByteOrder = func() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}()

// mix64 is the 64-bit finalizer from MurmurHash3. Every input bit affects
// every output bit, which makes it suitable for turning small integer
// identities into slot indexes.
func mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// StringHash hashes the contents of s using 64-bit FNV-1a. The empty string
// hashes to the FNV offset basis.
func StringHash(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// XXHashString hashes the contents of s using xxHash64. It is faster than
// StringHash for long keys and can be selected with WithHash.
func XXHashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// IdentityHash hashes the bit pattern of a key that is at most 8 bytes wide,
// such as an integer or a pointer. Two keys hash equally iff their bits are
// equal. It panics with ErrConfig for wider keys, which need a hash function
// that covers all of their bytes.
func IdentityHash[K comparable](key K) uint64 {
	if size := unsafe.Sizeof(key); size > 8 {
		panic(fmt.Errorf("%w: IdentityHash of %T, which is %d bytes wide", ErrConfig, key, size))
	}
	return mix64(keyBits(key))
}

// keyBits returns the identity of key packed into a uint64. Widths of 1, 2,
// 4 and 8 bytes are loaded directly; other widths up to 8 bytes are copied
// byte by byte. Callers must not pass wider keys.
func keyBits[K comparable](key K) uint64 {
	p := unsafe.Pointer(&key)
	switch size := unsafe.Sizeof(key); size {
	case 0:
		return 0
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	case 8:
		return *(*uint64)(p)
	default:
		var buf [8]byte
		copy(buf[:], unsafe.Slice((*byte)(p), min(size, 8)))
		return byteOrder.Uint64(buf[:])
	}
}

// defaultHasher returns the hash function used for K when WithHash is not
// specified. Strings are hashed by content. Floats are hashed so that -0 and
// +0, which compare equal, share a hash. Any other key wider than 8 bytes
// has no default.
func defaultHasher[K comparable]() (HashFunc[K], error) {
	var k K
	switch reflect.TypeOf(&k).Elem().Kind() {
	case reflect.String:
		return func(key K) uint64 {
			return StringHash(*(*string)(unsafe.Pointer(&key)))
		}, nil
	case reflect.Float32:
		return func(key K) uint64 {
			f := *(*float32)(unsafe.Pointer(&key))
			if f == 0 {
				f = 0
			}
			return mix64(uint64(math.Float32bits(f)))
		}, nil
	case reflect.Float64:
		return func(key K) uint64 {
			f := *(*float64)(unsafe.Pointer(&key))
			if f == 0 {
				f = 0
			}
			return mix64(math.Float64bits(f))
		}, nil
	}
	if size := unsafe.Sizeof(k); size > 8 {
		return nil, fmt.Errorf("%w: %T keys are %d bytes wide, a hash function must be specified",
			ErrConfig, k, size)
	}
	return IdentityHash[K], nil
}
