// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
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

// Package ids generates short opaque identifiers for traces and spans.
package ids

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

const (
	// Length is the number of symbols in a generated identifier.
	Length = 16

	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	mtx sync.Mutex
	rnd = rand.New(rand.NewSource(seed()))
)

// seed draws the initial seed from the OS entropy source, falling back to
// the wall clock if that fails.
func seed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// New returns a 16 character identifier drawn from a 62 symbol alphabet
// (digits, upper and lower case letters). It always succeeds. Uniqueness is
// probabilistic only; callers must not depend on global uniqueness at very
// high throughput.
func New() string {
	var buf [Length]byte
	mtx.Lock()
	for i := range buf {
		buf[i] = alphabet[rnd.Intn(len(alphabet))]
	}
	mtx.Unlock()
	return string(buf[:])
}
