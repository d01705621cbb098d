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

package trace

// Metadata is a mutable single-owner mapping from string keys to scalar
// wire-compatible values, owned by exactly one Datum. A child span's
// container is seeded with a snapshot of its parent's contents at the moment
// the child opens; after that the two containers are fully independent.
// Metadata branches like a tree but never merges back.
//
// Metadata is intended for single-writer access by the task owning the span
// context and is not safe for concurrent mutation.
type Metadata struct {
	kv map[string]interface{}
}

// NewMetadata returns a fresh empty container.
func NewMetadata() *Metadata {
	return &Metadata{kv: make(map[string]interface{})}
}

// Set stores value under key, overwriting any previous value.
func (m *Metadata) Set(key string, value interface{}) {
	m.kv[key] = value
}

// Get retrieves the value stored under key.
func (m *Metadata) Get(key string) (interface{}, bool) {
	v, ok := m.kv[key]
	return v, ok
}

// Len returns the number of stored keys.
func (m *Metadata) Len() int {
	return len(m.kv)
}

// Snapshot returns an independent copy of the container. Mutations of either
// copy are never visible in the other.
func (m *Metadata) Snapshot() *Metadata {
	s := &Metadata{kv: make(map[string]interface{}, len(m.kv))}
	for k, v := range m.kv {
		s.kv[k] = v
	}
	return s
}

// Fields returns a copy of the mapping, safe for the caller to extend while
// encoding a wire record.
func (m *Metadata) Fields() map[string]interface{} {
	f := make(map[string]interface{}, len(m.kv))
	for k, v := range m.kv {
		f[k] = v
	}
	return f
}
