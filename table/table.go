//  Copyright (c) 2023 Uber Technologies, Inc.
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

// Package table implements the generic, dependency-tracking fact table that every environment
// layer is built on. A Table memoizes the value computed for each key and, every time a value is
// read on behalf of some unit of work, records that unit of work as a dependent of the key -- so
// that later, when a key's value changes, the Table can report exactly which units of work need
// to be redone.
package table

import (
	"sync"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/increcheck/depkey"
)

// CacheMode controls whether a Table retains computed values between transactions.
type CacheMode int

const (
	// WithCache retains every computed value until it is explicitly staged for
	// invalidation -- the normal mode for all but the cheapest layers.
	WithCache CacheMode = iota
	// NoCache recomputes the value on every Get and never retains it. Dependency edges are
	// still recorded. This is appropriate for layers so cheap to recompute that caching them
	// is not worth the bookkeeping (e.g. a layer that is a pure, already-memoized projection
	// of another Table).
	NoCache
)

// EqualFunc reports whether two values of a Table are equivalent for cut-off purposes: if a
// recomputed value is Equal to the value it replaces, dependents of that key are not triggered.
type EqualFunc[V any] func(a, b V) bool

// DefaultEqual compares values structurally with cmp.Equal, used when a layer does not supply a
// cheaper equality check of its own.
func DefaultEqual[V any]() EqualFunc[V] {
	return func(a, b V) bool { return cmp.Equal(a, b) }
}

// Table is a generic, dependency-tracked, memoized mapping from keys to values.
type Table[K comparable, V any] struct {
	mu         sync.RWMutex
	mode       CacheMode
	equal      EqualFunc[V]
	values     map[K]V
	dependents map[K]map[depkey.Handle]struct{}
}

// New creates an empty Table. If equal is nil, DefaultEqual[V]() is used.
func New[K comparable, V any](mode CacheMode, equal EqualFunc[V]) *Table[K, V] {
	if equal == nil {
		equal = DefaultEqual[V]()
	}
	return &Table[K, V]{
		mode:       mode,
		equal:      equal,
		values:     make(map[K]V),
		dependents: make(map[K]map[depkey.Handle]struct{}),
	}
}

// Get returns the value for key, computing it with compute if it is not already cached (or if the
// Table is in NoCache mode). If ctx carries a current dependency handle, that handle is recorded
// as a dependent of key regardless of whether the value was cached or freshly computed.
func (t *Table[K, V]) Get(ctx depkey.Context, key K, compute func() (V, error)) (V, error) {
	if ctx.HasCurrent() {
		t.recordDependent(key, ctx.Current)
	}

	if t.mode == WithCache {
		t.mu.RLock()
		v, ok := t.values[key]
		t.mu.RUnlock()
		if ok {
			return v, nil
		}
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	if t.mode == WithCache {
		t.mu.Lock()
		t.values[key] = v
		t.mu.Unlock()
	}
	return v, nil
}

// Peek returns the currently-cached value for key without computing it and without recording any
// dependency edge. It is used by transaction diffing and by tests.
func (t *Table[K, V]) Peek(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// Set directly stores value for key, as used by a layer's eager (non-lazy) Update when it
// recomputes a key up front rather than waiting for the next Get. It does not record any
// dependency edge -- Set is not itself a read.
func (t *Table[K, V]) Set(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

// Delete removes key's cached value, if any.
func (t *Table[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, key)
}

// Dependents returns the set of handles recorded as dependents of key.
func (t *Table[K, V]) Dependents(key K) []depkey.Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dependentsLocked(key)
}

func (t *Table[K, V]) dependentsLocked(key K) []depkey.Handle {
	set := t.dependents[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]depkey.Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

func (t *Table[K, V]) recordDependent(key K, h depkey.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dependents[key]
	if !ok {
		set = make(map[depkey.Handle]struct{})
		t.dependents[key] = set
	}
	set[h] = struct{}{}
}

// Len reports the number of cached values currently held. In NoCache mode Get stores nothing, so
// only values written through Set are counted.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// DependentsSnapshot returns the full key -> dependents graph, for persistence. It deliberately
// carries no values: the dependency edges are small, recomputation-cheap bookkeeping, while the
// values map is the large shared-memory table a store/load cycle never persists, reconstituted
// instead by a separate repopulation step.
func (t *Table[K, V]) DependentsSnapshot() map[K][]depkey.Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[K][]depkey.Handle, len(t.dependents))
	for key := range t.dependents {
		out[key] = t.dependentsLocked(key)
	}
	return out
}

// RestoreDependents replaces t's dependency graph with snapshot (as produced by an earlier
// DependentsSnapshot) and clears its value cache, leaving it to be repopulated lazily on next Get.
func (t *Table[K, V]) RestoreDependents(snapshot map[K][]depkey.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values = make(map[K]V)
	t.dependents = make(map[K]map[depkey.Handle]struct{}, len(snapshot))
	for key, handles := range snapshot {
		set := make(map[depkey.Handle]struct{}, len(handles))
		for _, h := range handles {
			set[h] = struct{}{}
		}
		t.dependents[key] = set
	}
}
