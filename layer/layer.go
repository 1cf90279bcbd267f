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

// Package layer implements the generic environment layer framework every concrete layer
// (parser, unannotated globals, class hierarchy, and so on) is built from. A Layer is a Table
// plus the knowledge of how to recompute any one of its keys -- the Bridge -- and of how to name
// the dependency handle a key's read should be billed to.
package layer

import (
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

// Bridge recomputes the value for a single key of a Layer, given a Context that already has its
// current dependency handle set. Concrete layers are constructed by providing a concrete Bridge
// instance, not by subtyping Layer -- Go has no inheritance, and this keeps each layer's
// recomputation logic a plain, testable value.
type Bridge[K comparable, V any] interface {
	// Recompute produces the value for key. Any Table.Get calls made against upstream layers
	// during Recompute should be passed ctx unchanged so the dependency edge is attributed to
	// the right consumer.
	Recompute(ctx depkey.Context, key K) (V, error)
}

// DescriptorFunc names the dependency handle that should be billed for reading a given key.
type DescriptorFunc[K comparable] func(key K) depkey.Descriptor

// Layer is a named, dependency-tracked, memoized projection of type K -> V, built on one Bridge.
type Layer[K comparable, V any] struct {
	Name       string
	table      *table.Table[K, V]
	bridge     Bridge[K, V]
	registry   *depkey.Registry
	descriptor DescriptorFunc[K]
	scheduler  scheduler.Scheduler
	policy     scheduler.Policy
}

// New creates a Layer named name, backed by a Table in the given cache mode, whose values are
// produced by bridge. descriptor names the dependency handle billed for a read of any given key;
// registry is the shared interning registry for the whole layer stack. s is the Scheduler an eager
// Update parallelizes its recomputation across, chunked per scheduler.LayerRecomputePolicy().
func New[K comparable, V any](
	name string,
	mode table.CacheMode,
	equal table.EqualFunc[V],
	bridge Bridge[K, V],
	registry *depkey.Registry,
	s scheduler.Scheduler,
	descriptor DescriptorFunc[K],
) *Layer[K, V] {
	return &Layer[K, V]{
		Name:       name,
		table:      table.New[K, V](mode, equal),
		bridge:     bridge,
		registry:   registry,
		descriptor: descriptor,
		scheduler:  s,
		policy:     scheduler.LayerRecomputePolicy(),
	}
}

// handleFor interns the dependency handle for reading key.
func (l *Layer[K, V]) handleFor(ctx depkey.Context, key K) depkey.Handle {
	return ctx.Register(l.registry, l.descriptor(key))
}

// Get returns the value for key, recomputing it via the Bridge if necessary, and records ctx's
// current consumer (if any) as a dependent of key. The Context passed to the Bridge has its
// current handle set to key's own handle, so that anything the Bridge reads is correctly
// attributed to key rather than to ctx's original caller.
func (l *Layer[K, V]) Get(ctx depkey.Context, key K) (V, error) {
	inner := ctx.WithCurrent(l.handleFor(ctx, key))
	return l.table.Get(ctx, key, func() (V, error) {
		return l.bridge.Recompute(inner, key)
	})
}

// Peek returns the currently-cached value for key, without recomputing it or recording a
// dependency edge. Used by persistence and diagnostics.
func (l *Layer[K, V]) Peek(key K) (V, bool) {
	return l.table.Peek(key)
}

// Table exposes the underlying Table, for layers (like the Stack) that need to open transactions
// directly.
func (l *Layer[K, V]) Table() *table.Table[K, V] {
	return l.table
}

// Registry exposes the shared dependency registry.
func (l *Layer[K, V]) Registry() *depkey.Registry {
	return l.registry
}
