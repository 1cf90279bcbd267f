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

package layer

import (
	"context"

	"go.uber.org/increcheck/depkey"
)

// UpdateResult describes the outcome of invalidating a batch of keys in one Layer: the keys that
// were touched, and the dependency handles that turned out to have been triggered by that
// invalidation (i.e. whose recorded dependents must themselves be recomputed).
type UpdateResult[K comparable] struct {
	Layer     string
	Keys      []K
	Triggered []depkey.Handle
}

// Chain is the accumulated result of running Update across a sequence of layers, in the order the
// layers were updated. A driver folds a Chain into the next layer's invalidation keys by
// resolving each Triggered handle back to the key(s) it names.
type Chain[K comparable] []UpdateResult[K]

// AllTriggered returns the deduplicated union of every handle triggered across the chain.
func (c Chain[K]) AllTriggered() []depkey.Handle {
	seen := make(map[depkey.Handle]struct{})
	var out []depkey.Handle
	for _, r := range c {
		for _, h := range r.Triggered {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// Step is a single layer's contribution to a heterogeneous chain of updates across layers whose
// Key types differ (e.g. a string-keyed parser layer followed by GlobalKey-keyed layers above
// it). Only the triggered handles -- not the concrete keys -- need to cross that boundary, since
// the next layer up resolves handles back to its own keys via its own filter function.
type Step struct {
	Layer     string
	Triggered []depkey.Handle
}

// StepChain is the accumulated, per-layer triggered-handle history across a heterogeneous stack,
// bottom layer first -- the "UpdateResult chain" read by the recheck driver.
type StepChain []Step

// AllTriggered returns the deduplicated union of every handle triggered across the chain.
func (c StepChain) AllTriggered() []depkey.Handle {
	seen := make(map[depkey.Handle]struct{})
	var out []depkey.Handle
	for _, s := range c {
		for _, h := range s.Triggered {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// Step converts this layer's UpdateResult into a Step for appending to a StepChain.
func (r UpdateResult[K]) Step() Step { return Step{Layer: r.Layer, Triggered: r.Triggered} }

// UpdateFromUpstream resolves each handle in triggered back to its Descriptor via registry, keeps
// those for which filter reports a match, deduplicates the resulting keys (first Descriptor for a
// given key wins, matching the "on duplicate triggers, keep the first" rule), and invalidates
// exactly that key set via Update.
func (l *Layer[K, V]) UpdateFromUpstream(
	triggered []depkey.Handle,
	filter func(depkey.Descriptor) (K, bool),
	lazy bool,
) (UpdateResult[K], error) {
	seen := make(map[K]struct{})
	var keys []K
	for _, h := range triggered {
		d, ok := l.registry.Lookup(h)
		if !ok {
			continue
		}
		k, matched := filter(d)
		if !matched {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return l.Update(keys, lazy)
}

// Update invalidates keys in the Layer. When lazy is false (the default, eager mode), each key is
// immediately recomputed via the Bridge -- parallelized across workers via depkey.CollectedMapReduce
// under the fixed-chunk-count policy scheduler.LayerRecomputePolicy prescribes -- and the new value
// compared against the old one. When lazy is true, keys are discarded without being recomputed
// (StagePessimistic semantics): their dependents are conservatively treated as triggered, and the
// keys will be recomputed on their next Get. See the engine's notes on pessimistic invalidation for
// why this is sound.
func (l *Layer[K, V]) Update(keys []K, lazy bool) (UpdateResult[K], error) {
	tx := l.table.Open()
	for _, k := range keys {
		if lazy {
			tx.StagePessimistic(k)
		} else {
			tx.Stage(k)
		}
	}

	triggered, err := tx.Execute(func() error {
		if lazy {
			return nil
		}
		_, _, err := depkey.CollectedMapReduce(
			context.Background(),
			l.scheduler,
			keys,
			l.policy,
			func(_ context.Context, depCtx depkey.Context, k K) (struct{}, error) {
				inner := depCtx.WithCurrent(l.handleFor(depCtx, k))
				v, err := l.bridge.Recompute(inner, k)
				if err != nil {
					return struct{}{}, err
				}
				l.table.Set(k, v)
				return struct{}{}, nil
			},
			func(struct{}, struct{}) struct{} { return struct{}{} },
			struct{}{},
		)
		return err
	})
	if err != nil {
		return UpdateResult[K]{}, err
	}
	return UpdateResult[K]{Layer: l.Name, Keys: keys, Triggered: triggered}, nil
}
