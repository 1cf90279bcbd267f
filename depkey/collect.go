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

package depkey

import (
	"context"

	"go.uber.org/increcheck/scheduler"
)

// CollectedMapReduce runs mapFn over items in parallel (via s, chunked by policy, exactly like
// scheduler.MapReduce), folding results together with reduceFn, while also recovering the
// deduplicated set of Handles newly registered by any call to ctx.Register made from within
// mapFn. This is how a distributed recomputation (e.g. type-inferring every function in a module
// across many workers) reports back the new dependency edges it discovered, without needing a
// shared, lock-contended Collector passed into every worker by hand.
func CollectedMapReduce[T, R any](
	ctx context.Context,
	s scheduler.Scheduler,
	items []T,
	policy scheduler.Policy,
	mapFn func(ctx context.Context, depCtx Context, item T) (R, error),
	reduceFn func(a, b R) R,
	zero R,
) (R, []Handle, error) {
	type partial struct {
		result    R
		collector *Collector
	}

	partialReduce := func(a, b partial) partial {
		a.collector.Union(b.collector)
		return partial{result: reduceFn(a.result, b.result), collector: a.collector}
	}

	seedCollector := NewCollector()
	result, err := scheduler.MapReduce(
		ctx,
		s,
		items,
		policy,
		func(ctx context.Context, item T) (partial, error) {
			c := NewCollector()
			depCtx := WithCollector(Context{}, c)
			r, err := mapFn(ctx, depCtx, item)
			if err != nil {
				return partial{}, err
			}
			return partial{result: r, collector: c}, nil
		},
		partialReduce,
		partial{result: zero, collector: seedCollector},
	)
	if err != nil {
		var zeroR R
		return zeroR, nil, err
	}
	return result.result, result.collector.Handles(), nil
}
