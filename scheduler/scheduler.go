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

package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs a fixed number of independent jobs, each identified by its index, with bounded
// concurrency. Implementations need not know anything about the work being chunked -- that is
// MapReduce's job -- only how to fan a number of jobs out and wait for them.
type Scheduler interface {
	Run(ctx context.Context, jobs int, policy Policy, work func(ctx context.Context, job int) error) error
}

// Default is the Scheduler used by the environment layers unless a driver substitutes a fake for
// testing. It runs jobs on an errgroup.Group with a concurrency limit taken from the Policy.
type Default struct{}

// Run implements Scheduler.
func (Default) Run(ctx context.Context, jobs int, policy Policy, work func(ctx context.Context, job int) error) error {
	if jobs == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(policy.workers())
	for i := 0; i < jobs; i++ {
		i := i
		g.Go(func() error {
			return work(gctx, i)
		})
	}
	return g.Wait()
}

// MapReduce splits items into Policy-sized chunks, maps mapFn over every item (each chunk
// processed sequentially within one job, chunks run concurrently via s), and folds the per-item
// results together with reduceFn, seeded by zero. Each chunk folds its own results into its own
// accumulator (seeded by zero) inside its job, so reduceFn is called from concurrently running
// jobs; the chunk-local folds are then combined in a final, single-threaded pass.
func MapReduce[T, R any](
	ctx context.Context,
	s Scheduler,
	items []T,
	policy Policy,
	mapFn func(ctx context.Context, item T) (R, error),
	reduceFn func(a, b R) R,
	zero R,
) (R, error) {
	chunks := policy.Chunks(len(items))
	partials := make([]R, len(chunks))

	err := s.Run(ctx, len(chunks), policy, func(ctx context.Context, job int) error {
		bounds := chunks[job]
		acc := zero
		for i := bounds[0]; i < bounds[1]; i++ {
			r, err := mapFn(ctx, items[i])
			if err != nil {
				return err
			}
			acc = reduceFn(acc, r)
		}
		partials[job] = acc
		return nil
	})
	if err != nil {
		var zeroR R
		return zeroR, err
	}

	acc := zero
	for _, p := range partials {
		acc = reduceFn(acc, p)
	}
	return acc, nil
}
