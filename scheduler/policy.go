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

// Package scheduler implements the fixed-chunk-count parallel map-reduce machinery the
// environment layers use to recompute many keys at once. It is deliberately small: a Policy that
// decides how many chunks to split a batch of work into, and a Scheduler that runs those chunks
// concurrently.
package scheduler

import "runtime"

// Policy controls how a batch of n items is split into chunks for parallel execution.
type Policy struct {
	// Workers bounds how many chunks run concurrently. Zero means runtime.NumCPU().
	Workers int
	// MinChunksPerWorker is the smallest number of chunks produced per worker, so that a slow
	// chunk does not leave other workers idle near the end of a batch.
	MinChunksPerWorker int
	// PreferredChunksPerWorker is the number of chunks per worker used when the batch is large
	// enough to support it without violating MinChunkSize.
	PreferredChunksPerWorker int
	// MinChunkSize is the smallest number of items a chunk should contain; chunk count is reduced
	// below the preferred value, if necessary, to respect this.
	MinChunkSize int
}

// DefaultPolicy returns the Policy used when a driver does not override scheduling behavior.
func DefaultPolicy() Policy {
	return Policy{
		Workers:                  runtime.NumCPU(),
		MinChunksPerWorker:       1,
		PreferredChunksPerWorker: 4,
		MinChunkSize:             16,
	}
}

// LayerRecomputePolicy is the fixed-chunk-count policy an environment layer's eager Update uses to
// parallelize recomputation across its triggered keys: minimum chunks per worker = 1, minimum
// chunk size = 100, preferred chunks per worker = 5.
func LayerRecomputePolicy() Policy {
	return Policy{
		MinChunksPerWorker:       1,
		MinChunkSize:             100,
		PreferredChunksPerWorker: 5,
	}
}

func (p Policy) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

// chunkCount returns the number of chunks to split n items into.
func (p Policy) chunkCount(n int) int {
	if n == 0 {
		return 0
	}
	workers := p.workers()
	if workers < 1 {
		workers = 1
	}

	minChunks := p.MinChunksPerWorker
	if minChunks < 1 {
		minChunks = 1
	}
	preferred := p.PreferredChunksPerWorker
	if preferred < minChunks {
		preferred = minChunks
	}

	count := workers * preferred
	if count > n {
		count = n
	}

	minSize := p.MinChunkSize
	if minSize < 1 {
		minSize = 1
	}
	if count > 0 && n/count < minSize {
		count = n / minSize
	}

	floor := workers * minChunks
	if floor > n {
		floor = n
	}
	if count < floor {
		count = floor
	}
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count
}

// Chunks splits the index range [0, n) into the chunk count this Policy prescribes, returning the
// [start, end) bounds of each chunk. Chunks cover every index exactly once, in order.
func (p Policy) Chunks(n int) [][2]int {
	count := p.chunkCount(n)
	if count == 0 {
		return nil
	}

	chunks := make([][2]int, 0, count)
	base := n / count
	extra := n % count
	start := 0
	for i := 0; i < count; i++ {
		size := base
		if i < extra {
			size++
		}
		end := start + size
		if size > 0 {
			chunks = append(chunks, [2]int{start, end})
		}
		start = end
	}
	return chunks
}
