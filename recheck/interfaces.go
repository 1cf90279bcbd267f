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

// Package recheck implements the top-level incremental recheck driver: given a batch of changed
// artifact paths, it walks the environment stack, extracts the functions that must be
// re-type-checked, delegates that inference and the subsequent diagnostic post-processing to
// external collaborators, and reconciles the results into the error table.
package recheck

import (
	"context"

	"go.uber.org/increcheck/config"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/environment"
	"go.uber.org/increcheck/errortable"
	"go.uber.org/increcheck/scheduler"
)

// FunctionTrigger names a single define that must be re-type-checked, paired with the dependency
// handle its inference run must attribute its reads to.
type FunctionTrigger struct {
	Key    environment.GlobalKey
	Handle depkey.Handle
}

// TypeInferencePass is the external collaborator that runs the actual type inference algorithm.
// It must call env.Types.SetAnnotation for every trigger before returning, threading each
// trigger's Handle into the depkey.Context used for any layer read it performs, so that those
// reads are attributed to the correct consumer.
type TypeInferencePass interface {
	PopulateForDefinitions(ctx context.Context, sched scheduler.Scheduler, cfg config.Config, env *environment.Stack, triggers []FunctionTrigger) error
}

// Postprocessing is the external collaborator that turns a set of modules into a fresh diagnostic
// list, reading whatever layers of env it needs (type environment, resolved globals, and so on).
type Postprocessing interface {
	Run(ctx context.Context, sched scheduler.Scheduler, cfg config.Config, env *environment.Stack, modules []string) ([]errortable.Diagnostic, error)
}

// SharedMemoryRuntime is the external collaborator managing process-wide caches and memory outside
// the framework's own Tables -- e.g. parser caches, AST arenas, import caches.
type SharedMemoryRuntime interface {
	InvalidateCaches()
	Collect(aggressive bool)
	HeapSize() int64
}
