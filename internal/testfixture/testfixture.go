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

// Package testfixture provides small, in-memory fakes for every external collaborator interface
// the engine depends on, for use by package tests that need a whole environment.Stack or
// recheck.Driver wired up without touching a real parser, inference engine, or filesystem.
package testfixture

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/increcheck/config"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/environment"
	"go.uber.org/increcheck/errortable"
	"go.uber.org/increcheck/recheck"
	"go.uber.org/increcheck/scheduler"
)

// ModuleTracker is an in-memory environment.ModuleTracker over a source map the test mutates
// directly via Set/Remove.
type ModuleTracker struct {
	mu       sync.Mutex
	modules  map[string]environment.ModuleSummary
	existing map[string]bool
}

// NewModuleTracker creates an empty ModuleTracker.
func NewModuleTracker() *ModuleTracker {
	return &ModuleTracker{modules: map[string]environment.ModuleSummary{}, existing: map[string]bool{}}
}

// Set installs (or replaces) a module's summary, marking it present.
func (f *ModuleTracker) Set(module string, summary environment.ModuleSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules[module] = summary
	f.existing[module] = true
}

// Remove marks a module as deleted.
func (f *ModuleTracker) Remove(module string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.existing, module)
}

// Parse implements environment.ModuleTracker.
func (f *ModuleTracker) Parse(_ context.Context, module string) (environment.ModuleSummary, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existing[module] {
		return environment.ModuleSummary{}, false, nil
	}
	return f.modules[module], true, nil
}

// AffectedModules implements environment.ModuleTracker: every path in the batch is interpreted
// directly as a module name.
func (f *ModuleTracker) AffectedModules(_ context.Context, paths []string) (changed, deleted []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		if f.existing[p] {
			changed = append(changed, p)
		} else {
			deleted = append(deleted, p)
		}
	}
	return changed, deleted, nil
}

// ClassReader is an in-memory environment.ClassReader.
type ClassReader struct {
	Bases map[string][]string // keyed by "module.class"
}

// Bases implements environment.ClassReader.
func (f *ClassReader) Bases(_ depkey.Context, module, class string) ([]string, error) {
	return f.Bases[module+"."+class], nil
}

// AnnotationReader is an in-memory environment.AnnotationReader.
type AnnotationReader struct {
	Annotations map[string]string // keyed by "module.name"
}

// Annotation implements environment.AnnotationReader.
func (f *AnnotationReader) Annotation(_ depkey.Context, module, name string) (string, bool, error) {
	a, ok := f.Annotations[module+"."+name]
	return a, ok, nil
}

// TypeReader is an in-memory environment.UnannotatedTypeReader.
type TypeReader struct {
	Inferred map[string]string // keyed by "module.name"
}

// InferredType implements environment.UnannotatedTypeReader.
func (f *TypeReader) InferredType(_ depkey.Context, module, name string) (string, error) {
	return f.Inferred[module+"."+name], nil
}

// InferencePass is an in-memory recheck.TypeInferencePass: it assigns each triggered define the
// signature found in Signatures, or a deterministic placeholder if absent. Reads lets a test
// declare that inferring a given define also consults another define's already-inferred signature
// (e.g. a caller looking up a callee's return type), so that the resulting dependency edge is
// attributed to the define's own handle exactly as a real inference pass would.
type InferencePass struct {
	Signatures map[string]string                  // keyed by "module.name"
	Reads      map[string][]environment.GlobalKey // keyed by "module.name"
	Calls      []recheck.FunctionTrigger
}

// PopulateForDefinitions implements recheck.TypeInferencePass. It always reads the define's own
// module summary under its own handle first -- as a real inference pass would, to get at the
// define's body -- which is what lets a body-only edit (one that changes a module's per-define
// fingerprint but not its name lists) re-trigger exactly that define on the next recheck.
func (f *InferencePass) PopulateForDefinitions(_ context.Context, _ scheduler.Scheduler, _ config.Config, env *environment.Stack, triggers []recheck.FunctionTrigger) error {
	f.Calls = append(f.Calls, triggers...)
	for _, t := range triggers {
		depCtx := depkey.Context{}.WithCurrent(t.Handle)

		if _, err := env.Parser.Get(depCtx, t.Key.Module); err != nil {
			return err
		}
		for _, read := range f.Reads[t.Key.Module+"."+t.Key.Name] {
			if _, err := env.Types.Get(depCtx, read); err != nil {
				return err
			}
		}

		sig, ok := f.Signatures[t.Key.Module+"."+t.Key.Name]
		if !ok {
			sig = fmt.Sprintf("inferred(%s)", t.Key)
		}
		env.Types.SetAnnotation(t.Key, environment.FunctionAnnotation{Signature: sig})
	}
	return nil
}

// Postprocessing is an in-memory recheck.Postprocessing: it reports one diagnostic per message
// listed in Findings for each module, or none for modules absent from it.
type Postprocessing struct {
	Findings map[string][]string // module -> diagnostic messages
	Calls    [][]string
}

// Run implements recheck.Postprocessing.
func (f *Postprocessing) Run(_ context.Context, _ scheduler.Scheduler, _ config.Config, _ *environment.Stack, modules []string) ([]errortable.Diagnostic, error) {
	f.Calls = append(f.Calls, modules)
	var out []errortable.Diagnostic
	for _, m := range modules {
		for _, msg := range f.Findings[m] {
			out = append(out, errortable.Diagnostic{Module: m, Message: msg})
		}
	}
	return out, nil
}

// Runtime is an in-memory recheck.SharedMemoryRuntime that just counts its calls.
type Runtime struct {
	Invalidations int
	Collections   int
}

// InvalidateCaches implements recheck.SharedMemoryRuntime.
func (r *Runtime) InvalidateCaches() { r.Invalidations++ }

// Collect implements recheck.SharedMemoryRuntime.
func (r *Runtime) Collect(bool) { r.Collections++ }

// HeapSize implements recheck.SharedMemoryRuntime.
func (r *Runtime) HeapSize() int64 { return 0 }
