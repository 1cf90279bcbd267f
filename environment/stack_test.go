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

package environment_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/environment"
	"go.uber.org/increcheck/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTracker is an in-memory ModuleTracker over a source map the test mutates directly, standing
// in for a real filesystem-backed parser.
type fakeTracker struct {
	mu       sync.Mutex
	modules  map[string]environment.ModuleSummary
	existing map[string]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{modules: map[string]environment.ModuleSummary{}, existing: map[string]bool{}}
}

func (f *fakeTracker) set(module string, summary environment.ModuleSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules[module] = summary
	f.existing[module] = true
}

func (f *fakeTracker) remove(module string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.existing, module)
}

func (f *fakeTracker) Parse(_ context.Context, module string) (environment.ModuleSummary, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existing[module] {
		return environment.ModuleSummary{}, false, nil
	}
	return f.modules[module], true, nil
}

func (f *fakeTracker) AffectedModules(_ context.Context, paths []string) (changed, deleted []string, err error) {
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

type fakeClassReader struct{ bases map[string][]string }

func (f *fakeClassReader) Bases(_ depkey.Context, module, class string) ([]string, error) {
	return f.bases[module+"."+class], nil
}

type fakeAnnotationReader struct{ annotations map[string]string }

func (f *fakeAnnotationReader) Annotation(_ depkey.Context, module, name string) (string, bool, error) {
	a, ok := f.annotations[module+"."+name]
	return a, ok, nil
}

type fakeTypeReader struct{ inferred map[string]string }

func (f *fakeTypeReader) InferredType(_ depkey.Context, module, name string) (string, error) {
	return f.inferred[module+"."+name], nil
}

func TestStackUpdateProducesSixStepChain(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}, Defines: []string{"f"}})

	registry := depkey.NewRegistry()
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		&fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}},
		scheduler.Default{})

	result, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)
	require.Len(t, result.Chain, 6)
	require.Equal(t, []string{"pkg"}, result.InvalidatedModules)
	require.Contains(t, result.DefineAdditions, "pkg.f")

	info, err := stack.Resolved.Get(depkey.Context{}, environment.GlobalKey{Module: "pkg", Name: "x"})
	require.NoError(t, err)
	require.Equal(t, "int", info.Type)
	require.False(t, info.Annotated)
}

func TestStackExplicitAnnotationOverridesInferredType(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}})

	registry := depkey.NewRegistry()
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{"pkg.x": "str"}},
		&fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}},
		scheduler.Default{})

	_, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)

	info, err := stack.Resolved.Get(depkey.Context{}, environment.GlobalKey{Module: "pkg", Name: "x"})
	require.NoError(t, err)
	require.Equal(t, "str", info.Type)
	require.True(t, info.Annotated)
}

func TestStackClassHierarchyResolvesMRO(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Classes: []string{"Base", "Derived"}})

	registry := depkey.NewRegistry()
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{"pkg.Derived": {"Base"}}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		&fakeTypeReader{inferred: map[string]string{}},
		scheduler.Default{})

	_, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)

	info, err := stack.Classes.Get(depkey.Context{}, environment.GlobalKey{Module: "pkg", Name: "Derived"})
	require.NoError(t, err)
	require.Equal(t, []string{"Derived", "Base"}, info.MRO)
}

func TestStackChangedModulePropagatesThroughResolvedGlobals(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}})

	registry := depkey.NewRegistry()
	typeReader := &fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}}
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		typeReader,
		scheduler.Default{})

	_, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)
	info, err := stack.Resolved.Get(depkey.Context{}, environment.GlobalKey{Module: "pkg", Name: "x"})
	require.NoError(t, err)
	require.Equal(t, "int", info.Type)

	typeReader.inferred["pkg.x"] = "float"
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}})
	result, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)

	info, err = stack.Resolved.Get(depkey.Context{}, environment.GlobalKey{Module: "pkg", Name: "x"})
	require.NoError(t, err)
	require.Equal(t, "float", info.Type)
	require.NotEmpty(t, result.Chain.AllTriggered())
}

func TestStackDeletedModuleInvalidatesWithoutError(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}})

	registry := depkey.NewRegistry()
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		&fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}},
		scheduler.Default{})

	_, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)

	tracker.remove("pkg")
	result, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)
	require.Equal(t, []string{"pkg"}, result.InvalidatedModules)
}
