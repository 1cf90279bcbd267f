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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/environment"
	"go.uber.org/increcheck/scheduler"
)

func TestStackStoreLoadRoundTripsDependencyGraph(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	tracker.set("pkg", environment.ModuleSummary{Globals: []string{"x"}, Defines: []string{"f"}})

	registry := depkey.NewRegistry()
	stack := environment.NewStack(registry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		&fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}},
		scheduler.Default{})

	_, err := stack.UpdateThisAndAllPrecedingEnvironments(context.Background(), []string{"pkg"})
	require.NoError(t, err)

	// Read pkg.x under a consumer handle so a dependency edge exists to round-trip.
	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "pkg", Name: "f"})
	depCtx := depkey.Context{}.WithCurrent(consumer)
	_, err = stack.Resolved.Get(depCtx, environment.GlobalKey{Module: "pkg", Name: "x"})
	require.NoError(t, err)

	wantDependents := stack.Resolved.Table().Dependents(environment.GlobalKey{Module: "pkg", Name: "x"})
	require.Contains(t, wantDependents, consumer)

	var buf bytes.Buffer
	require.NoError(t, stack.Store(&buf))

	restoredRegistry := depkey.NewRegistry()
	restored := environment.NewStack(restoredRegistry, tracker,
		&fakeClassReader{bases: map[string][]string{}},
		&fakeAnnotationReader{annotations: map[string]string{}},
		&fakeTypeReader{inferred: map[string]string{"pkg.x": "int"}},
		scheduler.Default{})
	require.NoError(t, restored.Load(&buf))

	// The value cache is not persisted: Peek must come back empty until the key is recomputed.
	_, ok := restored.Resolved.Peek(environment.GlobalKey{Module: "pkg", Name: "x"})
	require.False(t, ok)

	gotDependents := restored.Resolved.Table().Dependents(environment.GlobalKey{Module: "pkg", Name: "x"})
	require.ElementsMatch(t, wantDependents, gotDependents)

	descriptor, ok := restoredRegistry.Lookup(consumer)
	require.True(t, ok)
	require.Equal(t, depkey.TypeCheckDefine{Module: "pkg", Name: "f"}, descriptor)
}
