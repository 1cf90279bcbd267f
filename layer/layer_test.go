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

package layer_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sourceBridge recomputes a key by looking it up in a plain map, simulating an upstream source
// layer (e.g. the parser) whose values change between Update calls.
type sourceBridge struct {
	values map[string]int
}

func (b *sourceBridge) Recompute(_ depkey.Context, key string) (int, error) {
	return b.values[key], nil
}

func newStringLayer(name string, registry *depkey.Registry, bridge layer.Bridge[string, int]) *layer.Layer[string, int] {
	return layer.New[string, int](name, table.WithCache, nil, bridge, registry, scheduler.Default{}, func(key string) depkey.Descriptor {
		return depkey.UnannotatedGlobal{Module: "m", Name: key}
	})
}

func TestLayerGetMemoizesAndTracksDependents(t *testing.T) {
	t.Parallel()

	registry := depkey.NewRegistry()
	src := &sourceBridge{values: map[string]int{"x": 1}}
	l := newStringLayer("source", registry, src)

	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)

	v, err := l.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.ElementsMatch(t, []depkey.Handle{consumer}, l.Table().Dependents("x"))

	src.values["x"] = 2 // mutate upstream without invalidating: Get should still return cached 1.
	v, err = l.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestLayerEagerUpdateTriggersOnChange(t *testing.T) {
	t.Parallel()

	registry := depkey.NewRegistry()
	src := &sourceBridge{values: map[string]int{"x": 1}}
	l := newStringLayer("source", registry, src)

	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)
	_, err := l.Get(ctx, "x")
	require.NoError(t, err)

	src.values["x"] = 2
	result, err := l.Update([]string{"x"}, false)
	require.NoError(t, err)
	require.ElementsMatch(t, []depkey.Handle{consumer}, result.Triggered)

	v, err := l.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestLayerEagerUpdateNoTriggerOnSameValue(t *testing.T) {
	t.Parallel()

	registry := depkey.NewRegistry()
	src := &sourceBridge{values: map[string]int{"x": 1}}
	l := newStringLayer("source", registry, src)

	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)
	_, err := l.Get(ctx, "x")
	require.NoError(t, err)

	result, err := l.Update([]string{"x"}, false)
	require.NoError(t, err)
	require.Empty(t, result.Triggered)
}

func TestLayerLazyUpdateAlwaysTriggersAndRecomputesOnNextGet(t *testing.T) {
	t.Parallel()

	registry := depkey.NewRegistry()
	src := &sourceBridge{values: map[string]int{"x": 1}}
	l := newStringLayer("source", registry, src)

	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)
	_, err := l.Get(ctx, "x")
	require.NoError(t, err)

	src.values["x"] = 99
	result, err := l.Update([]string{"x"}, true)
	require.NoError(t, err)
	require.ElementsMatch(t, []depkey.Handle{consumer}, result.Triggered)

	_, ok := l.Peek("x")
	require.False(t, ok, "lazily-invalidated key should not be recomputed until next Get")

	v, err := l.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

func TestChainAllTriggeredDeduplicates(t *testing.T) {
	t.Parallel()

	chain := layer.Chain[string]{
		{Layer: "a", Triggered: []depkey.Handle{1, 2}},
		{Layer: "b", Triggered: []depkey.Handle{2, 3}},
	}
	require.ElementsMatch(t, []depkey.Handle{1, 2, 3}, chain.AllTriggered())
}
