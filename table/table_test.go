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

package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetCachesAndRecordsDependent(t *testing.T) {
	t.Parallel()

	tbl := table.New[string, int](table.WithCache, nil)
	registry := depkey.NewRegistry()
	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)

	calls := 0
	compute := func() (int, error) { calls++; return 42, nil }

	v, err := tbl.Get(ctx, "k", compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)

	// Second Get should hit the cache, not call compute again.
	v, err = tbl.Get(ctx, "k", compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)

	require.ElementsMatch(t, []depkey.Handle{consumer}, tbl.Dependents("k"))
}

func TestNoCacheRecomputesEveryGet(t *testing.T) {
	t.Parallel()

	tbl := table.New[string, int](table.NoCache, nil)
	calls := 0
	for i := 0; i < 3; i++ {
		v, err := tbl.Get(depkey.Context{}, "k", func() (int, error) { calls++; return calls, nil })
		require.NoError(t, err)
		require.Equal(t, calls, v)
	}
	require.Equal(t, 3, calls)
	require.Equal(t, 0, tbl.Len())
}

func TestTransactionEqualityCutoff(t *testing.T) {
	t.Parallel()

	tbl := table.New[string, int](table.WithCache, nil)
	registry := depkey.NewRegistry()
	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)

	_, err := tbl.Get(ctx, "k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	// Recompute to the *same* value: dependents should not be triggered.
	tx := tbl.Open()
	tx.Stage("k")
	triggered, err := tx.Execute(func() error {
		tbl.Set("k", 1)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, triggered)

	// Recompute to a *different* value: dependents should be triggered exactly once.
	tx = tbl.Open()
	tx.Stage("k")
	triggered, err = tx.Execute(func() error {
		tbl.Set("k", 2)
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []depkey.Handle{consumer}, triggered)
}

func TestTransactionPessimisticAlwaysTriggers(t *testing.T) {
	t.Parallel()

	tbl := table.New[string, int](table.WithCache, nil)
	registry := depkey.NewRegistry()
	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	ctx := depkey.Context{}.WithCurrent(consumer)

	_, err := tbl.Get(ctx, "k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	tx := tbl.Open()
	tx.StagePessimistic("k")
	triggered, err := tx.Execute(func() error { return nil })
	require.NoError(t, err)
	require.ElementsMatch(t, []depkey.Handle{consumer}, triggered)

	// The key should now be absent, to be recomputed lazily on next Get.
	_, ok := tbl.Peek("k")
	require.False(t, ok)
}

func TestTransactionNewKeyTriggers(t *testing.T) {
	t.Parallel()

	tbl := table.New[string, int](table.WithCache, nil)
	registry := depkey.NewRegistry()
	consumer := registry.Intern(depkey.TypeCheckDefine{Module: "m", Name: "f"})
	_, err := tbl.Get(depkey.Context{}.WithCurrent(consumer), "k", func() (int, error) { return 0, nil })
	require.NoError(t, err)
	tbl.Delete("k")

	tx := tbl.Open()
	tx.Stage("k")
	triggered, err := tx.Execute(func() error {
		tbl.Set("k", 7)
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []depkey.Handle{consumer}, triggered)
}
