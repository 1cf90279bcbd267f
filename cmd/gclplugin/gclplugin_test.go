//  Copyright (c) 2024 Uber Technologies, Inc.
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

package gclplugin

import (
	"go/token"
	"testing"

	"github.com/golangci/plugin-module-register/register"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/tools/go/analysis"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPlugin(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{"scheduling": map[string]any{"workers": 4}})
	require.NoError(t, err)
	require.NotNil(t, plugin)

	require.Equal(t, register.LoadModeTypesInfo, plugin.GetLoadMode())
	analyzers, err := plugin.BuildAnalyzers()
	require.NoError(t, err)
	require.Len(t, analyzers, 1)
	require.Equal(t, "increcheck", analyzers[0].Name)

	p, ok := plugin.(*Plugin)
	require.True(t, ok)
	require.Equal(t, 4, p.cfg.Scheduling.Workers)
}

func TestPlugin_IncorrectSettingsType(t *testing.T) {
	t.Parallel()

	_, err := New(make(chan int))
	require.Error(t, err)
}

func TestPlugin_NilDriverReportsNothing(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{})
	require.NoError(t, err)
	analyzers, err := plugin.BuildAnalyzers()
	require.NoError(t, err)

	Driver = nil
	result, err := analyzers[0].Run(&analysis.Pass{Fset: token.NewFileSet()})
	require.NoError(t, err)
	require.Nil(t, result)
}
