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

// Package gclplugin implements golangci-lint's module plugin interface for the incremental
// analysis engine, so a host binary's recheck driver can be surfaced as a private linter. See
// more details at https://golangci-lint.run/plugins/module-plugins/.
package gclplugin

import (
	"context"
	"fmt"
	"go/token"

	"github.com/golangci/plugin-module-register/register"
	"go.uber.org/increcheck/config"
	"go.uber.org/increcheck/recheck"
	"golang.org/x/tools/go/analysis"
	"gopkg.in/yaml.v3"
)

func init() {
	register.Plugin("increcheck", New)
}

// Driver is the recheck driver the plugin's analyzer delegates to. golangci-lint's plugin
// interface gives a module no way to receive collaborators beyond its settings map, so the host
// binary embedding this plugin is expected to set Driver -- with its ModuleTracker,
// TypeInferencePass, and Postprocessing collaborators wired up -- before golangci-lint runs a
// package through it. An analyzer run with a nil Driver reports nothing.
var Driver *recheck.Driver

// New returns the golangci-lint plugin that wraps the recheck driver. Settings are the raw
// key-value map golangci-lint parses out of its own YAML config for this plugin; they are
// re-marshaled and decoded into a config.Config the same way config.Load reads a standalone file.
func New(settings any) (register.LinterPlugin, error) {
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("re-marshal increcheck settings: %w", err)
	}
	cfg := config.Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse increcheck settings: %w", err)
	}
	return &Plugin{cfg: cfg}, nil
}

// Plugin is the golangci-lint plugin wrapper around the recheck driver.
type Plugin struct {
	cfg config.Config
}

// BuildAnalyzers returns the single analysis.Analyzer that adapts Driver.Recheck's diagnostics
// into golangci-lint findings for the package under analysis.
func (p *Plugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	return []*analysis.Analyzer{{
		Name: "increcheck",
		Doc:  "runs the incremental analysis engine's recheck over the package's files",
		Run:  p.run,
	}}, nil
}

func (p *Plugin) run(pass *analysis.Pass) (any, error) {
	if Driver == nil {
		return nil, nil
	}
	Driver.Config = p.cfg

	paths := make([]string, 0, len(pass.Files))
	for _, f := range pass.Files {
		paths = append(paths, pass.Fset.Position(f.Pos()).Filename)
	}

	_, diagnostics, err := Driver.Recheck(context.Background(), paths)
	if err != nil {
		return nil, fmt.Errorf("recheck: %w", err)
	}
	for _, d := range diagnostics {
		if pos := findPos(pass.Fset, d.Position); pos != token.NoPos {
			pass.Reportf(pos, "%s", d.Message)
		}
	}
	return nil, nil
}

// findPos recovers the token.Pos golangci-lint needs to anchor a diagnostic in source, given the
// plain token.Position the recheck driver carries on errortable.Diagnostic -- the two can diverge
// across repeated analysis.Pass invocations since each gets its own token.FileSet.
func findPos(fset *token.FileSet, position token.Position) token.Pos {
	var pos token.Pos
	fset.Iterate(func(f *token.File) bool {
		if f.Name() != position.Filename || position.Offset >= f.Size() {
			return true
		}
		pos = f.Pos(position.Offset)
		return false
	})
	return pos
}

// GetLoadMode returns the load mode the recheck driver requires (full type info).
func (p *Plugin) GetLoadMode() string { return register.LoadModeTypesInfo }
