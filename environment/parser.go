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

// Package environment implements the concrete layer stack of the incremental analysis engine:
// parser -> unannotated globals -> class hierarchy -> annotated globals -> resolved globals ->
// type environment. Each layer is a layer.Layer instantiated with a Bridge grounded in the layer
// beneath, composed bottom-up by Stack.
package environment

import (
	"context"
	"fmt"

	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

// ModuleSummary is the raw syntactic summary the external parser/module-tracker produces for a
// single module: the names it binds at the top level, plus an opaque content fingerprint per name
// (e.g. a hash of the body/initializer text). The engine treats both as opaque data; it never
// parses source text itself, but the fingerprints are what let the parser's cut-off distinguish "a
// define's body changed" from "this module's source was merely re-read unchanged" -- the name
// lists alone cannot, since a body edit never changes which names a module binds.
type ModuleSummary struct {
	Globals      []string
	Classes      []string
	Defines      []string
	Aliases      []string
	Fingerprints map[string]string
}

// Equal reports structural equality of two summaries, used as the parser layer's cut-off.
func (s ModuleSummary) Equal(other ModuleSummary) bool {
	return stringsEqual(s.Globals, other.Globals) &&
		stringsEqual(s.Classes, other.Classes) &&
		stringsEqual(s.Defines, other.Defines) &&
		stringsEqual(s.Aliases, other.Aliases) &&
		fingerprintsEqual(s.Fingerprints, other.Fingerprints)
}

func fingerprintsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ModuleTracker is the external collaborator that knows how to re-parse a module from disk (or
// from an in-memory source map, in tests) given the set of artifact paths that changed. It is the
// "Parser/module-tracker layer" named in the engine's external interfaces.
type ModuleTracker interface {
	// Parse returns the current summary for module, or ok=false if the module no longer exists
	// (e.g. its source file was deleted).
	Parse(ctx context.Context, module string) (summary ModuleSummary, ok bool, err error)

	// AffectedModules returns the modules whose source changed given a batch of changed artifact
	// paths, split into modules still present and modules that were deleted.
	AffectedModules(ctx context.Context, paths []string) (changed, deleted []string, err error)
}

// ParserUpdateResult is the parser layer's contribution to the UpdateResult chain: in addition to
// the generic layer.UpdateResult, it reports the modules invalidated by this update and the
// qualified names of any newly-introduced defines, matching the engine's external "Parser/module-
// tracker layer" contract (InvalidatedModules, DefineAdditions).
type ParserUpdateResult struct {
	layer.UpdateResult[string]
	InvalidatedModules []string
	DefineAdditions    []string
}

type parserBridge struct {
	tracker ModuleTracker
}

func (b *parserBridge) Recompute(ctx depkey.Context, module string) (ModuleSummary, error) {
	summary, ok, err := b.tracker.Parse(context.Background(), module)
	if err != nil {
		return ModuleSummary{}, fmt.Errorf("parse module %q: %w", module, err)
	}
	if !ok {
		return ModuleSummary{}, nil
	}
	return summary, nil
}

// ParserLayer is the bottom of the stack: a dependency-tracked cache of every module's parsed
// summary, backed by the external ModuleTracker.
type ParserLayer struct {
	*layer.Layer[string, ModuleSummary]
	tracker ModuleTracker
}

// NewParserLayer creates the bottom-most layer of the stack.
func NewParserLayer(registry *depkey.Registry, tracker ModuleTracker, s scheduler.Scheduler) *ParserLayer {
	bridge := &parserBridge{tracker: tracker}
	equal := func(a, b ModuleSummary) bool { return a.Equal(b) }
	l := layer.New[string, ModuleSummary]("parser", table.WithCache, equal, bridge, registry, s,
		func(module string) depkey.Descriptor { return depkey.AstParse{Module: module} })
	return &ParserLayer{Layer: l, tracker: tracker}
}

// UpdateThisAndAllPrecedingEnvironments is the parser layer's base case of the recursive stack
// update: there is nothing beneath it, so it simply asks the tracker which modules changed (and
// which were deleted) and invalidates them. A re-parsed module whose summary is Equal to its
// cached one is not reported in InvalidatedModules; every deleted module is.
func (p *ParserLayer) UpdateThisAndAllPrecedingEnvironments(ctx context.Context, paths []string) (ParserUpdateResult, error) {
	changed, deleted, err := p.tracker.AffectedModules(ctx, paths)
	if err != nil {
		return ParserUpdateResult{}, fmt.Errorf("determine affected modules: %w", err)
	}

	// Capture each changed module's summary and defines before the update, so that afterward we
	// can tell whether its parse actually changed, and which defines are genuinely new (added by
	// this parse) rather than merely re-parsed.
	before := make(map[string]map[string]struct{}, len(changed))
	previous := make(map[string]ModuleSummary, len(changed))
	for _, module := range changed {
		set := make(map[string]struct{})
		if summary, ok := p.Peek(module); ok {
			previous[module] = summary
			for _, d := range summary.Defines {
				set[d] = struct{}{}
			}
		}
		before[module] = set
	}

	modules := append(append([]string{}, changed...), deleted...)
	result, err := p.Update(modules, false)
	if err != nil {
		return ParserUpdateResult{}, err
	}

	var additions []string
	invalidated := make([]string, 0, len(changed)+len(deleted))
	for _, module := range changed {
		summary, ok := p.Peek(module)
		if !ok {
			continue
		}
		if prev, existed := previous[module]; existed && prev.Equal(summary) {
			continue
		}
		invalidated = append(invalidated, module)
		seenBefore := before[module]
		for _, d := range summary.Defines {
			if _, existed := seenBefore[d]; !existed {
				additions = append(additions, module+"."+d)
			}
		}
	}

	invalidated = append(invalidated, deleted...)
	return ParserUpdateResult{
		UpdateResult:       result,
		InvalidatedModules: invalidated,
		DefineAdditions:    additions,
	}, nil
}
