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

package environment

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
)

// Stack composes the six layers into the ordered stack named by the engine's system overview:
// parser -> unannotated globals -> class hierarchy -> annotated globals -> resolved globals ->
// type environment. Annotated-globals is updated before resolved-globals, and resolved-globals is
// updated from the handles annotated-globals and unannotated-globals trigger, because resolved-
// globals must be able to read an already-resolved annotation when deciding a global's final
// type -- the two are transposed here relative
// to the name order in the engine's component list, which names the same six layers without
// committing to which of the last two is computed from the other.
type Stack struct {
	Parser      *ParserLayer
	Unannotated *UnannotatedGlobalsLayer
	Classes     *ClassHierarchyLayer
	Annotated   *AnnotatedGlobalsLayer
	Resolved    *ResolvedGlobalsLayer
	Types       *TypeEnvironmentLayer

	registry *depkey.Registry
}

// NewStack builds the full layer stack on top of the given external collaborators, all sharing
// registry as their dependency registry and s as the Scheduler each layer's eager Update
// parallelizes its recomputation across.
func NewStack(
	registry *depkey.Registry,
	tracker ModuleTracker,
	classReader ClassReader,
	annotationReader AnnotationReader,
	typeReader UnannotatedTypeReader,
	s scheduler.Scheduler,
) *Stack {
	parser := NewParserLayer(registry, tracker, s)
	unannotated := NewUnannotatedGlobalsLayer(registry, parser, s)
	classes := NewClassHierarchyLayer(registry, parser, classReader, s)
	annotated := NewAnnotatedGlobalsLayer(registry, parser, annotationReader, s)
	resolved := NewResolvedGlobalsLayer(registry, unannotated, annotated, typeReader, s)
	types := NewTypeEnvironmentLayer(registry, s)

	return &Stack{
		Parser:      parser,
		Unannotated: unannotated,
		Classes:     classes,
		Annotated:   annotated,
		Resolved:    resolved,
		Types:       types,
		registry:    registry,
	}
}

// Registry exposes the stack's shared dependency registry.
func (s *Stack) Registry() *depkey.Registry { return s.registry }

// persistedState is the on-disk shape of a Store/Load round trip: the registry's interned
// descriptors, plus each layer's dependency graph (which consumer handles read which key). It
// carries no layer values -- those are the large, shared-memory tables a restart reconstitutes
// through a separate, explicit repopulation pass, never through Store/Load.
type persistedState struct {
	Descriptors []depkey.Descriptor
	Parser      map[string][]depkey.Handle
	Unannotated map[GlobalKey][]depkey.Handle
	Classes     map[GlobalKey][]depkey.Handle
	Annotated   map[GlobalKey][]depkey.Handle
	Resolved    map[GlobalKey][]depkey.Handle
	Types       map[GlobalKey][]depkey.Handle
}

// Store writes s's non-shared-memory state to w: the registry's interned descriptors and every
// layer's dependency graph, gob-encoded and flate-compressed, mirroring the "pair of files per
// layer" shape named for the engine's persistence model.
func (s *Stack) Store(w io.Writer) error {
	state := persistedState{
		Descriptors: s.registry.Descriptors(),
		Parser:      s.Parser.Table().DependentsSnapshot(),
		Unannotated: s.Unannotated.Table().DependentsSnapshot(),
		Classes:     s.Classes.Table().DependentsSnapshot(),
		Annotated:   s.Annotated.Table().DependentsSnapshot(),
		Resolved:    s.Resolved.Table().DependentsSnapshot(),
		Types:       s.Types.Table().DependentsSnapshot(),
	}

	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("open compressed environment writer: %w", err)
	}
	if err := gob.NewEncoder(fw).Encode(state); err != nil {
		return fmt.Errorf("encode environment state: %w", err)
	}
	return fw.Close()
}

// Load replaces s's dependency graphs and registry contents with a snapshot previously written by
// Store. Every layer's value cache is cleared as part of the restore: Load only reinstates which
// consumer depends on which key, not the keys' values, which must be repopulated separately before
// the stack is queried again.
func (s *Stack) Load(r io.Reader) error {
	fr := flate.NewReader(r)
	defer fr.Close()

	var state persistedState
	if err := gob.NewDecoder(fr).Decode(&state); err != nil {
		return fmt.Errorf("decode environment state: %w", err)
	}

	s.registry.Restore(state.Descriptors)
	s.Parser.Table().RestoreDependents(state.Parser)
	s.Unannotated.Table().RestoreDependents(state.Unannotated)
	s.Classes.Table().RestoreDependents(state.Classes)
	s.Annotated.Table().RestoreDependents(state.Annotated)
	s.Resolved.Table().RestoreDependents(state.Resolved)
	s.Types.Table().RestoreDependents(state.Types)
	return nil
}

// UpdateResult is the outcome of updating the whole stack from a batch of changed artifact paths:
// the per-layer StepChain (bottom-first, one entry per layer, satisfying the chain-monotonicity
// property) plus the parser-specific fields the recheck driver needs.
type UpdateResult struct {
	Chain              layer.StepChain
	InvalidatedModules []string
	DefineAdditions    []string
}

// UpdateThisAndAllPrecedingEnvironments recursively updates the parser layer from paths, then
// cascades that update bottom-up through every layer above it, exactly the order named in
// NewStack. The type-environment layer's own step in this generic traversal is lazy (pessimistic):
// stale per-define annotations are discarded but not recomputed here; the recheck driver performs
// the actual eager re-inference afterward via Types.Reinfer, using the function-trigger set this
// method's result makes available.
func (s *Stack) UpdateThisAndAllPrecedingEnvironments(ctx context.Context, paths []string) (UpdateResult, error) {
	parserResult, err := s.Parser.UpdateThisAndAllPrecedingEnvironments(ctx, paths)
	if err != nil {
		return UpdateResult{}, err
	}
	parserStep := parserResult.Step()

	unannotatedResult, err := s.Unannotated.UpdateFromUpstream(parserStep.Triggered, filterUnannotatedGlobal, false)
	if err != nil {
		return UpdateResult{}, err
	}

	classesResult, err := s.Classes.UpdateFromUpstream(parserStep.Triggered, filterClassSummary, false)
	if err != nil {
		return UpdateResult{}, err
	}

	annotatedResult, err := s.Annotated.UpdateFromUpstream(parserStep.Triggered, filterAnnotatedGlobal, false)
	if err != nil {
		return UpdateResult{}, err
	}

	resolvedUpstream := union(unannotatedResult.Triggered, annotatedResult.Triggered)
	resolvedResult, err := s.Resolved.UpdateFromUpstream(resolvedUpstream, filterTypeOfGlobal, false)
	if err != nil {
		return UpdateResult{}, err
	}

	typesUpstream := union(classesResult.Triggered, resolvedResult.Triggered)
	typesResult, err := s.Types.UpdateFromUpstream(typesUpstream, filterTypeCheckDefine, true)
	if err != nil {
		return UpdateResult{}, err
	}

	chain := layer.StepChain{
		parserStep,
		unannotatedResult.Step(),
		classesResult.Step(),
		annotatedResult.Step(),
		resolvedResult.Step(),
		typesResult.Step(),
	}

	return UpdateResult{
		Chain:              chain,
		InvalidatedModules: parserResult.InvalidatedModules,
		DefineAdditions:    parserResult.DefineAdditions,
	}, nil
}

func filterUnannotatedGlobal(d depkey.Descriptor) (GlobalKey, bool) {
	ug, ok := d.(depkey.UnannotatedGlobal)
	if !ok {
		return GlobalKey{}, false
	}
	return GlobalKey{Module: ug.Module, Name: ug.Name}, true
}

func filterClassSummary(d depkey.Descriptor) (GlobalKey, bool) {
	cs, ok := d.(depkey.ClassSummary)
	if !ok {
		return GlobalKey{}, false
	}
	return GlobalKey{Module: cs.Module, Name: cs.Class}, true
}

func filterAnnotatedGlobal(d depkey.Descriptor) (GlobalKey, bool) {
	ag, ok := d.(depkey.AnnotatedGlobal)
	if !ok {
		return GlobalKey{}, false
	}
	return GlobalKey{Module: ag.Module, Name: ag.Name}, true
}

func filterTypeOfGlobal(d depkey.Descriptor) (GlobalKey, bool) {
	tg, ok := d.(depkey.TypeOfGlobal)
	if !ok {
		return GlobalKey{}, false
	}
	return GlobalKey{Module: tg.Module, Name: tg.Name}, true
}

func filterTypeCheckDefine(d depkey.Descriptor) (GlobalKey, bool) {
	td, ok := d.(depkey.TypeCheckDefine)
	if !ok {
		return GlobalKey{}, false
	}
	return GlobalKey{Module: td.Module, Name: td.Name}, true
}

func union(a, b []depkey.Handle) []depkey.Handle {
	seen := make(map[depkey.Handle]struct{}, len(a)+len(b))
	out := make([]depkey.Handle, 0, len(a)+len(b))
	for _, h := range a {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	for _, h := range b {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
