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
	"fmt"

	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

// AnnotationReader is the external collaborator that extracts the explicit type annotation (if
// any was written in source) for a global. Reading the annotation out of an expression node is
// out of this engine's scope; the engine only tracks the dependency edges around the result.
type AnnotationReader interface {
	Annotation(ctx depkey.Context, module, name string) (annotation string, ok bool, err error)
}

// AnnotatedGlobalInfo is the annotated-globals layer's value.
type AnnotatedGlobalInfo struct {
	Annotation string
	Present    bool
}

// Equal implements the cut-off.
func (a AnnotatedGlobalInfo) Equal(other AnnotatedGlobalInfo) bool {
	return a.Present == other.Present && (!a.Present || a.Annotation == other.Annotation)
}

type annotatedGlobalsBridge struct {
	parser *ParserLayer
	reader AnnotationReader
}

func (b *annotatedGlobalsBridge) Recompute(ctx depkey.Context, key GlobalKey) (AnnotatedGlobalInfo, error) {
	// Read the module summary (even though its value is unused below) so the parser layer
	// records this layer's handle as a dependent of the module -- the edge the upstream step
	// of the stack update relies on to reach this layer from a changed module.
	if _, err := b.parser.Get(ctx, key.Module); err != nil {
		return AnnotatedGlobalInfo{}, fmt.Errorf("annotated global %s: read module %q: %w", key, key.Module, err)
	}

	annotation, ok, err := b.reader.Annotation(ctx, key.Module, key.Name)
	if err != nil {
		return AnnotatedGlobalInfo{}, fmt.Errorf("annotated global %s: %w", key, err)
	}
	return AnnotatedGlobalInfo{Annotation: annotation, Present: ok}, nil
}

// AnnotatedGlobalsLayer tracks, for every global, the explicit annotation a programmer wrote for
// it (if any). The AnnotationReader consults the same underlying AST the parser summarized; this
// layer still reads the parser directly (rather than through unannotated-globals) purely to pick
// up the dependency edge, since the resolved-globals layer above combines this layer's output with
// unannotated-globals' own.
type AnnotatedGlobalsLayer struct {
	*layer.Layer[GlobalKey, AnnotatedGlobalInfo]
}

// NewAnnotatedGlobalsLayer builds the annotated-globals layer on top of parser.
func NewAnnotatedGlobalsLayer(registry *depkey.Registry, parser *ParserLayer, reader AnnotationReader, s scheduler.Scheduler) *AnnotatedGlobalsLayer {
	bridge := &annotatedGlobalsBridge{parser: parser, reader: reader}
	equal := func(a, b AnnotatedGlobalInfo) bool { return a.Equal(b) }
	l := layer.New[GlobalKey, AnnotatedGlobalInfo]("annotated-globals", table.WithCache, equal, bridge, registry, s,
		func(key GlobalKey) depkey.Descriptor { return depkey.AnnotatedGlobal{Module: key.Module, Name: key.Name} })
	return &AnnotatedGlobalsLayer{Layer: l}
}
