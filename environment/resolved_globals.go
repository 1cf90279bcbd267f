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

// UnannotatedTypeReader is the external collaborator that guesses a global's type from its
// unannotated initializer (literal inference, inferred from a single assignment, and so on).
type UnannotatedTypeReader interface {
	InferredType(ctx depkey.Context, module, name string) (string, error)
}

// ResolvedGlobalInfo is the resolved-globals layer's value: the global's final type, and whether
// it came from an explicit annotation or was inferred from its initializer.
type ResolvedGlobalInfo struct {
	Type       string
	Annotated  bool
}

// Equal implements the cut-off.
func (r ResolvedGlobalInfo) Equal(other ResolvedGlobalInfo) bool {
	return r.Type == other.Type && r.Annotated == other.Annotated
}

type resolvedGlobalsBridge struct {
	unannotated *UnannotatedGlobalsLayer
	annotated   *AnnotatedGlobalsLayer
	reader      UnannotatedTypeReader
}

func (b *resolvedGlobalsBridge) Recompute(ctx depkey.Context, key GlobalKey) (ResolvedGlobalInfo, error) {
	info, err := b.unannotated.Get(ctx, key)
	if err != nil {
		return ResolvedGlobalInfo{}, fmt.Errorf("resolved global %s: %w", key, err)
	}
	if info.Kind == KindAbsent {
		return ResolvedGlobalInfo{}, nil
	}

	if ann, err := b.annotated.Get(ctx, key); err != nil {
		return ResolvedGlobalInfo{}, fmt.Errorf("resolved global %s: %w", key, err)
	} else if ann.Present {
		return ResolvedGlobalInfo{Type: ann.Annotation, Annotated: true}, nil
	}

	t, err := b.reader.InferredType(ctx, key.Module, key.Name)
	if err != nil {
		return ResolvedGlobalInfo{}, fmt.Errorf("resolved global %s: infer type: %w", key, err)
	}
	return ResolvedGlobalInfo{Type: t}, nil
}

// ResolvedGlobalsLayer merges the unannotated-globals and annotated-globals layers: an explicit
// annotation always wins, otherwise the type is inferred from the unannotated initializer.
type ResolvedGlobalsLayer struct {
	*layer.Layer[GlobalKey, ResolvedGlobalInfo]
}

// NewResolvedGlobalsLayer builds the resolved-globals layer above unannotated and annotated.
func NewResolvedGlobalsLayer(
	registry *depkey.Registry,
	unannotated *UnannotatedGlobalsLayer,
	annotated *AnnotatedGlobalsLayer,
	reader UnannotatedTypeReader,
	s scheduler.Scheduler,
) *ResolvedGlobalsLayer {
	bridge := &resolvedGlobalsBridge{unannotated: unannotated, annotated: annotated, reader: reader}
	equal := func(a, b ResolvedGlobalInfo) bool { return a.Equal(b) }
	l := layer.New[GlobalKey, ResolvedGlobalInfo]("resolved-globals", table.WithCache, equal, bridge, registry, s,
		func(key GlobalKey) depkey.Descriptor { return depkey.TypeOfGlobal{Module: key.Module, Name: key.Name} })
	return &ResolvedGlobalsLayer{Layer: l}
}
