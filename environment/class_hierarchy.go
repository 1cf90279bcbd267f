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
	"slices"

	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

// ClassHierarchyInfo is the class-hierarchy layer's value: the resolved method-resolution order
// for a class, as reported by the external class-summary reader.
type ClassHierarchyInfo struct {
	MRO []string
}

// Equal implements the cut-off: MRO order matters, so this is an ordered comparison.
func (c ClassHierarchyInfo) Equal(other ClassHierarchyInfo) bool {
	return slices.Equal(c.MRO, other.MRO)
}

// ClassReader is the external collaborator that computes a class's base classes from its parsed
// AST. The class-hierarchy layer composes base-class lookups into a full method-resolution order,
// but relies on this narrow interface for the per-class raw bases, since computing them requires
// reading the actual class statement out of the module's AST -- out of scope for this engine.
type ClassReader interface {
	Bases(ctx depkey.Context, module, class string) ([]string, error)
}

type classHierarchyBridge struct {
	parser *ParserLayer
	reader ClassReader
	self   func() *ClassHierarchyLayer
}

func (b *classHierarchyBridge) Recompute(ctx depkey.Context, key GlobalKey) (ClassHierarchyInfo, error) {
	summary, err := b.parser.Get(ctx, key.Module)
	if err != nil {
		return ClassHierarchyInfo{}, fmt.Errorf("class %s: read module %q: %w", key, key.Module, err)
	}
	if !slices.Contains(summary.Classes, key.Name) {
		return ClassHierarchyInfo{}, nil
	}

	bases, err := b.reader.Bases(ctx, key.Module, key.Name)
	if err != nil {
		return ClassHierarchyInfo{}, fmt.Errorf("class %s: read bases: %w", key, err)
	}

	mro := []string{key.Name}
	for _, base := range bases {
		baseInfo, err := b.self().Get(ctx, GlobalKey{Module: key.Module, Name: base})
		if err != nil {
			return ClassHierarchyInfo{}, fmt.Errorf("class %s: resolve base %q: %w", key, base, err)
		}
		for _, ancestor := range baseInfo.MRO {
			if !slices.Contains(mro, ancestor) {
				mro = append(mro, ancestor)
			}
		}
	}
	return ClassHierarchyInfo{MRO: mro}, nil
}

// ClassHierarchyLayer resolves each class's full method-resolution order, recursively depending on
// its base classes' own entries in the same layer.
type ClassHierarchyLayer struct {
	*layer.Layer[GlobalKey, ClassHierarchyInfo]
}

// NewClassHierarchyLayer builds the class-hierarchy layer on top of parser.
func NewClassHierarchyLayer(registry *depkey.Registry, parser *ParserLayer, reader ClassReader, s scheduler.Scheduler) *ClassHierarchyLayer {
	bridge := &classHierarchyBridge{parser: parser, reader: reader}
	equal := func(a, b ClassHierarchyInfo) bool { return a.Equal(b) }
	result := &ClassHierarchyLayer{}
	l := layer.New[GlobalKey, ClassHierarchyInfo]("class-hierarchy", table.WithCache, equal, bridge, registry, s,
		func(key GlobalKey) depkey.Descriptor { return depkey.ClassSummary{Module: key.Module, Class: key.Name} })
	bridge.self = func() *ClassHierarchyLayer { return result }
	result.Layer = l
	return result
}
