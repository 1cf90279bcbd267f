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

// GlobalKind distinguishes the different top-level bindings the parser layer reports as belonging
// to a module -- a plain variable, a function/method define, a class, or an import alias. A single
// unannotated-globals layer tracks all of them, mirroring how the parser's module summary bundles
// them together.
type GlobalKind int

const (
	// KindSimpleAssign is a plain module-level variable assignment.
	KindSimpleAssign GlobalKind = iota
	// KindFunctionDefine is a function or method definition.
	KindFunctionDefine
	// KindClassDefine is a class definition.
	KindClassDefine
	// KindImportAlias is a module-level import alias.
	KindImportAlias
	// KindAbsent means the name is not presently bound in the module (including modules that no
	// longer exist).
	KindAbsent
)

// GlobalKey identifies a single top-level binding: its containing module and its local name.
type GlobalKey struct {
	Module string
	Name   string
}

func (k GlobalKey) String() string { return fmt.Sprintf("%s.%s", k.Module, k.Name) }

// UnannotatedGlobalInfo is the unannotated-globals layer's value: what kind of binding a name is,
// with no reference yet made to any explicit type annotation it might carry.
type UnannotatedGlobalInfo struct {
	Kind GlobalKind
}

// Equal implements the layer's cut-off: two infos are equal iff they describe the same kind of
// binding.
func (i UnannotatedGlobalInfo) Equal(other UnannotatedGlobalInfo) bool { return i.Kind == other.Kind }

type unannotatedGlobalsBridge struct {
	parser *ParserLayer
}

func (b *unannotatedGlobalsBridge) Recompute(ctx depkey.Context, key GlobalKey) (UnannotatedGlobalInfo, error) {
	summary, err := b.parser.Get(ctx, key.Module)
	if err != nil {
		return UnannotatedGlobalInfo{}, fmt.Errorf("unannotated global %s: read module %q: %w", key, key.Module, err)
	}
	switch {
	case slices.Contains(summary.Defines, key.Name):
		return UnannotatedGlobalInfo{Kind: KindFunctionDefine}, nil
	case slices.Contains(summary.Classes, key.Name):
		return UnannotatedGlobalInfo{Kind: KindClassDefine}, nil
	case slices.Contains(summary.Globals, key.Name):
		return UnannotatedGlobalInfo{Kind: KindSimpleAssign}, nil
	case slices.Contains(summary.Aliases, key.Name):
		return UnannotatedGlobalInfo{Kind: KindImportAlias}, nil
	default:
		return UnannotatedGlobalInfo{Kind: KindAbsent}, nil
	}
}

// UnannotatedGlobalsLayer is the layer directly above the parser: for every top-level name in a
// module (variable, function, class, or alias), it records what kind of binding it is. This is
// the layer the recheck driver consults as the "unannotated-global read view" to translate a bare
// qualified define name back to its containing module.
type UnannotatedGlobalsLayer struct {
	*layer.Layer[GlobalKey, UnannotatedGlobalInfo]
}

// NewUnannotatedGlobalsLayer builds the layer directly above parser.
func NewUnannotatedGlobalsLayer(registry *depkey.Registry, parser *ParserLayer, s scheduler.Scheduler) *UnannotatedGlobalsLayer {
	bridge := &unannotatedGlobalsBridge{parser: parser}
	equal := func(a, b UnannotatedGlobalInfo) bool { return a.Equal(b) }
	l := layer.New[GlobalKey, UnannotatedGlobalInfo]("unannotated-globals", table.WithCache, equal, bridge, registry, s,
		func(key GlobalKey) depkey.Descriptor { return depkey.UnannotatedGlobal{Module: key.Module, Name: key.Name} })
	return &UnannotatedGlobalsLayer{Layer: l}
}

// GetFunctionDefinition is the engine's "unannotated-global read view": given a qualified define
// name (module, name), it reports the module ("qualifier") the define belongs to, provided the
// name really is presently bound as a function define in that module.
func (u *UnannotatedGlobalsLayer) GetFunctionDefinition(module, name string) (qualifier string, ok bool) {
	info, err := u.Get(depkey.Context{}, GlobalKey{Module: module, Name: name})
	if err != nil || info.Kind != KindFunctionDefine {
		return "", false
	}
	return module, true
}
