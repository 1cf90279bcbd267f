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

// Package depkey implements the dependency descriptor registry: the component responsible for
// interning the units of work that a Table records as consumers of a key, and for reassembling
// them into a concrete set of module names a driver must recheck.
//
// A Descriptor names the unit of work that is reading a Table entry -- a module's top-level
// parse, a single global's type, a single function's re-inference, and so on. Descriptors are
// interned into small Handles by a Registry so that Tables never need to store (and compare)
// full Descriptor values for every dependency edge they record.
package depkey

import "fmt"

// Descriptor names a unit of incremental work. Implementations should be small, comparable
// structs (directly usable as map keys) -- keep them compact, since a Table may record one of
// these for every key/consumer edge it tracks.
type Descriptor interface {
	fmt.Stringer

	// module returns the module this unit of work belongs to, used by the recheck driver to
	// translate a set of triggered handles back into a set of modules.
	module() string
}

// AstParse identifies the unit of work that parses a module and registers its top-level bindings
// (functions, classes, globals, aliases) with the environment layers above it.
type AstParse struct {
	Module string
}

func (d AstParse) String() string { return fmt.Sprintf("AstParse(%s)", d.Module) }
func (d AstParse) module() string { return d.Module }

// UnannotatedGlobal identifies the unit of work that reads a single global's type as guessed from
// its unannotated declaration, before any explicit annotation is taken into account.
type UnannotatedGlobal struct {
	Module string
	Name   string
}

func (d UnannotatedGlobal) String() string {
	return fmt.Sprintf("UnannotatedGlobal(%s.%s)", d.Module, d.Name)
}
func (d UnannotatedGlobal) module() string { return d.Module }

// ClassSummary identifies the unit of work that reads a single class's resolved method-resolution
// order and attribute set from the class-hierarchy layer.
type ClassSummary struct {
	Module string
	Class  string
}

func (d ClassSummary) String() string { return fmt.Sprintf("ClassSummary(%s.%s)", d.Module, d.Class) }
func (d ClassSummary) module() string { return d.Module }

// AnnotatedGlobal identifies the unit of work that reads a single global's explicit annotation (if
// any was written), independent of what its unannotated type would have been guessed as.
type AnnotatedGlobal struct {
	Module string
	Name   string
}

func (d AnnotatedGlobal) String() string {
	return fmt.Sprintf("AnnotatedGlobal(%s.%s)", d.Module, d.Name)
}
func (d AnnotatedGlobal) module() string { return d.Module }

// TypeOfGlobal identifies the unit of work that reads a single global's fully resolved type --
// the merge of its unannotated guess and its explicit annotation, whichever the resolution policy
// prefers.
type TypeOfGlobal struct {
	Module string
	Name   string
}

func (d TypeOfGlobal) String() string { return fmt.Sprintf("TypeOfGlobal(%s.%s)", d.Module, d.Name) }
func (d TypeOfGlobal) module() string { return d.Module }

// TypeCheckDefine identifies the unit of work that runs type inference over a single function,
// method, or other top-level callable -- a "define", the smallest unit of re-inference.
type TypeCheckDefine struct {
	Module string
	Name   string
}

func (d TypeCheckDefine) String() string {
	return fmt.Sprintf("TypeCheckDefine(%s.%s)", d.Module, d.Name)
}
func (d TypeCheckDefine) module() string { return d.Module }

// ModuleAlias identifies the unit of work that resolves a single module-level alias -- a
// layer-private kind used only by the resolved-globals layer.
type ModuleAlias struct {
	Module string
	Name   string
}

func (d ModuleAlias) String() string { return fmt.Sprintf("ModuleAlias(%s.%s)", d.Module, d.Name) }
func (d ModuleAlias) module() string { return d.Module }

// Wildcard identifies the unit of work that depends on the complete set of top-level names
// exported by a module, rather than any single name -- used for star imports. Another
// layer-private kind.
type Wildcard struct {
	Module string
}

func (d Wildcard) String() string { return fmt.Sprintf("Wildcard(%s)", d.Module) }
func (d Wildcard) module() string { return d.Module }
