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

// Package errortable holds the engine's persistent diagnostic store: the drop-then-append table
// the recheck driver reconciles after every post-processing pass, so that a module's stale
// diagnostics never outlive the recheck that invalidated them.
package errortable

import (
	"cmp"
	"fmt"
	"go/token"
	"slices"
	"strings"
	"sync"

	"go.uber.org/increcheck/config"
)

// Diagnostic is a single reported finding, attributed to the module it was raised in.
type Diagnostic struct {
	Module   string
	Position token.Position
	Message  string
}

// String renders d as "file:line:col: message" for human-readable output, trimming the file's
// path down to its innermost config.DirLevelsToPrintForTriggers enclosing directories -- enough
// to disambiguate the file without the noise of its full path.
func (d Diagnostic) String() string {
	pos := truncatePosition(d.Position)
	return fmt.Sprintf("%s:%d:%d: %s", pos.Filename, pos.Line, pos.Column, d.Message)
}

// truncatePosition shortens position's filename to its file name plus its innermost
// config.DirLevelsToPrintForTriggers enclosing directories.
func truncatePosition(position token.Position) token.Position {
	position.Filename = portionAfterSep(position.Filename, "/", config.DirLevelsToPrintForTriggers)
	return position
}

// portionAfterSep keeps the last occ+1 sep-delimited segments of input, returning input unchanged
// if it has too few segments to trim.
func portionAfterSep(input, sep string, occ int) string {
	splits := strings.Split(input, sep)
	n := len(splits)
	if n <= occ+1 {
		return input
	}
	var b strings.Builder
	for i := n - (1 + occ); i < n; i++ {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(splits[i])
	}
	return b.String()
}

// ErrorTable is the module-keyed store of live diagnostics. It is safe for concurrent use.
type ErrorTable struct {
	mu       sync.RWMutex
	byModule map[string][]Diagnostic
}

// New creates an empty ErrorTable.
func New() *ErrorTable {
	return &ErrorTable{byModule: make(map[string][]Diagnostic)}
}

// Reconcile drops every previously-recorded diagnostic for each module in modules, then appends
// fresh in their place. A module named in modules but absent from fresh simply ends up with no
// diagnostics -- this is how a module whose errors were all fixed, or that was deleted, has its
// stale entries cleared.
func (t *ErrorTable) Reconcile(modules []string, fresh []Diagnostic) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, module := range modules {
		delete(t.byModule, module)
	}
	for _, d := range fresh {
		t.byModule[d.Module] = append(t.byModule[d.Module], d)
	}
}

// Diagnostics returns the live diagnostics for a single module.
func (t *ErrorTable) Diagnostics(module string) []Diagnostic {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.byModule[module])
}

// All returns every live diagnostic across every module, sorted by file name and then by offset
// within the file for stable, readable output.
func (t *ErrorTable) All() []Diagnostic {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var all []Diagnostic
	for _, ds := range t.byModule {
		all = append(all, ds...)
	}
	slices.SortFunc(all, func(a, b Diagnostic) int {
		if n := cmp.Compare(a.Position.Filename, b.Position.Filename); n != 0 {
			return n
		}
		return cmp.Compare(a.Position.Offset, b.Position.Offset)
	})
	return all
}

// ModuleCount reports how many modules currently have at least one live diagnostic.
func (t *ErrorTable) ModuleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byModule)
}
