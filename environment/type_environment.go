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
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/layer"
	"go.uber.org/increcheck/scheduler"
	"go.uber.org/increcheck/table"
)

// FunctionAnnotation is the type environment's value: the inferred (or checked) signature for a
// single define, as produced by the external type inference pass. The engine itself never
// computes this; it only tracks when it must be discarded and who depends on it.
type FunctionAnnotation struct {
	Signature string
}

// Equal implements the cut-off.
func (f FunctionAnnotation) Equal(other FunctionAnnotation) bool { return f.Signature == other.Signature }

// identityBridge recomputes nothing: the type environment's values are populated exclusively by
// the external type inference pass via SetAnnotation, inside a driver-managed transaction. A cold
// Get (one that races ahead of any Reinfer call, e.g. in tests) simply returns the zero value,
// since "no annotation yet" is a well-formed state for a define that has not been inferred.
type identityBridge struct{}

func (identityBridge) Recompute(_ depkey.Context, _ GlobalKey) (FunctionAnnotation, error) {
	return FunctionAnnotation{}, nil
}

// TypeEnvironmentLayer is the topmost layer: the per-define annotation cache consulted (and
// invalidated) by the recheck driver, and read by the post-processing pass.
type TypeEnvironmentLayer struct {
	*layer.Layer[GlobalKey, FunctionAnnotation]
}

// NewTypeEnvironmentLayer builds the topmost layer of the stack.
func NewTypeEnvironmentLayer(registry *depkey.Registry, s scheduler.Scheduler) *TypeEnvironmentLayer {
	equal := func(a, b FunctionAnnotation) bool { return a.Equal(b) }
	l := layer.New[GlobalKey, FunctionAnnotation]("type-environment", table.WithCache, equal, identityBridge{}, registry, s,
		func(key GlobalKey) depkey.Descriptor { return depkey.TypeCheckDefine{Module: key.Module, Name: key.Name} })
	return &TypeEnvironmentLayer{Layer: l}
}

// SetAnnotation directly stores the annotation computed for key, bypassing the (trivial) Bridge.
// This is the narrow write-back surface the external type inference pass uses to populate the
// layer; it must be called only from within a Transaction's update closure, between Stage/
// StagePessimistic and Execute returning.
func (t *TypeEnvironmentLayer) SetAnnotation(key GlobalKey, annotation FunctionAnnotation) {
	t.Table().Set(key, annotation)
}

// Reinfer invalidates the cached annotation for every key in keys and repopulates it via populate,
// which is expected to call SetAnnotation for each key before returning (ordinarily by delegating
// to the external type inference pass). It returns the dependency handles recorded as dependents
// of every key whose annotation actually changed.
func (t *TypeEnvironmentLayer) Reinfer(keys []GlobalKey, populate func() error) ([]depkey.Handle, error) {
	tx := t.Table().Open()
	for _, k := range keys {
		tx.Stage(k)
	}
	return tx.Execute(populate)
}
