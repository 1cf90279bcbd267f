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

package recheck

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.uber.org/increcheck/config"
	"go.uber.org/increcheck/depkey"
	"go.uber.org/increcheck/environment"
	"go.uber.org/increcheck/errortable"
	"go.uber.org/increcheck/scheduler"
)

// Driver wires together the collaborators a recheck needs: the environment stack it walks, the
// error table it reconciles, and the three narrow external seams the engine itself never
// implements.
type Driver struct {
	Config    config.Config
	Scheduler scheduler.Scheduler
	Env       *environment.Stack
	Errors    *errortable.ErrorTable
	Runtime   SharedMemoryRuntime
	Inference TypeInferencePass
	PostProc  Postprocessing
	Logger    *zap.Logger
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// Recheck runs one full incremental recheck cycle for the given batch of changed artifact paths,
// returning the modules that were post-processed and the diagnostics produced for them. A panic
// from any collaborator (the engine's own bug, or an external one) is recovered and converted into
// an error rather than taking down the host process, mirroring the teacher's deferred-recover
// panic-safety convention.
func (d *Driver) Recheck(ctx context.Context, paths []string) (modules []string, diagnostics []errortable.Diagnostic, err error) {
	log := d.logger()
	defer func() {
		if r := recover(); r != nil {
			trace := internalStackFrames(debug.Stack())
			log.Error("recheck panicked", zap.Any("panic", r), zap.String("stack", trace))
			err = fmt.Errorf("recheck: internal panic: %v\n%s", r, trace)
		}
	}()
	log.Debug("recheck starting", zap.Int("paths", len(paths)))
	d.Runtime.InvalidateCaches()

	update, err := d.Env.UpdateThisAndAllPrecedingEnvironments(ctx, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("update environment stack: %w", err)
	}

	triggers := make(map[environment.GlobalKey]depkey.Handle)
	registry := d.Env.Registry()
	for _, h := range update.Chain.AllTriggered() {
		descriptor, ok := registry.Lookup(h)
		if !ok {
			continue
		}
		define, ok := descriptor.(depkey.TypeCheckDefine)
		if !ok {
			continue
		}
		key := environment.GlobalKey{Module: define.Module, Name: define.Name}
		if _, exists := triggers[key]; !exists {
			triggers[key] = h
		}
	}

	for _, qualified := range update.DefineAdditions {
		module, name, ok := splitQualifiedName(qualified)
		if !ok {
			continue
		}
		key := environment.GlobalKey{Module: module, Name: name}
		h := registry.Intern(depkey.TypeCheckDefine{Module: module, Name: name})
		triggers[key] = h
	}

	// Re-infer the triggered defines, then chase any callers that read one of their signatures
	// and so must themselves be re-inferred in this same recheck (e.g. a changed return type
	// propagating to a caller). Each round only re-infers defines newly discovered by the
	// previous one; the round count is bounded since a pathological call graph could otherwise
	// keep discovering new callers indefinitely.
	seen := make(map[environment.GlobalKey]struct{}, len(triggers))
	pending := make([]environment.GlobalKey, 0, len(triggers))
	for key := range triggers {
		seen[key] = struct{}{}
		pending = append(pending, key)
	}

	// A failure partway through re-inference does not by itself prevent post-processing the
	// defines that did get inferred successfully, so its error is joined with post-processing's
	// (if any) into a single non-fatal batch at the end, rather than aborting the recheck outright.
	var inferenceErr error
	for round := 0; len(pending) > 0 && round < config.MaxReinferRounds; round++ {
		roundTriggers := make([]FunctionTrigger, 0, len(pending))
		for _, key := range pending {
			roundTriggers = append(roundTriggers, FunctionTrigger{Key: key, Handle: triggers[key]})
		}

		triggeredHandles, err := d.Env.Types.Reinfer(pending, func() error {
			return d.Inference.PopulateForDefinitions(ctx, d.Scheduler, d.Config, d.Env, roundTriggers)
		})
		if err != nil {
			inferenceErr = fmt.Errorf("re-infer functions (round %d): %w", round, err)
			log.Warn("re-inference round failed", zap.Int("round", round), zap.Error(err))
			break
		}

		next := make([]environment.GlobalKey, 0, len(triggeredHandles))
		for _, h := range triggeredHandles {
			descriptor, ok := registry.Lookup(h)
			if !ok {
				continue
			}
			define, ok := descriptor.(depkey.TypeCheckDefine)
			if !ok {
				continue
			}
			key := environment.GlobalKey{Module: define.Module, Name: define.Name}
			if _, already := seen[key]; already {
				continue
			}
			seen[key] = struct{}{}
			triggers[key] = h
			next = append(next, key)
		}
		pending = next
	}

	moduleSet := make(map[string]struct{}, len(update.InvalidatedModules)+len(triggers))
	for _, m := range update.InvalidatedModules {
		moduleSet[m] = struct{}{}
	}
	for key := range triggers {
		if qualifier, ok := d.Env.Unannotated.GetFunctionDefinition(key.Module, key.Name); ok {
			moduleSet[qualifier] = struct{}{}
		}
	}

	modules = make([]string, 0, len(moduleSet))
	for m := range moduleSet {
		modules = append(modules, m)
	}

	diagnostics, postErr := d.PostProc.Run(ctx, d.Scheduler, d.Config, d.Env, modules)
	if postErr != nil {
		postErr = fmt.Errorf("run post-processing: %w", postErr)
	}

	if err := multierr.Append(inferenceErr, postErr); err != nil {
		log.Warn("recheck completed with errors", zap.Int("modules", len(modules)), zap.Error(err))
		return modules, diagnostics, err
	}

	d.Errors.Reconcile(modules, diagnostics)
	log.Debug("recheck completed", zap.Int("modules", len(modules)), zap.Int("diagnostics", len(diagnostics)))
	return modules, diagnostics, nil
}

// internalStackFrames keeps only the stack-trace lines that name a frame inside the engine's own
// packages (config.EnginePkgPathPrefix), so a recovered panic's trace highlights where in the
// engine itself things went wrong instead of the runtime/goroutine scaffolding around it. If no
// such frame is found, the full trace is returned unfiltered.
func internalStackFrames(stack []byte) string {
	var kept []string
	for _, line := range strings.Split(string(stack), "\n") {
		if strings.Contains(line, config.EnginePkgPathPrefix) {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	if len(kept) == 0 {
		return string(stack)
	}
	return strings.Join(kept, "\n")
}

// splitQualifiedName splits a "module.name" qualified define name at the last '.', since a module
// path may itself contain dots but a define's local name never does.
func splitQualifiedName(qualified string) (module, name string, ok bool) {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return "", "", false
	}
	return qualified[:i], qualified[i+1:], true
}
