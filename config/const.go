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

package config

// This file hosts non-user-configurable parameters --- these are for development and testing purposes only.

// DirLevelsToPrintForTriggers controls the number of enclosing directories to print when referring
// to the locations of reported diagnostics - right now it seems as if 1 is sufficient disambiguation,
// but feel free to increase.
const DirLevelsToPrintForTriggers = 1

// EnginePkgPathPrefix is the module path prefix under which the engine's own packages live, used
// when trimming internal frames out of a panic/error report.
const EnginePkgPathPrefix = "go.uber.org/increcheck"

// MaxReinferRounds bounds how many re-inference rounds (the first one included) the recheck driver
// runs within a single recheck call to chase callers whose signature dependency was just
// invalidated (e.g. a changed return type propagating to a caller's own re-inference). It is
// possible to construct a call graph that would keep discovering new triggers for many rounds;
// capping the rounds trades same-cycle precision for a bounded worst-case cost: callers discovered
// by the last allowed round are not re-inferred by that recheck call, and nothing queues them for
// a later one.
const MaxReinferRounds = 5
