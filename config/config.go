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

// Package config defines the engine's user-facing configuration surface: the tunables a driver
// reads from a YAML file (or constructs programmatically for tests) to build its scheduler.Policy.
// Per-layer caching is not configured here: every layer's cache mode is fixed where the layer is
// constructed.
package config

import (
	"fmt"
	"os"

	"go.uber.org/increcheck/scheduler"
	"gopkg.in/yaml.v3"
)

// Config is the top-level, YAML-serializable configuration for a recheck driver instance.
type Config struct {
	// Scheduling controls how batches of keys are split across workers for recomputation.
	Scheduling SchedulingConfig `yaml:"scheduling"`
	// Logging holds structured-logger settings. Nothing in this module reads them: the recheck
	// driver logs through its own Logger field.
	Logging LoggingConfig `yaml:"logging"`
}

// SchedulingConfig mirrors scheduler.Policy in a form that can round-trip through YAML.
type SchedulingConfig struct {
	Workers                  int `yaml:"workers"`
	MinChunksPerWorker       int `yaml:"min_chunks_per_worker"`
	PreferredChunksPerWorker int `yaml:"preferred_chunks_per_worker"`
	MinChunkSize             int `yaml:"min_chunk_size"`
}

// Policy converts SchedulingConfig into a scheduler.Policy, substituting scheduler.DefaultPolicy's
// values for any field left at its YAML zero value.
func (s SchedulingConfig) Policy() scheduler.Policy {
	def := scheduler.DefaultPolicy()
	policy := scheduler.Policy{
		Workers:                  s.Workers,
		MinChunksPerWorker:       s.MinChunksPerWorker,
		PreferredChunksPerWorker: s.PreferredChunksPerWorker,
		MinChunkSize:             s.MinChunkSize,
	}
	if policy.Workers == 0 {
		policy.Workers = def.Workers
	}
	if policy.MinChunksPerWorker == 0 {
		policy.MinChunksPerWorker = def.MinChunksPerWorker
	}
	if policy.PreferredChunksPerWorker == 0 {
		policy.PreferredChunksPerWorker = def.PreferredChunksPerWorker
	}
	if policy.MinChunkSize == 0 {
		policy.MinChunkSize = def.MinChunkSize
	}
	return policy
}

// LoggingConfig describes a zap logger's level and encoding. No code in this module constructs a
// logger from it.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Empty defaults to "info".
	Level string `yaml:"level"`
	// Development switches to zap's human-readable console encoder instead of JSON.
	Development bool `yaml:"development"`
}

// Default returns the Config used when a driver is given no override file.
func Default() Config {
	return Config{
		Scheduling: SchedulingConfig{
			Workers:                  0,
			MinChunksPerWorker:       1,
			PreferredChunksPerWorker: 4,
			MinChunkSize:             16,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and parses a Config from path. Any field absent from the file keeps Default's value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
