// Copyright 2024 VexDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/logutil"
)

const (
	// DefaultMemoryBudget bounds the resident build side of one join.
	DefaultMemoryBudget int64 = 256 << 20

	// DefaultSpillPartitionCount is the fan-out of the first spill
	// generation.
	DefaultSpillPartitionCount int32 = 16

	// DefaultSpillSubPartitionCount is the fan-out used when a reloaded
	// partition has to be repartitioned again.
	DefaultSpillSubPartitionCount int32 = 8

	// DefaultMaxSpillRecursion caps how many times a partition may be
	// repartitioned before the join fails with a capacity error.
	DefaultMaxSpillRecursion int32 = 4
)

// EngineConfig carries everything the join hash-table engine reads
// from the environment. Zero values are filled in by SetDefaults.
type EngineConfig struct {
	// MemoryBudget is the byte ceiling for the resident hash table and
	// partition buffers together. Exceeding it is the sole spill
	// trigger.
	MemoryBudget int64 `toml:"memoryBudget"`

	// SpillPath is the directory spill segments are written to.
	SpillPath string `toml:"spillPath"`

	SpillPartitionCount    int32 `toml:"spillPartitionCount"`
	SpillSubPartitionCount int32 `toml:"spillSubPartitionCount"`
	MaxSpillRecursion      int32 `toml:"maxSpillRecursion"`

	// SpillCompression turns on lz4 framing of spill segments.
	SpillCompression bool `toml:"spillCompression"`

	// ProbeParallelism is the worker count of the parallel prober.
	ProbeParallelism int32 `toml:"probeParallelism"`

	Log logutil.LogConfig `toml:"log"`
}

func (c *EngineConfig) SetDefaults() {
	if c.MemoryBudget == 0 {
		c.MemoryBudget = DefaultMemoryBudget
	}
	if c.SpillPath == "" {
		c.SpillPath = os.TempDir()
	}
	if c.SpillPartitionCount == 0 {
		c.SpillPartitionCount = DefaultSpillPartitionCount
	}
	if c.SpillSubPartitionCount == 0 {
		c.SpillSubPartitionCount = DefaultSpillSubPartitionCount
	}
	if c.MaxSpillRecursion == 0 {
		c.MaxSpillRecursion = DefaultMaxSpillRecursion
	}
	if c.ProbeParallelism == 0 {
		c.ProbeParallelism = int32(runtime.NumCPU())
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *EngineConfig) Validate() error {
	if c.MemoryBudget < 0 {
		return vexerr.NewInternal("memory budget must be positive, got %d", c.MemoryBudget)
	}
	if c.SpillPartitionCount < 2 {
		return vexerr.NewInternal("spill partition count must be at least 2, got %d", c.SpillPartitionCount)
	}
	if c.SpillSubPartitionCount < 2 {
		return vexerr.NewInternal("spill sub-partition count must be at least 2, got %d", c.SpillSubPartitionCount)
	}
	if c.MaxSpillRecursion < 1 {
		return vexerr.NewInternal("max spill recursion must be at least 1, got %d", c.MaxSpillRecursion)
	}
	if c.ProbeParallelism < 1 {
		return vexerr.NewInternal("probe parallelism must be at least 1, got %d", c.ProbeParallelism)
	}
	return nil
}

// Load reads a toml configuration file, fills defaults and validates.
func Load(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, vexerr.NewInternal("parse config %s: %v", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
