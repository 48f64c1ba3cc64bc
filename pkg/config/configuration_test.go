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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	var cfg EngineConfig
	cfg.SetDefaults()
	require.Equal(t, DefaultMemoryBudget, cfg.MemoryBudget)
	require.Equal(t, DefaultSpillPartitionCount, cfg.SpillPartitionCount)
	require.Equal(t, DefaultSpillSubPartitionCount, cfg.SpillSubPartitionCount)
	require.Equal(t, DefaultMaxSpillRecursion, cfg.MaxSpillRecursion)
	require.NotEmpty(t, cfg.SpillPath)
	require.GreaterOrEqual(t, cfg.ProbeParallelism, int32(1))
	require.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := EngineConfig{
		MemoryBudget:        1 << 20,
		SpillPartitionCount: 4,
	}
	cfg.SetDefaults()
	require.Equal(t, int64(1<<20), cfg.MemoryBudget)
	require.Equal(t, int32(4), cfg.SpillPartitionCount)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []EngineConfig{
		{MemoryBudget: -1, SpillPartitionCount: 4, SpillSubPartitionCount: 4, MaxSpillRecursion: 1, ProbeParallelism: 1},
		{MemoryBudget: 1, SpillPartitionCount: 1, SpillSubPartitionCount: 4, MaxSpillRecursion: 1, ProbeParallelism: 1},
		{MemoryBudget: 1, SpillPartitionCount: 4, SpillSubPartitionCount: 1, MaxSpillRecursion: 1, ProbeParallelism: 1},
		{MemoryBudget: 1, SpillPartitionCount: 4, SpillSubPartitionCount: 4, MaxSpillRecursion: 0, ProbeParallelism: 1},
		{MemoryBudget: 1, SpillPartitionCount: 4, SpillSubPartitionCount: 4, MaxSpillRecursion: 1, ProbeParallelism: 0},
	}
	for i, cfg := range cases {
		require.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vexec.toml")
	content := `
memoryBudget = 1048576
spillPath = "` + dir + `"
spillPartitionCount = 8
spillCompression = true

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(1048576), cfg.MemoryBudget)
	require.Equal(t, dir, cfg.SpillPath)
	require.Equal(t, int32(8), cfg.SpillPartitionCount)
	require.True(t, cfg.SpillCompression)
	require.Equal(t, "debug", cfg.Log.Level)
	// unset fields come back as defaults
	require.Equal(t, DefaultSpillSubPartitionCount, cfg.SpillSubPartitionCount)
	require.Equal(t, DefaultMaxSpillRecursion, cfg.MaxSpillRecursion)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
