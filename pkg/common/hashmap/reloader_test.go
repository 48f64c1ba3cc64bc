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

package hashmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/container/hashtable"
)

// buildSpilledMap builds a map that is guaranteed to have spilled
// partitions and returns it together with the keys whose probe was
// deferred, grouped by partition.
func buildSpilledMap(t *testing.T, n int, budget int64) (*Hybrid, map[int32][]string) {
	h, err := NewHybridMap(testConfig(t, budget))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, h.Seal())
	require.True(t, h.HasSpilled())

	deferred := make(map[int32][]string)
	var r hashtable.JoinResult
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, h.Probe([]byte(key), &r))
		if r.Outcome() == hashtable.JoinSpill {
			deferred[r.Partition()] = append(deferred[r.Partition()], key)
		}
	}
	require.NotEmpty(t, deferred)
	return h, deferred
}

func TestReloadResolvesDeferredKeys(t *testing.T) {
	h, deferred := buildSpilledMap(t, 50, 2048)
	defer h.Free()

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	var r hashtable.JoinResult
	for pid, keys := range deferred {
		child, err := reloader.Reload(pid)
		require.NoError(t, err)

		// one parent partition fits after fanning out again
		require.False(t, child.HasSpilled())

		for _, key := range keys {
			require.NoError(t, child.Probe([]byte(key), &r))
			require.Equal(t, hashtable.JoinMatch, r.Outcome(), "key %s", key)
			v, ok := r.NextValue()
			require.True(t, ok)
			require.Equal(t, "val-"+key[len("key-"):], string(v))
		}
		// a key from another partition is simply absent here
		require.NoError(t, child.Probe([]byte("ghost"), &r))
		require.Equal(t, hashtable.JoinNoMatch, r.Outcome())

		child.Free()
		require.NoError(t, reloader.Discard(pid))
	}
}

func TestReloadPreservesFirstWriteWins(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 2048))
	require.NoError(t, err)
	defer h.Free()

	// duplicate every key; the first value must survive spill and reload
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("first")))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("second")))
	}
	require.NoError(t, h.Seal())
	require.True(t, h.HasSpilled())

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	var r hashtable.JoinResult
	for _, pid := range h.SpilledPartitions() {
		child, err := reloader.Reload(pid)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			key := []byte(fmt.Sprintf("key-%d", i))
			if h.Partitioner().PartitionOf(key) != pid {
				continue
			}
			require.NoError(t, child.Probe(key, &r))
			require.Equal(t, hashtable.JoinMatch, r.Outcome())
			v, _ := r.NextValue()
			require.Equal(t, []byte("first"), v)
		}
		child.Free()
	}
}

func TestReloadMultisetMultiplicity(t *testing.T) {
	h, err := NewHybridMultiset(testConfig(t, 3072))
	require.NoError(t, err)
	defer h.Free()

	const n = 30
	for rep := 0; rep < 3; rep++ {
		for i := 0; i < n; i++ {
			require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), nil))
		}
	}
	require.NoError(t, h.Seal())
	require.True(t, h.HasSpilled())

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	var r hashtable.JoinResult
	for _, pid := range h.SpilledPartitions() {
		child, err := reloader.Reload(pid)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			key := []byte(fmt.Sprintf("key-%d", i))
			if h.Partitioner().PartitionOf(key) != pid {
				continue
			}
			require.NoError(t, child.Contains(key, &r))
			require.Equal(t, hashtable.JoinMatch, r.Outcome())
			require.Equal(t, uint64(3), r.Multiplicity(), "key %s", key)
		}
		child.Free()
	}
}

func TestReloaderRequiresSealed(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()

	_, err = NewPartitionReloader(h)
	require.True(t, vexerr.IsNotSealed(err))
}

func TestReloadWithoutSegment(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()
	require.NoError(t, h.Put([]byte("k"), []byte("v")))
	require.NoError(t, h.Seal())

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	// nothing spilled: every pid is invalid to reload
	for pid := int32(-1); pid <= 4; pid++ {
		_, err := reloader.Reload(pid)
		require.True(t, vexerr.IsInvariant(err), "pid %d", pid)
	}
	require.True(t, vexerr.IsInvariant(reloader.Discard(0)))
}

func TestReloadRecursionCap(t *testing.T) {
	cfg := testConfig(t, 1024)
	cfg.MaxRecursion = 0
	h, err := NewHybridMap(cfg)
	require.NoError(t, err)
	defer h.Free()

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, h.Seal())
	require.True(t, h.HasSpilled())

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	pid := h.SpilledPartitions()[0]
	_, err = reloader.Reload(pid)
	require.True(t, vexerr.IsCapacity(err))
}

func TestDiscardTwice(t *testing.T) {
	h, deferred := buildSpilledMap(t, 50, 1024)
	defer h.Free()
	_ = deferred

	reloader, err := NewPartitionReloader(h)
	require.NoError(t, err)

	pid := h.SpilledPartitions()[0]
	require.NoError(t, reloader.Discard(pid))
	require.True(t, vexerr.IsInvariant(reloader.Discard(pid)))
}
