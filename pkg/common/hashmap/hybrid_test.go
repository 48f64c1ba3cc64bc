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

func testConfig(t *testing.T, budget int64) Config {
	return Config{
		MemoryBudget:  budget,
		Partitions:    4,
		SubPartitions: 4,
		MaxRecursion:  4,
		SpillPath:     t.TempDir(),
	}
}

func TestHybridMapNoSpill(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()
	require.Equal(t, MapTable, h.Kind())

	for i := 0; i < 100; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, h.Seal())
	require.True(t, h.Sealed())
	require.False(t, h.HasSpilled())
	require.Equal(t, uint64(100), h.Rows())

	var r hashtable.JoinResult
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Probe([]byte(fmt.Sprintf("key-%d", i)), &r))
		require.Equal(t, hashtable.JoinMatch, r.Outcome())
		v, ok := r.NextValue()
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("val-%d", i)), v)
	}
	require.NoError(t, h.Probe([]byte("absent"), &r))
	require.Equal(t, hashtable.JoinNoMatch, r.Outcome())
}

func TestHybridMapSpillTriState(t *testing.T) {
	// each entry costs ~70 bytes; 50 entries blow a 1 KiB budget
	h, err := NewHybridMap(testConfig(t, 1024))
	require.NoError(t, err)
	defer h.Free()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, h.Seal())
	require.True(t, h.HasSpilled())
	require.LessOrEqual(t, h.Size(), int64(1024))

	var r hashtable.JoinResult
	matched, spilled := 0, 0
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		require.NoError(t, h.Probe(key, &r))
		switch r.Outcome() {
		case hashtable.JoinMatch:
			matched++
			v, ok := r.NextValue()
			require.True(t, ok)
			require.Equal(t, []byte(fmt.Sprintf("val-%d", i)), v)
		case hashtable.JoinSpill:
			spilled++
			// the reported partition is the key's own, and it is spilled
			require.Equal(t, h.Partitioner().PartitionOf(key), r.Partition())
			require.True(t, h.Partitioner().IsSpilled(r.Partition()))
		default:
			t.Fatalf("key-%d: unexpected NOMATCH for an inserted key", i)
		}
	}
	require.Equal(t, n, matched+spilled)
	require.Greater(t, spilled, 0)
	require.Greater(t, matched, 0, "budget holds at least one resident partition")

	// a key that was never inserted either misses or defers, it never matches
	for i := 0; i < n; i++ {
		require.NoError(t, h.Probe([]byte(fmt.Sprintf("ghost-%d", i)), &r))
		require.NotEqual(t, hashtable.JoinMatch, r.Outcome())
	}
}

// Budget sized for exactly two entries: the third insert must evict
// exactly one partition, and probes stay consistent afterwards.
func TestHybridMapBudgetHoldsTwoEntries(t *testing.T) {
	cost := EntryCost([]byte("A"), []byte("1"))
	h, err := NewHybridMap(testConfig(t, 2*cost))
	require.NoError(t, err)
	defer h.Free()

	require.NoError(t, h.Put([]byte("A"), []byte("1")))
	require.NoError(t, h.Put([]byte("B"), []byte("2")))
	require.NoError(t, h.Put([]byte("C"), []byte("3")))
	require.NoError(t, h.Seal())

	require.Len(t, h.SpilledPartitions(), 1)
	spilledPid := h.SpilledPartitions()[0]

	var r hashtable.JoinResult
	values := map[string]string{"A": "1", "B": "2", "C": "3"}
	for key, val := range values {
		pid := h.Partitioner().PartitionOf([]byte(key))
		// the same probe answers identically every time
		for i := 0; i < 3; i++ {
			require.NoError(t, h.Probe([]byte(key), &r))
			if pid == spilledPid {
				require.Equal(t, hashtable.JoinSpill, r.Outcome())
				require.Equal(t, spilledPid, r.Partition())
			} else {
				require.Equal(t, hashtable.JoinMatch, r.Outcome())
				v, ok := r.NextValue()
				require.True(t, ok)
				require.Equal(t, []byte(val), v)
			}
		}
	}
}

func TestHybridMapFirstWriteWinsAcrossSpill(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()

	require.NoError(t, h.Put([]byte("k"), []byte("first")))
	require.NoError(t, h.Put([]byte("k"), []byte("second")))
	require.NoError(t, h.Seal())

	var r hashtable.JoinResult
	require.NoError(t, h.Probe([]byte("k"), &r))
	require.Equal(t, hashtable.JoinMatch, r.Outcome())
	v, _ := r.NextValue()
	require.Equal(t, []byte("first"), v)
}

func TestHybridMultimap(t *testing.T) {
	h, err := NewHybridMultimap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()

	require.NoError(t, h.Put([]byte("k"), []byte("1")))
	require.NoError(t, h.Put([]byte("k"), []byte("2")))
	require.NoError(t, h.Put([]byte("k"), []byte("3")))
	require.NoError(t, h.Seal())

	var r hashtable.JoinResult
	require.NoError(t, h.Probe([]byte("k"), &r))
	require.Equal(t, hashtable.JoinMatch, r.Outcome())
	require.Equal(t, uint64(3), r.Multiplicity())
	var got [][]byte
	for {
		v, ok := r.NextValue()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, got)
}

func TestHybridSetAndMultiset(t *testing.T) {
	s, err := NewHybridSet(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer s.Free()
	require.NoError(t, s.Put([]byte("a"), nil))
	require.NoError(t, s.Put([]byte("a"), nil))
	require.NoError(t, s.Seal())

	var r hashtable.JoinResult
	require.NoError(t, s.Contains([]byte("a"), &r))
	require.Equal(t, hashtable.JoinMatch, r.Outcome())
	require.Equal(t, uint64(1), r.Multiplicity())

	ms, err := NewHybridMultiset(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer ms.Free()
	require.NoError(t, ms.Put([]byte("a"), nil))
	require.NoError(t, ms.Put([]byte("a"), nil))
	require.NoError(t, ms.Seal())

	require.NoError(t, ms.Contains([]byte("a"), &r))
	require.Equal(t, hashtable.JoinMatch, r.Outcome())
	require.Equal(t, uint64(2), r.Multiplicity())
	require.NoError(t, ms.Contains([]byte("b"), &r))
	require.Equal(t, hashtable.JoinNoMatch, r.Outcome())
}

func TestHybridKindMismatch(t *testing.T) {
	m, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer m.Free()
	require.NoError(t, m.Seal())

	var r hashtable.JoinResult
	require.True(t, vexerr.IsInvariant(m.Contains([]byte("k"), &r)))

	s, err := NewHybridSet(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer s.Free()
	require.NoError(t, s.Seal())
	require.True(t, vexerr.IsInvariant(s.Probe([]byte("k"), &r)))
}

func TestHybridProbeBeforeSeal(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()
	require.NoError(t, h.Put([]byte("k"), []byte("v")))

	var r hashtable.JoinResult
	require.True(t, vexerr.IsNotSealed(h.Probe([]byte("k"), &r)))
}

func TestHybridPutAfterSeal(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()
	require.NoError(t, h.Seal())
	require.True(t, vexerr.IsInvariant(h.Put([]byte("k"), []byte("v"))))
}

func TestHybridRejectsEmptyKey(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1<<20))
	require.NoError(t, err)
	defer h.Free()
	require.True(t, vexerr.IsInvariant(h.Put(nil, []byte("v"))))
	require.True(t, vexerr.IsInvariant(h.Put([]byte{}, []byte("v"))))
}

func TestHybridNeedsTwoPartitions(t *testing.T) {
	cfg := testConfig(t, 1<<20)
	cfg.Partitions = 1
	_, err := NewHybridMap(cfg)
	require.True(t, vexerr.IsInvariant(err))
}

func TestHybridSealIdempotent(t *testing.T) {
	h, err := NewHybridMap(testConfig(t, 1024))
	require.NoError(t, err)
	defer h.Free()
	for i := 0; i < 50; i++ {
		require.NoError(t, h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v")))
	}
	require.NoError(t, h.Seal())
	require.NoError(t, h.Seal())
}

func TestEntryCost(t *testing.T) {
	require.Equal(t, int64(entryOverhead), EntryCost(nil, nil))
	require.Equal(t, int64(entryOverhead+5+3), EntryCost([]byte("12345"), []byte("abc")))
}
