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

// Package hashmap exposes the spill-capable join hash tables built on
// pkg/container/hashtable and pkg/spill. A Hybrid keeps one sub-table
// per spill partition, so evicting a partition under memory pressure
// is flushing that sub-table to its segment and dropping it whole.
// Lookups come back tri-state: match, no match, or "the key's
// partition is on disk, defer this row".
package hashmap

import (
	"github.com/vexdb/vexec/pkg/config"
	"github.com/vexdb/vexec/pkg/container/hashtable"
	"github.com/vexdb/vexec/pkg/spill"
)

// Kind selects the table semantics.
type Kind int8

const (
	// MapTable binds each key to a single value, first-write-wins.
	MapTable Kind = iota
	// MultimapTable binds each key to all inserted values in order.
	MultimapTable
	// SetTable records presence only.
	SetTable
	// MultisetTable records presence with multiplicity.
	MultisetTable
)

func (k Kind) String() string {
	switch k {
	case MapTable:
		return "map"
	case MultimapTable:
		return "multimap"
	case SetTable:
		return "set"
	case MultisetTable:
		return "multiset"
	default:
		return "unknown"
	}
}

// Config sizes one hybrid container.
type Config struct {
	Kind Kind

	// MemoryBudget is the resident byte ceiling; exceeding it is the
	// sole spill trigger.
	MemoryBudget int64

	// Partitions is the spill fan-out at generation zero,
	// SubPartitions the fan-out of every repartitioned reload.
	Partitions    int32
	SubPartitions int32

	// MaxRecursion caps repartitioned reloads; a partition still over
	// budget past the cap fails the join with a capacity error.
	MaxRecursion int32

	SpillPath string
	Compress  bool

	generation int32
}

// FromEngine derives a container config from the engine configuration.
func FromEngine(kind Kind, ec *config.EngineConfig) Config {
	return Config{
		Kind:          kind,
		MemoryBudget:  ec.MemoryBudget,
		Partitions:    ec.SpillPartitionCount,
		SubPartitions: ec.SpillSubPartitionCount,
		MaxRecursion:  ec.MaxSpillRecursion,
		SpillPath:     ec.SpillPath,
		Compress:      ec.SpillCompression,
	}
}

// entryOverhead approximates the per-entry bookkeeping bytes (cell,
// refs) on top of the raw key and value.
const entryOverhead = 64

// EntryCost is the resident-byte estimate one inserted (key, value)
// pair is accounted with against the memory budget.
func EntryCost(key, value []byte) int64 {
	return entryOverhead + int64(len(key)) + int64(len(value))
}

// subTable adapts one pkg/container/hashtable variant to the hybrid
// container. put reports whether the pair occupied new storage (a
// duplicate map/set key does not).
type subTable interface {
	put(key, value []byte) bool
	lookup(key []byte, r *hashtable.JoinResult)
	flush(w *spill.SegmentWriter) error
	count() uint64
	size() int64
	free()
}

func newSubTable(kind Kind) subTable {
	switch kind {
	case MapTable:
		return &mapSub{t: hashtable.NewBytesHashMap()}
	case MultimapTable:
		return &multimapSub{t: hashtable.NewBytesHashMultimap()}
	case SetTable:
		return &setSub{t: hashtable.NewBytesHashSet()}
	case MultisetTable:
		return &multisetSub{t: hashtable.NewBytesHashMultiset()}
	default:
		panic("unknown table kind")
	}
}
