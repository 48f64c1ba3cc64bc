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
	"os"

	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/container/hashtable"
	"github.com/vexdb/vexec/pkg/logutil"
	"github.com/vexdb/vexec/pkg/spill"
	"go.uber.org/zap"
)

// Hybrid is a spill-capable join hash table. The build-phase owner
// calls Put and finally Seal; after seal the container is read-only
// and safe for concurrent Probe/Contains from multiple workers, each
// with its own JoinResult cursor. A lookup on a spilled partition does
// not fail: it reports JoinSpill with the partition id so the caller
// can defer the row to a reload pass.
type Hybrid struct {
	cfg    Config
	part   *spill.Partitioner
	tables []subTable
	segs   []*spill.SegmentWriter
	sealed bool
	rows   uint64
}

// NewHybridMap builds an empty MAP container, NewHybridMultimap,
// NewHybridSet and NewHybridMultiset the other variants. cfg.Kind is
// overridden accordingly.
func NewHybridMap(cfg Config) (*Hybrid, error) {
	cfg.Kind = MapTable
	return newHybrid(cfg)
}

func NewHybridMultimap(cfg Config) (*Hybrid, error) {
	cfg.Kind = MultimapTable
	return newHybrid(cfg)
}

func NewHybridSet(cfg Config) (*Hybrid, error) {
	cfg.Kind = SetTable
	return newHybrid(cfg)
}

func NewHybridMultiset(cfg Config) (*Hybrid, error) {
	cfg.Kind = MultisetTable
	return newHybrid(cfg)
}

func newHybrid(cfg Config) (*Hybrid, error) {
	if cfg.Partitions < 2 {
		return nil, vexerr.NewInvariant("hybrid table needs at least 2 partitions, got %d", cfg.Partitions)
	}
	if cfg.SpillPath == "" {
		cfg.SpillPath = os.TempDir()
	}
	if err := os.MkdirAll(cfg.SpillPath, 0o755); err != nil {
		return nil, vexerr.NewCapacity("create spill dir %s: %v", cfg.SpillPath, err)
	}
	h := &Hybrid{
		cfg:    cfg,
		part:   spill.NewPartitioner(cfg.Partitions, cfg.generation, cfg.MemoryBudget),
		tables: make([]subTable, cfg.Partitions),
		segs:   make([]*spill.SegmentWriter, cfg.Partitions),
	}
	for i := range h.tables {
		h.tables[i] = newSubTable(cfg.Kind)
	}
	return h, nil
}

func (h *Hybrid) Kind() Kind {
	return h.cfg.Kind
}

func (h *Hybrid) Sealed() bool {
	return h.sealed
}

// Rows reports all inserted pairs, resident and spilled.
func (h *Hybrid) Rows() uint64 {
	return h.rows
}

// Size reports the resident byte accounting.
func (h *Hybrid) Size() int64 {
	return h.part.ResidentSize()
}

func (h *Hybrid) Partitioner() *spill.Partitioner {
	return h.part
}

func (h *Hybrid) HasSpilled() bool {
	return h.part.HasSpilled()
}

func (h *Hybrid) SpilledPartitions() []int32 {
	return h.part.SpilledPartitions()
}

// Put inserts one pair during the build phase. For set and multiset
// kinds value must be nil. A put that would push the resident size
// over the budget first evicts the largest resident partition; if the
// key's own partition is (or just became) spilled, the pair goes to
// that partition's segment instead of memory.
func (h *Hybrid) Put(key, value []byte) error {
	if h.sealed {
		return vexerr.NewInvariant("put into sealed %s table", h.cfg.Kind)
	}
	if len(key) == 0 {
		return vexerr.NewInvariant("put with empty key")
	}

	pid := h.part.PartitionOf(key)
	if h.part.IsSpilled(pid) {
		return h.appendSpilled(pid, key, value)
	}

	cost := EntryCost(key, value)
	for {
		victim, need := h.part.NeedsEviction(cost)
		if !need {
			break
		}
		if err := h.evict(victim); err != nil {
			return err
		}
	}
	if h.part.IsSpilled(pid) {
		return h.appendSpilled(pid, key, value)
	}

	if h.tables[pid].put(key, value) {
		h.part.AddResident(pid, cost)
	}
	h.rows++
	return nil
}

func (h *Hybrid) appendSpilled(pid int32, key, value []byte) error {
	seg, err := h.segment(pid)
	if err != nil {
		return err
	}
	if err := seg.Append(key, value); err != nil {
		return err
	}
	h.rows++
	return nil
}

func (h *Hybrid) segment(pid int32) (*spill.SegmentWriter, error) {
	if h.segs[pid] == nil {
		seg, err := spill.NewSegmentWriter(h.cfg.SpillPath, h.cfg.generation, pid, h.cfg.Compress)
		if err != nil {
			return nil, err
		}
		h.segs[pid] = seg
	}
	return h.segs[pid], nil
}

// evict flushes a resident partition to its segment and drops its
// sub-table. A no-op if the partition is already spilled.
func (h *Hybrid) evict(victim int32) error {
	if !h.part.MarkSpilled(victim) {
		return nil
	}
	seg, err := h.segment(victim)
	if err != nil {
		return err
	}
	if err := h.tables[victim].flush(seg); err != nil {
		return err
	}
	h.tables[victim].free()
	h.tables[victim] = nil
	return nil
}

// Seal ends the build phase: open segments get their end marker and
// the container becomes read-only. Idempotent.
func (h *Hybrid) Seal() error {
	if h.sealed {
		return nil
	}
	h.sealed = true
	for _, seg := range h.segs {
		if seg == nil {
			continue
		}
		if err := seg.Finish(); err != nil {
			return err
		}
	}
	if h.part.HasSpilled() {
		logutil.Info("hybrid table sealed with spill",
			zap.String("kind", h.cfg.Kind.String()),
			zap.Int32("generation", h.cfg.generation),
			zap.Int32s("spilled", h.part.SpilledPartitions()),
			zap.Uint64("rows", h.rows))
	}
	return nil
}

func (h *Hybrid) lookup(key []byte, r *hashtable.JoinResult) error {
	if !h.sealed {
		return vexerr.NewNotSealed("lookup in %s table still being built", h.cfg.Kind)
	}
	pid := h.part.PartitionOf(key)
	if h.part.IsSpilled(pid) {
		r.SetSpill(pid)
		return nil
	}
	h.tables[pid].lookup(key, r)
	return nil
}

// Probe looks up key in a map or multimap container, overwriting r.
func (h *Hybrid) Probe(key []byte, r *hashtable.JoinResult) error {
	if h.cfg.Kind != MapTable && h.cfg.Kind != MultimapTable {
		return vexerr.NewInvariant("probe on %s table", h.cfg.Kind)
	}
	return h.lookup(key, r)
}

// Contains looks up key in a set or multiset container, overwriting r.
func (h *Hybrid) Contains(key []byte, r *hashtable.JoinResult) error {
	if h.cfg.Kind != SetTable && h.cfg.Kind != MultisetTable {
		return vexerr.NewInvariant("contains on %s table", h.cfg.Kind)
	}
	return h.lookup(key, r)
}

// Free releases every sub-table and deletes leftover segment files.
func (h *Hybrid) Free() {
	for i := range h.tables {
		if h.tables[i] != nil {
			h.tables[i].free()
			h.tables[i] = nil
		}
	}
	for i, seg := range h.segs {
		if seg == nil {
			continue
		}
		_ = seg.Finish()
		if err := seg.Delete(); err != nil {
			logutil.Error("free hybrid table", zap.Error(err))
		}
		h.segs[i] = nil
	}
}
