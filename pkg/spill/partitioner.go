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

// Package spill holds the pieces that let a join build side exceed
// memory: the partitioner deciding which keys live where and when a
// partition gets evicted, and the append-only segment files evicted
// partitions are written to.
package spill

import (
	"github.com/dustin/go-humanize"
	"github.com/vexdb/vexec/pkg/container/hashtable"
	"github.com/vexdb/vexec/pkg/logutil"
	"go.uber.org/zap"
)

// Partitioner assigns keys to spill partitions and tracks resident
// bytes against the memory budget. Partition assignment is a pure
// function of (key, generation, partition count), so a later reload
// pass recomputes identical partition ids. All mutation happens on the
// single build-phase owner; after seal the state is only read.
type Partitioner struct {
	count      int32
	generation int32
	budget     int64

	resident []int64
	spilled  []bool
	used     int64
}

func NewPartitioner(count, generation int32, budget int64) *Partitioner {
	return &Partitioner{
		count:      count,
		generation: generation,
		budget:     budget,
		resident:   make([]int64, count),
		spilled:    make([]bool, count),
	}
}

// PartitionOf computes the key's partition id. Deterministic across
// build and reload for a given generation.
func (p *Partitioner) PartitionOf(key []byte) int32 {
	return int32(hashtable.PartitionHash(key, p.generation) % uint64(p.count))
}

func (p *Partitioner) Count() int32 {
	return p.count
}

func (p *Partitioner) Generation() int32 {
	return p.generation
}

func (p *Partitioner) Budget() int64 {
	return p.budget
}

func (p *Partitioner) IsSpilled(pid int32) bool {
	return p.spilled[pid]
}

// AddResident accounts delta bytes to a resident partition.
func (p *Partitioner) AddResident(pid int32, delta int64) {
	p.resident[pid] += delta
	p.used += delta
}

// NeedsEviction reports whether accepting delta more resident bytes
// would exceed the budget, and if so which partition to evict: the
// largest resident one, to reclaim the most memory per eviction. Once
// nothing is resident there is nothing left to evict.
func (p *Partitioner) NeedsEviction(delta int64) (int32, bool) {
	if p.used+delta <= p.budget {
		return -1, false
	}
	victim := int32(-1)
	var victimSize int64 = -1
	for pid := int32(0); pid < p.count; pid++ {
		if p.spilled[pid] {
			continue
		}
		if p.resident[pid] > victimSize {
			victim = pid
			victimSize = p.resident[pid]
		}
	}
	if victim < 0 {
		return -1, false
	}
	return victim, true
}

// MarkSpilled transitions a partition to the spilled state and drops
// its resident accounting. Idempotent: marking an already-spilled
// partition changes nothing.
func (p *Partitioner) MarkSpilled(pid int32) bool {
	if p.spilled[pid] {
		return false
	}
	p.spilled[pid] = true
	p.used -= p.resident[pid]
	logutil.Info("partition spilled",
		zap.Int32("partition", pid),
		zap.Int32("generation", p.generation),
		zap.String("reclaimed", humanize.IBytes(uint64(p.resident[pid]))))
	p.resident[pid] = 0
	return true
}

func (p *Partitioner) ResidentSize() int64 {
	return p.used
}

func (p *Partitioner) PartitionSize(pid int32) int64 {
	return p.resident[pid]
}

func (p *Partitioner) HasSpilled() bool {
	for _, s := range p.spilled {
		if s {
			return true
		}
	}
	return false
}

// SpilledPartitions lists spilled partition ids in ascending order.
func (p *Partitioner) SpilledPartitions() []int32 {
	var pids []int32
	for pid := int32(0); pid < p.count; pid++ {
		if p.spilled[pid] {
			pids = append(pids, pid)
		}
	}
	return pids
}
