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
	"io"

	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/logutil"
	"github.com/vexdb/vexec/pkg/spill"
	"go.uber.org/zap"
)

// PartitionReloader rebuilds the spilled partitions of a sealed hybrid
// container, one at a time, so the deferred probe rows can be replayed
// in bounded memory. A reloaded partition that again exceeds the
// budget spills into finer sub-partitions at the next generation; the
// recursion is capped by Config.MaxRecursion and exhaustion is a
// capacity error, never an endless loop.
type PartitionReloader struct {
	parent *Hybrid
}

func NewPartitionReloader(parent *Hybrid) (*PartitionReloader, error) {
	if !parent.sealed {
		return nil, vexerr.NewNotSealed("reloader over %s table still being built", parent.cfg.Kind)
	}
	return &PartitionReloader{parent: parent}, nil
}

// Reload replays partition pid's segment into a fresh sealed container
// scoped to that partition's keys. Partition assignment inside the
// child uses the next generation's hash, so the parent partition's
// keys spread across the child's sub-partitions.
func (r *PartitionReloader) Reload(pid int32) (*Hybrid, error) {
	parent := r.parent
	if pid < 0 || pid >= parent.cfg.Partitions || !parent.part.IsSpilled(pid) || parent.segs[pid] == nil {
		return nil, vexerr.NewInvariant("reload of partition %d without spill segment", pid)
	}

	nextGen := parent.cfg.generation + 1
	if nextGen > parent.cfg.MaxRecursion {
		return nil, vexerr.NewCapacity(
			"partition %d still over budget after %d repartition passes", pid, parent.cfg.MaxRecursion)
	}

	childCfg := parent.cfg
	childCfg.Partitions = parent.cfg.SubPartitions
	childCfg.generation = nextGen
	child, err := newHybrid(childCfg)
	if err != nil {
		return nil, err
	}

	reader, err := spill.NewSegmentReader(parent.segs[pid].Path(), parent.cfg.Compress)
	if err != nil {
		child.Free()
		return nil, err
	}
	defer reader.Close()

	for {
		key, value, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			child.Free()
			return nil, err
		}
		if err := child.Put(key, value); err != nil {
			child.Free()
			return nil, err
		}
	}
	if err := child.Seal(); err != nil {
		child.Free()
		return nil, err
	}

	logutil.Info("partition reloaded",
		zap.Int32("partition", pid),
		zap.Int32("generation", nextGen),
		zap.Uint64("rows", child.Rows()),
		zap.Int("respilled", len(child.SpilledPartitions())))
	return child, nil
}

// Discard deletes the partition's segment after its deferred rows have
// been reprocessed.
func (r *PartitionReloader) Discard(pid int32) error {
	if pid < 0 || pid >= r.parent.cfg.Partitions {
		return vexerr.NewInvariant("discard of partition %d", pid)
	}
	seg := r.parent.segs[pid]
	if seg == nil {
		return vexerr.NewInvariant("discard of partition %d without spill segment", pid)
	}
	if err := seg.Delete(); err != nil {
		return err
	}
	r.parent.segs[pid] = nil
	return nil
}
