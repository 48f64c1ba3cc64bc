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

package probe

import (
	"sort"

	"github.com/vexdb/vexec/pkg/common/hashmap"
	"github.com/vexdb/vexec/pkg/container/hashtable"
	"github.com/vexdb/vexec/pkg/logutil"
	"go.uber.org/zap"
)

// Replay resolves the rows that ProbeBatch deferred with JoinSpill: it
// reloads each spilled partition in turn, probes the partition's
// deferred keys against the reloaded table and routes the results into
// out. A reloaded partition that spills again recurses at the next
// generation, so the only way Replay fails on memory is the reloader's
// recursion cap. Each partition's segment is deleted once its rows are
// resolved.
func (d *Driver) Replay(deferred []SpilledRow, out *Output) error {
	if len(deferred) == 0 {
		return nil
	}
	return d.replayDeferred(d.tbl, deferred, out)
}

func (d *Driver) replayDeferred(tbl *hashmap.Hybrid, deferred []SpilledRow, out *Output) error {
	reloader, err := hashmap.NewPartitionReloader(tbl)
	if err != nil {
		return err
	}

	byPartition := make(map[int32][]SpilledRow)
	for _, sr := range deferred {
		byPartition[sr.Partition] = append(byPartition[sr.Partition], sr)
	}
	pids := make([]int32, 0, len(byPartition))
	for pid := range byPartition {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		if err := d.replayPartition(reloader, pid, byPartition[pid], out); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) replayPartition(reloader *hashmap.PartitionReloader, pid int32, rows []SpilledRow, out *Output) error {
	child, err := reloader.Reload(pid)
	if err != nil {
		return err
	}
	defer child.Free()

	var nested []SpilledRow
	for _, sr := range rows {
		if err := lookupIn(child, sr.Key, &d.result); err != nil {
			return err
		}
		if d.result.Outcome() == hashtable.JoinSpill {
			nested = append(nested, SpilledRow{
				Row:       sr.Row,
				Partition: d.result.Partition(),
				Key:       sr.Key,
			})
			continue
		}
		d.route(sr.Row, sr.Key, out)
	}

	if len(nested) > 0 {
		logutil.Debug("replay recursing",
			zap.Int32("partition", pid),
			zap.Int("deferred", len(nested)))
		if err := d.replayDeferred(child, nested, out); err != nil {
			return err
		}
	}
	return reloader.Discard(pid)
}
