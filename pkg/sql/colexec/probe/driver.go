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
	"github.com/vexdb/vexec/pkg/common/hashmap"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/container/batch"
	"github.com/vexdb/vexec/pkg/container/hashtable"
)

// Driver probes one batch at a time against a sealed hybrid table.
// It is single-threaded: the JoinResult cursor and the key buffer are
// reused across rows, which keeps the per-row path allocation-free.
// Run one Driver per worker; the sealed table itself is safe to share.
type Driver struct {
	tbl    *hashmap.Hybrid
	codec  KeyCodec
	kind   JoinKind
	result hashtable.JoinResult
	keyBuf []byte
	rowBuf []int64
}

func NewDriver(tbl *hashmap.Hybrid, codec KeyCodec, kind JoinKind) (*Driver, error) {
	if tbl == nil {
		return nil, vexerr.NewInvariant("probe driver without table")
	}
	if codec == nil {
		return nil, vexerr.NewInvariant("probe driver without key codec")
	}
	return &Driver{tbl: tbl, codec: codec, kind: kind}, nil
}

func (d *Driver) lookup(key []byte, r *hashtable.JoinResult) error {
	switch d.tbl.Kind() {
	case hashmap.MapTable, hashmap.MultimapTable:
		return d.tbl.Probe(key, r)
	default:
		return d.tbl.Contains(key, r)
	}
}

func lookupIn(tbl *hashmap.Hybrid, key []byte, r *hashtable.JoinResult) error {
	switch tbl.Kind() {
	case hashmap.MapTable, hashmap.MultimapTable:
		return tbl.Probe(key, r)
	default:
		return tbl.Contains(key, r)
	}
}

// ProbeBatch routes every selected row of bat into out. Rows keep
// their original relative order within each channel.
func (d *Driver) ProbeBatch(bat *batch.Batch, out *Output) error {
	rows := bat.Rows(d.rowBuf)
	if bat.Sels() == nil {
		// keep the expansion buffer for the next batch
		d.rowBuf = rows
	}

	for _, row := range rows {
		key, err := d.codec.EncodeKey(d.keyBuf[:0], bat, row)
		if err != nil {
			return vexerr.NewCodec("encode key of row %d: %v", row, err)
		}
		d.keyBuf = key

		if err := d.lookup(key, &d.result); err != nil {
			return err
		}
		d.route(row, key, out)
	}
	return nil
}

func (d *Driver) route(row int64, key []byte, out *Output) {
	switch d.result.Outcome() {
	case hashtable.JoinMatch:
		switch d.kind {
		case InnerJoin, LeftJoin:
			var values [][]byte
			for {
				v, ok := d.result.NextValue()
				if !ok {
					break
				}
				values = append(values, v)
			}
			out.Matched = append(out.Matched, MatchedRow{
				Row:          row,
				Values:       values,
				Multiplicity: d.result.Multiplicity(),
			})
		case SemiJoin:
			out.Matched = append(out.Matched, MatchedRow{
				Row:          row,
				Multiplicity: d.result.Multiplicity(),
			})
		case AntiJoin:
			// matched rows are exactly what an anti join drops
		}
	case hashtable.JoinNoMatch:
		switch d.kind {
		case LeftJoin, AntiJoin:
			out.Unmatched = append(out.Unmatched, row)
		}
	case hashtable.JoinSpill:
		out.Spilled = append(out.Spilled, SpilledRow{
			Row:       row,
			Partition: d.result.Partition(),
			Key:       append([]byte(nil), key...),
		})
	}
}
