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

// Package probe drives the probe phase of a hash join: it walks the
// selected rows of each big-side batch, looks every row up in the
// sealed hybrid table, and routes it to the matched, spilled or
// unmatched output channel according to the join kind.
package probe

import (
	"github.com/vexdb/vexec/pkg/container/batch"
)

// JoinKind selects the output semantics of the probe.
type JoinKind int8

const (
	// InnerJoin emits matched rows only.
	InnerJoin JoinKind = iota
	// LeftJoin emits matched rows and keeps unmatched probe rows for
	// null extension.
	LeftJoin
	// SemiJoin emits each matched probe row once, without build values.
	SemiJoin
	// AntiJoin emits probe rows with no build-side match.
	AntiJoin
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case SemiJoin:
		return "semi"
	case AntiJoin:
		return "anti"
	default:
		return "unknown"
	}
}

// KeyCodec turns a row of a batch into the contiguous key byte range
// the hash tables operate on, and back. Implementations live with the
// batch representation, outside this engine.
//
// The encoding must be byte-identical for logically equal keys; hash
// and equality are computed over exactly the encoded range, so two
// encodings of the same logical key that differ in even one byte are
// different keys. Encoded keys must be non-empty.
type KeyCodec interface {
	// EncodeKey appends row's join key to dst and returns the extended
	// slice.
	EncodeKey(dst []byte, bat *batch.Batch, row int64) ([]byte, error)

	// DecodeKey splits an encoded key back into its column values.
	DecodeKey(key []byte) ([][]byte, error)
}

// MatchedRow is one probe row that found its key in the table.
type MatchedRow struct {
	// Row is the position in the probed batch.
	Row int64
	// Values are the build-side values in insertion order. They alias
	// table storage and stay valid until the table is freed. Nil for
	// semi joins and for set/multiset tables.
	Values [][]byte
	// Multiplicity is the number of build-side entries for the key.
	Multiplicity uint64
}

// SpilledRow is one probe row deferred to a reload pass because its
// key's partition was evicted during build.
type SpilledRow struct {
	Row       int64
	Partition int32
	// Key is an owned copy of the encoded key; the source batch may be
	// recycled before the replay runs.
	Key []byte
}

// Output collects the three routing channels of one probe pass. Within
// each channel rows keep their original relative order; interleaving
// across channels is not defined.
type Output struct {
	Matched   []MatchedRow
	Spilled   []SpilledRow
	Unmatched []int64
}

func (o *Output) Reset() {
	o.Matched = o.Matched[:0]
	o.Spilled = o.Spilled[:0]
	o.Unmatched = o.Unmatched[:0]
}
