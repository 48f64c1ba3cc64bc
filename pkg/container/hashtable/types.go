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

// Package hashtable implements the in-memory byte-key hash tables the
// join engine builds over the small side of an equi-join: a map, a
// multimap, a set and a multiset, all sharing one open-addressing core
// with exact byte-range key equality.
package hashtable

// JoinOutcome is the tri-state result of one lookup.
type JoinOutcome int8

const (
	// JoinNoMatch: the key's partition is resident and the key is absent.
	JoinNoMatch JoinOutcome = iota
	// JoinMatch: the key's partition is resident and the key is present.
	JoinMatch
	// JoinSpill: the key's partition was evicted; the row must be
	// deferred and replayed against the reloaded partition.
	JoinSpill
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinNoMatch:
		return "NOMATCH"
	case JoinMatch:
		return "MATCH"
	case JoinSpill:
		return "SPILL"
	default:
		return "UNKNOWN"
	}
}

// JoinResult is the reusable probe cursor. The caller allocates one
// per probe driver and passes it into every lookup; each lookup
// overwrites it completely, so its contents are valid only until the
// next probe on the same cursor. This keeps the probe hot path free of
// allocations.
type JoinResult struct {
	outcome   JoinOutcome
	partition int32
	count     uint64

	// single-value payload (map)
	single    []byte
	hasSingle bool

	// chained payload (multimap)
	nodes []valueNode
	arena *byteArena
	cur   int32
}

type valueNode struct {
	off  uint64
	next int32
	ln   uint32
}

func (r *JoinResult) reset() {
	r.outcome = JoinNoMatch
	r.partition = -1
	r.count = 0
	r.single = nil
	r.hasSingle = false
	r.nodes = nil
	r.arena = nil
	r.cur = -1
}

func (r *JoinResult) Outcome() JoinOutcome {
	return r.outcome
}

// Partition is only meaningful when Outcome is JoinSpill.
func (r *JoinResult) Partition() int32 {
	return r.partition
}

// Multiplicity reports how many values (or multiset insertions) the
// matched key carries. Zero unless Outcome is JoinMatch.
func (r *JoinResult) Multiplicity() uint64 {
	return r.count
}

// NextValue iterates the matched key's values in insertion order. The
// returned slice aliases table storage and is valid until the table is
// freed. Valid only when Outcome is JoinMatch; set and multiset
// matches carry no values.
func (r *JoinResult) NextValue() ([]byte, bool) {
	if r.hasSingle {
		v := r.single
		r.single = nil
		r.hasSingle = false
		return v, true
	}
	if r.cur < 0 || r.nodes == nil {
		return nil, false
	}
	n := &r.nodes[r.cur]
	r.cur = n.next
	return r.arena.view(n.off, n.ln), true
}

// SetNoMatch resets the cursor to a resident miss.
func (r *JoinResult) SetNoMatch() {
	r.reset()
}

// SetSpill marks the probed key as belonging to an evicted partition.
func (r *JoinResult) SetSpill(partition int32) {
	r.reset()
	r.outcome = JoinSpill
	r.partition = partition
}

func (r *JoinResult) setMatchSingle(value []byte) {
	r.reset()
	r.outcome = JoinMatch
	r.count = 1
	r.single = value
	r.hasSingle = true
}

func (r *JoinResult) setMatchChain(nodes []valueNode, arena *byteArena, head int32, count uint64) {
	r.reset()
	r.outcome = JoinMatch
	r.count = count
	r.nodes = nodes
	r.arena = arena
	r.cur = head
}

func (r *JoinResult) setMatchCount(count uint64) {
	r.reset()
	r.outcome = JoinMatch
	r.count = count
}
