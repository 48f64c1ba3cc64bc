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

package hashtable

// BytesHashMultiset records key multiplicity: each Put of the same key
// increments its count.
type BytesHashMultiset struct {
	tbl  bytesTable
	rows uint64
}

func NewBytesHashMultiset() *BytesHashMultiset {
	s := &BytesHashMultiset{}
	s.tbl.init()
	return s
}

// Put inserts key, incrementing its multiplicity. Returns the new
// multiplicity.
func (s *BytesHashMultiset) Put(key []byte) uint64 {
	c, _ := s.tbl.insert(key)
	c.ref++
	s.rows++
	return c.ref
}

// Contains looks up key; on a match the cursor reports the key's
// multiplicity.
func (s *BytesHashMultiset) Contains(key []byte, r *JoinResult) {
	c := s.tbl.find(key)
	if c == nil {
		r.SetNoMatch()
		return
	}
	r.setMatchCount(c.ref)
}

// Range visits every key with its multiplicity.
func (s *BytesHashMultiset) Range(f func(key []byte, count uint64) error) error {
	return s.tbl.rangeCells(f)
}

// Count reports distinct keys; Rows reports total insertions.
func (s *BytesHashMultiset) Count() uint64 {
	return s.tbl.elemCnt
}

func (s *BytesHashMultiset) Rows() uint64 {
	return s.rows
}

func (s *BytesHashMultiset) Size() int64 {
	return s.tbl.size()
}

func (s *BytesHashMultiset) Free() {
	s.tbl.free()
	s.rows = 0
}
