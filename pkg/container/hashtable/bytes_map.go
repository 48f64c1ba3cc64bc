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

type valueRef struct {
	off uint64
	ln  uint32
}

// BytesHashMap maps a byte key to a single value. Duplicate keys are
// first-write-wins: a later Put of an existing key is a no-op.
type BytesHashMap struct {
	tbl  bytesTable
	vals []valueRef
	data byteArena
}

func NewBytesHashMap() *BytesHashMap {
	m := &BytesHashMap{}
	m.tbl.init()
	return m
}

// Put inserts key with value. Returns true if the key was new.
func (m *BytesHashMap) Put(key, value []byte) bool {
	c, isNew := m.tbl.insert(key)
	if !isNew {
		return false
	}
	off, ln := m.data.add(value)
	m.vals = append(m.vals, valueRef{off: off, ln: ln})
	c.ref = uint64(len(m.vals))
	return true
}

// Probe looks up key and overwrites r with the outcome.
func (m *BytesHashMap) Probe(key []byte, r *JoinResult) {
	c := m.tbl.find(key)
	if c == nil {
		r.SetNoMatch()
		return
	}
	v := m.vals[c.ref-1]
	r.setMatchSingle(m.data.view(v.off, v.ln))
}

// Range visits every (key, value) pair in bucket order.
func (m *BytesHashMap) Range(f func(key, value []byte) error) error {
	return m.tbl.rangeCells(func(key []byte, ref uint64) error {
		v := m.vals[ref-1]
		return f(key, m.data.view(v.off, v.ln))
	})
}

func (m *BytesHashMap) Count() uint64 {
	return m.tbl.elemCnt
}

func (m *BytesHashMap) Size() int64 {
	return m.tbl.size() + int64(cap(m.vals))*16 + m.data.size()
}

func (m *BytesHashMap) Free() {
	m.tbl.free()
	m.vals = nil
	m.data.free()
}
