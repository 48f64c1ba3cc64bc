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

type valueChain struct {
	head  int32
	tail  int32
	count uint64
}

// BytesHashMultimap maps a byte key to the list of all values it was
// inserted with, preserving insertion order within each key.
type BytesHashMultimap struct {
	tbl    bytesTable
	chains []valueChain
	nodes  []valueNode
	data   byteArena
	rows   uint64
}

func NewBytesHashMultimap() *BytesHashMultimap {
	m := &BytesHashMultimap{}
	m.tbl.init()
	return m
}

// Put appends value to key's chain. Never overwrites.
func (m *BytesHashMultimap) Put(key, value []byte) {
	c, isNew := m.tbl.insert(key)
	off, ln := m.data.add(value)
	m.nodes = append(m.nodes, valueNode{off: off, ln: ln, next: -1})
	idx := int32(len(m.nodes) - 1)
	if isNew {
		m.chains = append(m.chains, valueChain{head: idx, tail: idx, count: 1})
		c.ref = uint64(len(m.chains))
	} else {
		ch := &m.chains[c.ref-1]
		m.nodes[ch.tail].next = idx
		ch.tail = idx
		ch.count++
	}
	m.rows++
}

// Probe looks up key; on a match the cursor iterates the key's values
// in insertion order.
func (m *BytesHashMultimap) Probe(key []byte, r *JoinResult) {
	c := m.tbl.find(key)
	if c == nil {
		r.SetNoMatch()
		return
	}
	ch := m.chains[c.ref-1]
	r.setMatchChain(m.nodes, &m.data, ch.head, ch.count)
}

// Range visits every (key, value) pair; values of one key are visited
// in insertion order.
func (m *BytesHashMultimap) Range(f func(key, value []byte) error) error {
	return m.tbl.rangeCells(func(key []byte, ref uint64) error {
		for idx := m.chains[ref-1].head; idx >= 0; {
			n := &m.nodes[idx]
			if err := f(key, m.data.view(n.off, n.ln)); err != nil {
				return err
			}
			idx = n.next
		}
		return nil
	})
}

// Count reports distinct keys; Rows reports inserted pairs.
func (m *BytesHashMultimap) Count() uint64 {
	return m.tbl.elemCnt
}

func (m *BytesHashMultimap) Rows() uint64 {
	return m.rows
}

func (m *BytesHashMultimap) Size() int64 {
	return m.tbl.size() +
		int64(cap(m.chains))*24 +
		int64(cap(m.nodes))*16 +
		m.data.size()
}

func (m *BytesHashMultimap) Free() {
	m.tbl.free()
	m.chains = nil
	m.nodes = nil
	m.data.free()
	m.rows = 0
}
