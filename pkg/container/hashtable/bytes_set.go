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

// BytesHashSet records key presence only. Repeated Put of the same key
// is a no-op.
type BytesHashSet struct {
	tbl bytesTable
}

func NewBytesHashSet() *BytesHashSet {
	s := &BytesHashSet{}
	s.tbl.init()
	return s
}

// Put inserts key. Returns true if the key was new.
func (s *BytesHashSet) Put(key []byte) bool {
	c, isNew := s.tbl.insert(key)
	if isNew {
		c.ref = 1
	}
	return isNew
}

func (s *BytesHashSet) Contains(key []byte, r *JoinResult) {
	if s.tbl.find(key) == nil {
		r.SetNoMatch()
		return
	}
	r.setMatchCount(1)
}

func (s *BytesHashSet) Range(f func(key []byte) error) error {
	return s.tbl.rangeCells(func(key []byte, _ uint64) error {
		return f(key)
	})
}

func (s *BytesHashSet) Count() uint64 {
	return s.tbl.elemCnt
}

func (s *BytesHashSet) Size() int64 {
	return s.tbl.size()
}

func (s *BytesHashSet) Free() {
	s.tbl.free()
}
