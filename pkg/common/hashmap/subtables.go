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
	"github.com/vexdb/vexec/pkg/container/hashtable"
	"github.com/vexdb/vexec/pkg/spill"
)

type mapSub struct {
	t *hashtable.BytesHashMap
}

func (s *mapSub) put(key, value []byte) bool {
	return s.t.Put(key, value)
}

func (s *mapSub) lookup(key []byte, r *hashtable.JoinResult) {
	s.t.Probe(key, r)
}

func (s *mapSub) flush(w *spill.SegmentWriter) error {
	return s.t.Range(w.Append)
}

func (s *mapSub) count() uint64 { return s.t.Count() }
func (s *mapSub) size() int64   { return s.t.Size() }
func (s *mapSub) free()         { s.t.Free() }

type multimapSub struct {
	t *hashtable.BytesHashMultimap
}

func (s *multimapSub) put(key, value []byte) bool {
	s.t.Put(key, value)
	return true
}

func (s *multimapSub) lookup(key []byte, r *hashtable.JoinResult) {
	s.t.Probe(key, r)
}

func (s *multimapSub) flush(w *spill.SegmentWriter) error {
	return s.t.Range(w.Append)
}

func (s *multimapSub) count() uint64 { return s.t.Count() }
func (s *multimapSub) size() int64   { return s.t.Size() }
func (s *multimapSub) free()         { s.t.Free() }

type setSub struct {
	t *hashtable.BytesHashSet
}

func (s *setSub) put(key, _ []byte) bool {
	return s.t.Put(key)
}

func (s *setSub) lookup(key []byte, r *hashtable.JoinResult) {
	s.t.Contains(key, r)
}

func (s *setSub) flush(w *spill.SegmentWriter) error {
	return s.t.Range(func(key []byte) error {
		return w.Append(key, nil)
	})
}

func (s *setSub) count() uint64 { return s.t.Count() }
func (s *setSub) size() int64   { return s.t.Size() }
func (s *setSub) free()         { s.t.Free() }

type multisetSub struct {
	t *hashtable.BytesHashMultiset
}

func (s *multisetSub) put(key, _ []byte) bool {
	s.t.Put(key)
	return true
}

func (s *multisetSub) lookup(key []byte, r *hashtable.JoinResult) {
	s.t.Contains(key, r)
}

// flush writes one empty-value record per insertion so a replay
// restores the multiplicity exactly.
func (s *multisetSub) flush(w *spill.SegmentWriter) error {
	return s.t.Range(func(key []byte, count uint64) error {
		for i := uint64(0); i < count; i++ {
			if err := w.Append(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *multisetSub) count() uint64 { return s.t.Count() }
func (s *multisetSub) size() int64   { return s.t.Size() }
func (s *multisetSub) free()         { s.t.Free() }
