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

// Package batch holds the engine's view of a vectorized row batch.
// The columnar payload itself is opaque to the join core: the key
// codec owns the columns and resolves (batch, row) to key bytes, so a
// Batch here is just a row count plus an optional selection vector.
package batch

// Batch is one unit of vectorized rows flowing through the probe
// pipeline.
type Batch struct {
	rowCount int
	sels     []int64
}

func New(rowCount int) *Batch {
	return &Batch{rowCount: rowCount}
}

func (b *Batch) RowCount() int {
	return b.rowCount
}

// SetSels restricts the batch to the given rows. The selection is kept
// by reference and must stay sorted in original row order.
func (b *Batch) SetSels(sels []int64) {
	b.sels = sels
}

func (b *Batch) Sels() []int64 {
	return b.sels
}

func (b *Batch) IsEmpty() bool {
	if b.sels != nil {
		return len(b.sels) == 0
	}
	return b.rowCount == 0
}

// Rows returns the selected row positions in order. When no selection
// is set, every row is selected.
func (b *Batch) Rows(buf []int64) []int64 {
	if b.sels != nil {
		return b.sels
	}
	buf = buf[:0]
	for i := 0; i < b.rowCount; i++ {
		buf = append(buf, int64(i))
	}
	return buf
}
