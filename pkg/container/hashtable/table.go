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

import "bytes"

const kInitialCellCnt = 1 << 7

// cell is one open-addressing slot. hash == 0 marks an empty cell;
// BytesHash never returns zero. ref is interpreted by the table
// variant that owns the core.
type cell struct {
	hash   uint64
	keyOff uint64
	keyLen uint32
	ref    uint64
}

var cellSize = int64(32)

// byteArena is append-only backing storage for keys and values. Views
// stay valid only until the next append, so variants hand them out on
// the probe path after the build has stopped mutating, or consume them
// synchronously while flushing.
type byteArena struct {
	data []byte
}

func (a *byteArena) add(b []byte) (uint64, uint32) {
	off := uint64(len(a.data))
	a.data = append(a.data, b...)
	return off, uint32(len(b))
}

func (a *byteArena) view(off uint64, ln uint32) []byte {
	return a.data[off : off+uint64(ln) : off+uint64(ln)]
}

func (a *byteArena) size() int64 {
	return int64(cap(a.data))
}

func (a *byteArena) free() {
	a.data = nil
}

// bytesTable is the core shared by every table variant: linear-probe
// open addressing over a power-of-two cell array, with the key bytes
// copied into an arena. Collisions are resolved by comparing the exact
// key byte range, never by hash alone.
type bytesTable struct {
	cells       []cell
	cellCnt     uint64
	cellCntMask uint64
	elemCnt     uint64
	keys        byteArena
}

func (t *bytesTable) init() {
	t.cellCnt = kInitialCellCnt
	t.cellCntMask = kInitialCellCnt - 1
	t.cells = make([]cell, kInitialCellCnt)
	t.elemCnt = 0
}

func maxElemCnt(cellCnt uint64) uint64 {
	return cellCnt / 4 * 3
}

// findCell returns the cell for key: either the occupied cell holding
// it, or the empty cell it would be inserted into.
func (t *bytesTable) findCell(hash uint64, key []byte) (*cell, bool) {
	for idx := hash & t.cellCntMask; ; idx = (idx + 1) & t.cellCntMask {
		c := &t.cells[idx]
		if c.hash == 0 {
			return c, false
		}
		if c.hash == hash && bytes.Equal(t.keys.view(c.keyOff, c.keyLen), key) {
			return c, true
		}
	}
}

func (t *bytesTable) findEmptyCell(hash uint64) *cell {
	for idx := hash & t.cellCntMask; ; idx = (idx + 1) & t.cellCntMask {
		c := &t.cells[idx]
		if c.hash == 0 {
			return c
		}
	}
}

// insert finds or creates the cell for key, growing the table first if
// the load factor would be exceeded.
func (t *bytesTable) insert(key []byte) (*cell, bool) {
	t.resizeOnDemand(1)
	hash := BytesHash(key)
	c, found := t.findCell(hash, key)
	if !found {
		off, ln := t.keys.add(key)
		c.hash = hash
		c.keyOff = off
		c.keyLen = ln
		t.elemCnt++
	}
	return c, !found
}

// find is the read-only lookup used on the probe path.
func (t *bytesTable) find(key []byte) *cell {
	c, found := t.findCell(BytesHash(key), key)
	if !found {
		return nil
	}
	return c
}

func (t *bytesTable) resizeOnDemand(n uint64) {
	targetCnt := t.elemCnt + n
	if targetCnt <= maxElemCnt(t.cellCnt) {
		return
	}

	newCellCnt := t.cellCnt << 1
	for maxElemCnt(newCellCnt) < targetCnt {
		newCellCnt <<= 1
	}

	oldCells := t.cells
	t.cellCnt = newCellCnt
	t.cellCntMask = newCellCnt - 1
	t.cells = make([]cell, newCellCnt)

	// rearrange the cells; stored hashes make re-keying unnecessary
	for i := range oldCells {
		c := &oldCells[i]
		if c.hash != 0 {
			*t.findEmptyCell(c.hash) = *c
		}
	}
}

// rangeCells visits every occupied cell. Visit order is bucket order,
// not insertion order.
func (t *bytesTable) rangeCells(f func(key []byte, ref uint64) error) error {
	for i := range t.cells {
		c := &t.cells[i]
		if c.hash == 0 {
			continue
		}
		if err := f(t.keys.view(c.keyOff, c.keyLen), c.ref); err != nil {
			return err
		}
	}
	return nil
}

func (t *bytesTable) size() int64 {
	return int64(t.cellCnt)*cellSize + t.keys.size()
}

func (t *bytesTable) free() {
	t.cells = nil
	t.keys.free()
	t.elemCnt = 0
	t.cellCnt = 0
	t.cellCntMask = 0
}
