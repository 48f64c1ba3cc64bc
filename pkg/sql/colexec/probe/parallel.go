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
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/vexdb/vexec/pkg/common/hashmap"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/container/batch"
)

// ParallelProber fans a set of batches out over a goroutine pool. The
// sealed table is shared; every task gets its own Driver and Output so
// the per-row cursors never cross goroutines. Replay stays
// single-threaded by design: reloads are memory-bounded one partition
// at a time.
type ParallelProber struct {
	tbl   *hashmap.Hybrid
	codec KeyCodec
	kind  JoinKind
	pool  *ants.Pool
}

func NewParallelProber(tbl *hashmap.Hybrid, codec KeyCodec, kind JoinKind, parallelism int) (*ParallelProber, error) {
	if parallelism < 1 {
		return nil, vexerr.NewInvariant("probe parallelism %d", parallelism)
	}
	pool, err := ants.NewPool(parallelism)
	if err != nil {
		return nil, vexerr.NewInternal("create probe pool: %v", err)
	}
	return &ParallelProber{tbl: tbl, codec: codec, kind: kind, pool: pool}, nil
}

// ProbeBatches probes every batch concurrently and returns one Output
// per batch, index-aligned with bats. The first error wins; outputs of
// failed tasks are zero.
func (p *ParallelProber) ProbeBatches(bats []*batch.Batch) ([]*Output, error) {
	outs := make([]*Output, len(bats))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range bats {
		i := i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			d, err := NewDriver(p.tbl, p.codec, p.kind)
			if err == nil {
				out := &Output{}
				if err = d.ProbeBatch(bats[i], out); err == nil {
					outs[i] = out
				}
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = vexerr.NewInternal("submit probe task: %v", err)
			}
			mu.Unlock()
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return outs, nil
}

func (p *ParallelProber) Release() {
	p.pool.Release()
}
