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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/container/batch"
)

func TestParallelProbeBatches(t *testing.T) {
	const n = 64
	pairs := make(map[string]string, n)
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		pairs[fmt.Sprintf("key-%d", i)] = fmt.Sprintf("val-%d", i)
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
	}
	h := buildMap(t, 1<<20, pairs)
	defer h.Free()

	p, err := NewParallelProber(h, &rowCodec{keys: keys}, InnerJoin, 4)
	require.NoError(t, err)
	defer p.Release()

	// 8 batches over the same key space, driven concurrently
	bats := make([]*batch.Batch, 8)
	for i := range bats {
		bats[i] = batch.New(n)
	}
	outs, err := p.ProbeBatches(bats)
	require.NoError(t, err)
	require.Len(t, outs, len(bats))

	for _, out := range outs {
		require.NotNil(t, out)
		require.Len(t, out.Matched, n)
		for _, m := range out.Matched {
			require.Equal(t, [][]byte{[]byte(fmt.Sprintf("val-%d", m.Row))}, m.Values)
		}
	}
}

func TestParallelProbeFirstErrorWins(t *testing.T) {
	h := buildMap(t, 1<<20, map[string]string{"a": "1"})
	defer h.Free()

	// only one key encodable: the oversized batch fails in the codec
	p, err := NewParallelProber(h, &rowCodec{keys: [][]byte{[]byte("a")}}, InnerJoin, 2)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.ProbeBatches([]*batch.Batch{batch.New(1), batch.New(5)})
	require.True(t, vexerr.IsCodec(err))
}

func TestParallelProberValidation(t *testing.T) {
	h := buildMap(t, 1<<20, nil)
	defer h.Free()

	_, err := NewParallelProber(h, &rowCodec{}, InnerJoin, 0)
	require.True(t, vexerr.IsInvariant(err))
}
