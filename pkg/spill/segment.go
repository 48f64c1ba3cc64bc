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

package spill

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4"
	"github.com/vexdb/vexec/pkg/common/vexerr"
	"github.com/vexdb/vexec/pkg/logutil"
	"go.uber.org/zap"
)

// Segment file format: a forward-only sequence of records, each a
// big-endian uint32 key length, the key bytes, a uint32 value length
// and the value bytes (zero-length for the set variants), terminated
// by a key length of zero. Keys are never empty, so the sentinel is
// unambiguous. Optionally the whole stream is lz4-framed.

var segmentCounter atomic.Int64

// SegmentWriter appends records for one spilled partition. Created
// lazily on the partition's first spill; write failures are fatal for
// the build phase and surface as capacity errors.
type SegmentWriter struct {
	path     string
	f        *os.File
	bw       *bufio.Writer
	zw       *lz4.Writer
	w        io.Writer
	records  int64
	rawBytes int64
	finished bool
	lenBuf   [4]byte
}

func NewSegmentWriter(dir string, generation, partition int32, compress bool) (*SegmentWriter, error) {
	name := fmt.Sprintf("vexec_spill_g%d_p%d_%d.seg", generation, partition, segmentCounter.Add(1))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, vexerr.NewCapacity("create spill segment %s: %v", path, err)
	}
	w := &SegmentWriter{path: path, f: f}
	w.bw = bufio.NewWriter(f)
	if compress {
		w.zw = lz4.NewWriter(w.bw)
		w.w = w.zw
	} else {
		w.w = w.bw
	}
	return w, nil
}

func (w *SegmentWriter) Path() string {
	return w.path
}

func (w *SegmentWriter) Records() int64 {
	return w.records
}

func (w *SegmentWriter) writeLen(n uint32) error {
	binary.BigEndian.PutUint32(w.lenBuf[:], n)
	_, err := w.w.Write(w.lenBuf[:])
	return err
}

// Append writes one (key, value) record. key must be non-empty.
func (w *SegmentWriter) Append(key, value []byte) error {
	if w.finished {
		return vexerr.NewInvariant("append to finished segment %s", w.path)
	}
	if len(key) == 0 {
		return vexerr.NewInvariant("empty key appended to segment %s", w.path)
	}
	if err := w.writeLen(uint32(len(key))); err != nil {
		return vexerr.NewCapacity("write spill segment %s: %v", w.path, err)
	}
	if _, err := w.w.Write(key); err != nil {
		return vexerr.NewCapacity("write spill segment %s: %v", w.path, err)
	}
	if err := w.writeLen(uint32(len(value))); err != nil {
		return vexerr.NewCapacity("write spill segment %s: %v", w.path, err)
	}
	if _, err := w.w.Write(value); err != nil {
		return vexerr.NewCapacity("write spill segment %s: %v", w.path, err)
	}
	w.records++
	w.rawBytes += int64(8 + len(key) + len(value))
	return nil
}

// Finish writes the end-of-segment sentinel and closes the file. The
// segment is readable only after Finish.
func (w *SegmentWriter) Finish() error {
	if w.finished {
		return nil
	}
	w.finished = true
	if err := w.writeLen(0); err != nil {
		return vexerr.NewCapacity("finish spill segment %s: %v", w.path, err)
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			return vexerr.NewCapacity("finish spill segment %s: %v", w.path, err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		return vexerr.NewCapacity("finish spill segment %s: %v", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return vexerr.NewCapacity("finish spill segment %s: %v", w.path, err)
	}
	logutil.Info("spill segment finished",
		zap.String("path", w.path),
		zap.Int64("records", w.records),
		zap.String("size", humanize.IBytes(uint64(w.rawBytes))))
	return nil
}

// Delete removes the segment file, after a successful reload.
func (w *SegmentWriter) Delete() error {
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return vexerr.NewInternal("delete spill segment %s: %v", w.path, err)
	}
	return nil
}

// SegmentReader replays a finished segment sequentially. The slices
// returned by Next are reused on the following call.
type SegmentReader struct {
	path   string
	f      *os.File
	r      io.Reader
	keyBuf []byte
	valBuf []byte
	lenBuf [4]byte
	done   bool
}

func NewSegmentReader(path string, compress bool) (*SegmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vexerr.NewInternal("open spill segment %s: %v", path, err)
	}
	r := &SegmentReader{path: path, f: f}
	br := bufio.NewReader(f)
	if compress {
		r.r = lz4.NewReader(br)
	} else {
		r.r = br
	}
	return r, nil
}

func (r *SegmentReader) readLen() (uint32, error) {
	if _, err := io.ReadFull(r.r, r.lenBuf[:]); err != nil {
		return 0, vexerr.NewInternal("truncated spill segment %s: %v", r.path, err)
	}
	return binary.BigEndian.Uint32(r.lenBuf[:]), nil
}

// Next returns the next (key, value) record, or io.EOF after the
// sentinel.
func (r *SegmentReader) Next() ([]byte, []byte, error) {
	if r.done {
		return nil, nil, io.EOF
	}
	keyLen, err := r.readLen()
	if err != nil {
		return nil, nil, err
	}
	if keyLen == 0 {
		r.done = true
		return nil, nil, io.EOF
	}
	if cap(r.keyBuf) < int(keyLen) {
		r.keyBuf = make([]byte, keyLen)
	}
	key := r.keyBuf[:keyLen]
	if _, err := io.ReadFull(r.r, key); err != nil {
		return nil, nil, vexerr.NewInternal("truncated spill segment %s: %v", r.path, err)
	}
	valLen, err := r.readLen()
	if err != nil {
		return nil, nil, err
	}
	if cap(r.valBuf) < int(valLen) {
		r.valBuf = make([]byte, valLen)
	}
	val := r.valBuf[:valLen]
	if _, err := io.ReadFull(r.r, val); err != nil {
		return nil, nil, vexerr.NewInternal("truncated spill segment %s: %v", r.path, err)
	}
	return key, val, nil
}

func (r *SegmentReader) Close() error {
	return r.f.Close()
}
