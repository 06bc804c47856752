// Copyright 2021 ecodeclub
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package limitmerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// Unbounded 不限制返回的行数
const Unbounded = -1

// Limit 对应 LIMIT count OFFSET offset
type Limit struct {
	Offset int
	// Count 为 Unbounded 的时候不限制行数
	Count int
	// OffsetPushedDown 分片已经按照全局的顺序跳过了 Offset 行，这里只截断
	OffsetPushedDown bool
}

func (l Limit) validate() error {
	if l.Offset < 0 || l.Count < Unbounded {
		return errs.ErrMergerInvalidLimitOrOffset
	}
	return nil
}

// skip 合并之后需要跳过的行数
func (l Limit) skip() int {
	if l.OffsetPushedDown {
		return 0
	}
	return l.Offset
}

// Merger 每个分片返回前 offset+count 行，在合并的结果上跳过 offset 行，最多返回 count 行
type Merger struct {
	m     merger.Merger
	limit Limit
}

func NewMerger(m merger.Merger, limit Limit) (*Merger, error) {
	if err := limit.validate(); err != nil {
		return nil, err
	}
	return &Merger{
		m:     m,
		limit: limit,
	}, nil
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	rs, err := m.m.Merge(ctx, results)
	if err != nil {
		return nil, err
	}
	err = m.nextOffset(ctx, rs)
	if err != nil {
		_ = rs.Close()
		return nil, err
	}
	return &Rows{
		rows:  rs,
		mu:    &sync.RWMutex{},
		limit: m.limit.Count,
	}, nil
}

func (m *Merger) nextOffset(ctx context.Context, rs merger.Rows) error {
	offset := m.limit.skip()
	for i := 0; i < offset; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// 如果偏移量超过结果集返回的行数，不会报错。用户最终查到0行
		if !rs.Next() {
			return rs.Err()
		}
	}
	return nil
}

type Rows struct {
	rows    merger.Rows
	limit   int
	cnt     int
	hasNext bool
	lastErr error
	closed  bool
	mu      *sync.RWMutex
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastErr != nil {
		return false
	}
	if r.limit != Unbounded && r.cnt >= r.limit {
		r.hasNext = false
		_ = r.close()
		return false
	}
	if !r.rows.Next() {
		r.hasNext = false
		r.lastErr = r.rows.Err()
		_ = r.close()
		return false
	}
	r.hasNext = true
	r.cnt++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return r.lastErr
	}
	if r.closed {
		return errs.ErrMergerRowsClosed
	}
	if !r.hasNext {
		return errs.ErrMergerScanNotNext
	}
	return r.rows.Scan(dest...)
}

func (r *Rows) Value(index int) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return nil, r.lastErr
	}
	if r.closed {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerRowsClosed)
	}
	if !r.hasNext {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerScanNotNext)
	}
	return r.rows.Value(index)
}

func (r *Rows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.close()
}

func (r *Rows) close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

func (r *Rows) Columns() ([]string, error) {
	return r.rows.Columns()
}

func (r *Rows) ColumnTypes() ([]*sql.ColumnType, error) {
	return r.rows.ColumnTypes()
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
