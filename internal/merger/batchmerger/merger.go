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

package batchmerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// Merger 按照分片注册的顺序拼接结果集，用于没有排序和分组要求的语句
type Merger struct{}

func NewMerger() *Merger {
	return &Merger{}
}

func (*Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	columns, err := merger.CheckRows(results)
	if err != nil {
		return nil, err
	}
	return &Rows{
		rowsList: results,
		columns:  columns,
		mu:       &sync.RWMutex{},
	}, nil
}

type Rows struct {
	rowsList []rows.Rows
	columns  []string
	// cnt 当前正在读取的分片
	cnt     int
	hasNext bool
	cur     []any
	mu      *sync.RWMutex
	lastErr error
	closed  bool
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastErr != nil {
		return false
	}
	r.cur = nil
	for r.cnt < len(r.rowsList) {
		row := r.rowsList[r.cnt]
		if row.Next() {
			r.hasNext = true
			return true
		}
		if err := row.Err(); err != nil {
			r.lastErr = err
			r.hasNext = false
			_ = r.close()
			return false
		}
		r.cnt++
	}
	r.hasNext = false
	_ = r.close()
	return false
}

// current 读取当前行，同一行只会读取一次
func (r *Rows) current() ([]any, error) {
	if !r.hasNext {
		return nil, errs.ErrMergerScanNotNext
	}
	if r.cur == nil {
		row, err := utils.ScanRow(r.rowsList[r.cnt], len(r.columns))
		if err != nil {
			return nil, err
		}
		r.cur = row
	}
	return r.cur, nil
}

func (r *Rows) Scan(dest ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr != nil {
		return r.lastErr
	}
	if r.closed {
		return errs.ErrMergerRowsClosed
	}
	row, err := r.current()
	if err != nil {
		return err
	}
	return utils.AssignRow(row, dest...)
}

func (r *Rows) Value(index int) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr != nil {
		return nil, r.lastErr
	}
	if r.closed {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerRowsClosed)
	}
	if !r.hasNext {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerScanNotNext)
	}
	row, err := r.current()
	if err != nil {
		return nil, err
	}
	return utils.ColumnValue(row, index)
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
	r.cur = nil
	return merger.CloseAll(r.rowsList)
}

func (r *Rows) Columns() ([]string, error) {
	res := make([]string, len(r.columns))
	copy(res, r.columns)
	return res, nil
}

func (r *Rows) ColumnTypes() ([]*sql.ColumnType, error) {
	return r.rowsList[0].ColumnTypes()
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
