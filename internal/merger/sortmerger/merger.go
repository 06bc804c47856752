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

package sortmerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

const (
	ASC  = utils.ASC
	DESC = utils.DESC
)

type SortColumn struct {
	name  string
	order utils.Order
	nulls utils.NullsOrder
}

func NewSortColumn(colName string, order utils.Order) SortColumn {
	return SortColumn{
		name:  colName,
		order: order,
	}
}

// WithNulls 指定 NULL 的位置，不指定的时候 NULL 视为最小值
func (s SortColumn) WithNulls(nulls utils.NullsOrder) SortColumn {
	s.nulls = nulls
	return s
}

func (s SortColumn) Name() string {
	return s.name
}

func (s SortColumn) Order() utils.Order {
	return s.order
}

func (s SortColumn) Nulls() utils.NullsOrder {
	return s.nulls
}

type SortColumns struct {
	columns []SortColumn
	colMap  map[string]int
}

func NewSortColumns(sortCols ...SortColumn) (SortColumns, error) {
	if len(sortCols) == 0 {
		return SortColumns{}, errs.ErrEmptySortColumns
	}
	sortMap := make(map[string]int, len(sortCols))
	for idx, sortCol := range sortCols {
		if _, ok := sortMap[sortCol.name]; ok {
			return SortColumns{}, errs.NewRepeatSortColumn(sortCol.name)
		}
		sortMap[sortCol.name] = idx
	}
	return SortColumns{
		columns: sortCols,
		colMap:  sortMap,
	}, nil
}

func (s SortColumns) Has(name string) bool {
	_, ok := s.colMap[name]
	return ok
}

func (s SortColumns) Find(name string) int {
	return s.colMap[name]
}

func (s SortColumns) Get(index int) SortColumn {
	return s.columns[index]
}

func (s SortColumns) Len() int {
	return len(s.columns)
}

func (s SortColumns) Cols() []SortColumn {
	return s.columns
}

// Resolve 返回每个排序列在分片列中的下标
func (s SortColumns) Resolve(columns []string) ([]int, error) {
	res := make([]int, 0, len(s.columns))
	for _, col := range s.columns {
		idx, ok := merger.NewColumnInfo(-1, col.name).Resolve(columns)
		if !ok {
			return nil, errs.NewInvalidSortColumn(col.name)
		}
		res = append(res, idx)
	}
	return res, nil
}

// Merger 要求每个分片的结果都已经按照排序列排好序。
// 如果有 GroupBy 子句，排序是给每个分组排的，应该使用 groupby_merger
type Merger struct {
	SortColumns
}

func NewMerger(sortCols ...SortColumn) (*Merger, error) {
	scs, err := NewSortColumns(sortCols...)
	if err != nil {
		return nil, err
	}
	return &Merger{
		SortColumns: scs,
	}, nil
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	columns, err := merger.CheckRows(results)
	if err != nil {
		return nil, err
	}
	q, err := NewQueue(results, m.SortColumns, columns)
	if err != nil {
		return nil, err
	}
	if err = q.Init(); err != nil {
		_ = merger.CloseAll(results)
		return nil, err
	}
	return &Rows{
		rowsList: results,
		queue:    q,
		mu:       &sync.RWMutex{},
		columns:  columns,
	}, nil
}

type Rows struct {
	rowsList []rows.Rows
	queue    *Queue
	cur      *Node
	mu       *sync.RWMutex
	lastErr  error
	closed   bool
	columns  []string
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastErr != nil {
		return false
	}
	if r.queue.Len() == 0 {
		r.cur = nil
		_ = r.close()
		return false
	}
	n, err := r.queue.Pop()
	if err != nil {
		r.cur = nil
		r.lastErr = err
		_ = r.close()
		return false
	}
	r.cur = n
	return true
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
	if r.cur == nil {
		return errs.ErrMergerScanNotNext
	}
	return utils.AssignRow(r.cur.Row, dest...)
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
	if r.cur == nil {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerScanNotNext)
	}
	return utils.ColumnValue(r.cur.Row, index)
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
	return merger.CloseAll(r.rowsList)
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Rows) Columns() ([]string, error) {
	res := make([]string, len(r.columns))
	copy(res, r.columns)
	return res, nil
}

func (r *Rows) ColumnTypes() ([]*sql.ColumnType, error) {
	return r.rowsList[0].ColumnTypes()
}

func (*Rows) NextResultSet() bool {
	return false
}
