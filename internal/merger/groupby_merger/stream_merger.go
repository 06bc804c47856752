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

package groupby_merger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger/aggregator"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// StreamMerger 流式的分组合并。
// 要求排序列以分组列开头，这样同一个分组的行在归并之后是连续的，
// 只需要合并相邻的分组键相同的行
type StreamMerger struct {
	aggregators  []aggregator.Aggregator
	groupColumns []merger.ColumnInfo
	sortColumns  sortmerger.SortColumns
}

// NewStreamMerger 排序列必须和分片上实际使用的排序一致，包括 NULL 的位置。
// 查询没有 ORDER BY 的时候，由调用方按照方言生成分组列升序的排序列
func NewStreamMerger(aggregators []aggregator.Aggregator, groupColumns []merger.ColumnInfo, sortCols ...sortmerger.SortColumn) (*StreamMerger, error) {
	if len(groupColumns) == 0 {
		return nil, errs.ErrEmptyGroupColumns
	}
	scs, err := sortmerger.NewSortColumns(sortCols...)
	if err != nil {
		return nil, err
	}
	if !IsGroupPrefix(groupColumns, sortCols) {
		return nil, errs.ErrGroupByOrderMismatch
	}
	return &StreamMerger{
		aggregators:  aggregators,
		groupColumns: groupColumns,
		sortColumns:  scs,
	}, nil
}

// IsGroupPrefix 判断排序列的前 len(groupColumns) 列是不是刚好是分组列，顺序可以不同
func IsGroupPrefix(groupColumns []merger.ColumnInfo, sortCols []sortmerger.SortColumn) bool {
	if len(sortCols) < len(groupColumns) {
		return false
	}
	prefix := make(map[string]struct{}, len(groupColumns))
	for _, col := range sortCols[:len(groupColumns)] {
		prefix[col.Name()] = struct{}{}
	}
	for _, col := range groupColumns {
		if _, ok := prefix[col.Name]; !ok {
			return false
		}
	}
	return true
}

func (s *StreamMerger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	columns, err := merger.CheckRows(results)
	if err != nil {
		return nil, err
	}
	groupIndexes, err := resolveGroupColumns(s.groupColumns, columns)
	if err != nil {
		return nil, err
	}
	bindings, err := aggregator.Bind(s.aggregators, columns)
	if err != nil {
		return nil, err
	}
	q, err := sortmerger.NewQueue(results, s.sortColumns, columns)
	if err != nil {
		return nil, err
	}
	if err = q.Init(); err != nil {
		_ = merger.CloseAll(results)
		return nil, err
	}
	return &StreamRows{
		rowsList:     results,
		queue:        q,
		groupIndexes: groupIndexes,
		bindings:     bindings,
		columns:      columns,
		mu:           &sync.RWMutex{},
	}, nil
}

func resolveGroupColumns(groupColumns []merger.ColumnInfo, columns []string) ([]int, error) {
	res := make([]int, 0, len(groupColumns))
	for _, col := range groupColumns {
		idx, ok := col.Resolve(columns)
		if !ok {
			return nil, errs.NewInvalidGroupColumn(col.String())
		}
		res = append(res, idx)
	}
	return res, nil
}

func groupKey(row []any, groupIndexes []int) []any {
	key := make([]any, 0, len(groupIndexes))
	for _, idx := range groupIndexes {
		key = append(key, row[idx])
	}
	return key
}

type StreamRows struct {
	rowsList     []rows.Rows
	queue        *sortmerger.Queue
	groupIndexes []int
	bindings     []aggregator.Binding
	columns      []string
	// pending 已经从队列里面取出来的下一个分组的第一行
	pending *sortmerger.Node
	cur     []any
	mu      *sync.RWMutex
	lastErr error
	closed  bool
}

func (r *StreamRows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastErr != nil {
		return false
	}
	cur, err := r.nextGroup()
	if err != nil {
		r.lastErr = err
		r.cur = nil
		_ = r.close()
		return false
	}
	r.cur = cur
	if cur == nil {
		_ = r.close()
		return false
	}
	return true
}

// nextGroup 合并下一个分组。队列耗尽的时候最后一个分组也会被返回
func (r *StreamRows) nextGroup() ([]any, error) {
	first := r.pending
	r.pending = nil
	if first == nil {
		n, err := r.queue.Pop()
		if err != nil || n == nil {
			return nil, err
		}
		first = n
	}
	key := groupKey(first.Row, r.groupIndexes)
	accs := make([]aggregator.Accumulator, 0, len(r.bindings))
	for _, b := range r.bindings {
		acc := b.NewAccumulator()
		if err := acc.Accumulate(first.Row); err != nil {
			return nil, err
		}
		accs = append(accs, acc)
	}
	for {
		n, err := r.queue.Pop()
		if err != nil {
			return nil, err
		}
		if n == nil {
			break
		}
		same, err := utils.Equal(key, groupKey(n.Row, r.groupIndexes))
		if err != nil {
			return nil, err
		}
		if !same {
			r.pending = n
			break
		}
		for _, acc := range accs {
			if err = acc.Accumulate(n.Row); err != nil {
				return nil, err
			}
		}
	}
	res := make([]any, len(first.Row))
	copy(res, first.Row)
	if err := aggregator.Apply(res, r.bindings, accs); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *StreamRows) Scan(dest ...any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return r.lastErr
	}
	if r.closed {
		return errs.ErrMergerRowsClosed
	}
	return utils.AssignRow(r.cur, dest...)
}

func (r *StreamRows) Value(index int) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return nil, r.lastErr
	}
	if r.closed {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerRowsClosed)
	}
	return utils.ColumnValue(r.cur, index)
}

func (r *StreamRows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.close()
}

func (r *StreamRows) close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.pending = nil
	return merger.CloseAll(r.rowsList)
}

func (r *StreamRows) Columns() ([]string, error) {
	res := make([]string, len(r.columns))
	copy(res, r.columns)
	return res, nil
}

func (r *StreamRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return r.rowsList[0].ColumnTypes()
}

func (r *StreamRows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*StreamRows) NextResultSet() bool {
	return false
}
