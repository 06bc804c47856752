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

package aggregatemerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger/aggregator"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// Merger 处理没有 GROUP BY 的聚合查询，每个分片返回一行部分结果，合并之后只有一行
type Merger struct {
	aggregators []aggregator.Aggregator
}

func NewMerger(aggregators ...aggregator.Aggregator) *Merger {
	return &Merger{
		aggregators: aggregators,
	}
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(m.aggregators) == 0 {
		return nil, errs.ErrMergerAggregateNotFound
	}
	columns, err := merger.CheckRows(results)
	if err != nil {
		return nil, err
	}
	bindings, err := aggregator.Bind(m.aggregators, columns)
	if err != nil {
		return nil, err
	}
	return &Rows{
		rowsList: results,
		bindings: bindings,
		mu:       &sync.RWMutex{},
		columns:  columns,
	}, nil
}

type Rows struct {
	rowsList []rows.Rows
	bindings []aggregator.Binding
	closed   bool
	mu       *sync.RWMutex
	lastErr  error
	// done 唯一的一行已经返回过
	done    bool
	cur     []any
	columns []string
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastErr != nil {
		return false
	}
	if r.done {
		r.cur = nil
		_ = r.close()
		return false
	}
	r.done = true
	cur, err := r.aggregate()
	if err != nil {
		r.lastErr = err
		_ = r.close()
		return false
	}
	r.cur = cur
	return true
}

// aggregate 读取所有分片的部分结果并合并。
// 非聚合列取第一行的值，全部分片都没有数据的时候非聚合列为 NULL
func (r *Rows) aggregate() ([]any, error) {
	accs := make([]aggregator.Accumulator, 0, len(r.bindings))
	for _, b := range r.bindings {
		accs = append(accs, b.NewAccumulator())
	}
	var first []any
	for _, row := range r.rowsList {
		for row.Next() {
			data, err := utils.ScanRow(row, len(r.columns))
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = data
			}
			for _, acc := range accs {
				if err = acc.Accumulate(data); err != nil {
					return nil, err
				}
			}
		}
		if err := row.Err(); err != nil {
			return nil, err
		}
	}
	res := make([]any, len(r.columns))
	copy(res, first)
	if err := aggregator.Apply(res, r.bindings, accs); err != nil {
		return nil, err
	}
	return res, nil
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
	return utils.AssignRow(r.cur, dest...)
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
	return utils.ColumnValue(r.cur, index)
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
