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
	"sort"
	"sync"

	"github.com/ecodeclub/ekit/mapx"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger/aggregator"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// AggregatorMerger 在内存中完成分组合并。
// 用于排序列不以分组列开头的分组查询，以及 DISTINCT 查询。
// 分组之后按照排序列排序，没有排序列的时候按照分组键升序
type AggregatorMerger struct {
	aggregators  []aggregator.Aggregator
	groupColumns []merger.ColumnInfo
	sortColumns  []sortmerger.SortColumn
	// distinct 为 true 的时候按照所有列分组
	distinct bool
}

func NewAggregatorMerger(aggregators []aggregator.Aggregator, groupColumns []merger.ColumnInfo, sortCols ...sortmerger.SortColumn) (*AggregatorMerger, error) {
	if len(groupColumns) == 0 {
		return nil, errs.ErrEmptyGroupColumns
	}
	if len(sortCols) > 0 {
		if _, err := sortmerger.NewSortColumns(sortCols...); err != nil {
			return nil, err
		}
	}
	return &AggregatorMerger{
		aggregators:  aggregators,
		groupColumns: groupColumns,
		sortColumns:  sortCols,
	}, nil
}

// NewDistinctMerger 对所有列去重
func NewDistinctMerger(sortCols ...sortmerger.SortColumn) (*AggregatorMerger, error) {
	if len(sortCols) > 0 {
		if _, err := sortmerger.NewSortColumns(sortCols...); err != nil {
			return nil, err
		}
	}
	return &AggregatorMerger{
		sortColumns: sortCols,
		distinct:    true,
	}, nil
}

// Merge 会读取所有分片的全部数据，读完之后关闭所有分片的结果集
func (a *AggregatorMerger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	columns, err := merger.CheckRows(results)
	if err != nil {
		return nil, err
	}
	data, err := a.merge(ctx, results, columns)
	if cerr := merger.CloseAll(results); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return &AggregatorRows{
		data:    data,
		columns: columns,
		types:   columnTypes(results[0]),
		cur:     -1,
		mu:      &sync.RWMutex{},
	}, nil
}

func columnTypes(r rows.Rows) []*sql.ColumnType {
	types, err := r.ColumnTypes()
	if err != nil {
		return nil
	}
	return types
}

func (a *AggregatorMerger) groupIndexes(columns []string) ([]int, error) {
	if !a.distinct {
		return resolveGroupColumns(a.groupColumns, columns)
	}
	res := make([]int, len(columns))
	for i := range columns {
		res[i] = i
	}
	return res, nil
}

type group struct {
	first []any
	accs  []aggregator.Accumulator
}

func (a *AggregatorMerger) merge(ctx context.Context, results []rows.Rows, columns []string) ([][]any, error) {
	groupIndexes, err := a.groupIndexes(columns)
	if err != nil {
		return nil, err
	}
	bindings, err := aggregator.Bind(a.aggregators, columns)
	if err != nil {
		return nil, err
	}
	var sortIndexes []int
	if len(a.sortColumns) > 0 {
		scs, _ := sortmerger.NewSortColumns(a.sortColumns...)
		if sortIndexes, err = scs.Resolve(columns); err != nil {
			return nil, err
		}
	}

	// TreeMap 的比较函数没有办法返回 error，所以记录下来
	var cmpErr error
	treeMap, err := mapx.NewTreeMap[Key, *group](func(src Key, dst Key) int {
		res, err := compareKey(src, dst)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return res
	})
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, 16)
	for _, rs := range results {
		for rs.Next() {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			row, err := utils.ScanRow(rs, len(columns))
			if err != nil {
				return nil, err
			}
			key := Key{columnValues: groupKey(row, groupIndexes)}
			g, ok := treeMap.Get(key)
			if cmpErr != nil {
				return nil, cmpErr
			}
			if !ok {
				g = &group{first: row, accs: make([]aggregator.Accumulator, 0, len(bindings))}
				for _, b := range bindings {
					g.accs = append(g.accs, b.NewAccumulator())
				}
				if err = treeMap.Put(key, g); err != nil {
					return nil, err
				}
				keys = append(keys, key)
			}
			for _, acc := range g.accs {
				if err = acc.Accumulate(row); err != nil {
					return nil, err
				}
			}
		}
		if err = rs.Err(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		res, err := compareKey(keys[i], keys[j])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return res < 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}

	data := make([][]any, 0, len(keys))
	for _, key := range keys {
		g, _ := treeMap.Get(key)
		row := make([]any, len(g.first))
		copy(row, g.first)
		if err = aggregator.Apply(row, bindings, g.accs); err != nil {
			return nil, err
		}
		data = append(data, row)
	}
	if len(sortIndexes) > 0 {
		if err = a.sortRows(data, sortIndexes); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (a *AggregatorMerger) sortRows(data [][]any, sortIndexes []int) error {
	var sortErr error
	sort.SliceStable(data, func(i, j int) bool {
		for k, idx := range sortIndexes {
			col := a.sortColumns[k]
			res, err := utils.Compare(data[i][idx], data[j][idx], col.Order(), col.Nulls())
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return false
			}
			if res != 0 {
				return res < 0
			}
		}
		return false
	})
	return sortErr
}

type AggregatorRows struct {
	data    [][]any
	columns []string
	types   []*sql.ColumnType
	cur     int
	mu      *sync.RWMutex
	closed  bool
	lastErr error
}

func (a *AggregatorRows) Next() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if a.cur+1 >= len(a.data) {
		a.closed = true
		return false
	}
	a.cur++
	return true
}

func (a *AggregatorRows) current() []any {
	if a.cur < 0 || a.cur >= len(a.data) {
		return nil
	}
	return a.data[a.cur]
}

func (a *AggregatorRows) Scan(dest ...any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastErr != nil {
		return a.lastErr
	}
	if a.closed {
		return errs.ErrMergerRowsClosed
	}
	return utils.AssignRow(a.current(), dest...)
}

func (a *AggregatorRows) Value(index int) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerRowsClosed)
	}
	return utils.ColumnValue(a.current(), index)
}

// Close 分片的结果集在 Merge 的时候已经关闭了
func (a *AggregatorRows) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.data = nil
	return nil
}

func (a *AggregatorRows) Columns() ([]string, error) {
	res := make([]string, len(a.columns))
	copy(res, a.columns)
	return res, nil
}

func (a *AggregatorRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return a.types, nil
}

func (a *AggregatorRows) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

func (*AggregatorRows) NextResultSet() bool {
	return false
}

type Key struct {
	columnValues []any
}

// compareKey 按照分组键升序比较，NULL 视为最小
func compareKey(a, b Key) (int, error) {
	for i := 0; i < len(a.columnValues); i++ {
		res, err := utils.Compare(a.columnValues[i], b.columnValues[i], utils.ASC, utils.NullsDefault)
		if err != nil || res != 0 {
			return res, err
		}
	}
	return 0, nil
}
