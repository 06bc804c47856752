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

package cursormerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"go.uber.org/multierr"
)

// Merger 处理一次 FETCH。
// 每次 FETCH 拿到的都是重新查询出来的分片结果集，
// 所以要先跳过每个分片已经返回过的行，再继续归并
type Merger struct {
	state       *State
	fetch       Fetch
	sortColumns sortmerger.SortColumns
}

// NewMerger 没有排序列的时候按照分片注册的顺序返回数据
func NewMerger(state *State, fetch Fetch, sortCols ...sortmerger.SortColumn) (*Merger, error) {
	if state == nil {
		return nil, errs.ErrUnknownCursor
	}
	if err := fetch.Validate(); err != nil {
		return nil, err
	}
	var scs sortmerger.SortColumns
	if len(sortCols) > 0 {
		var err error
		scs, err = sortmerger.NewSortColumns(sortCols...)
		if err != nil {
			return nil, err
		}
	}
	return &Merger{
		state:       state,
		fetch:       fetch,
		sortColumns: scs,
	}, nil
}

// Merge 分片结果集没有标识，按照下标区分分片
func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	res := make([]merger.Result, 0, len(results))
	for _, r := range results {
		res = append(res, merger.Result{Rows: r})
	}
	return m.MergeResults(ctx, res)
}

func (m *Merger) MergeResults(ctx context.Context, results []merger.Result) (merger.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	all := make([]rows.Rows, 0, len(results))
	for _, r := range results {
		all = append(all, r.Rows)
	}
	columns, err := merger.CheckRows(all)
	if err != nil {
		return nil, err
	}
	if m.state.status == StatusClosed {
		_ = merger.CloseAll(all)
		return nil, errs.NewCursorClosedError(m.state.name)
	}
	if err = m.state.release(); err != nil {
		_ = merger.CloseAll(all)
		return nil, err
	}
	m.state.columns = columns
	if m.state.Latched() || m.fetch.Limit() == 0 || (m.fetch.Forward() && m.state.pastEnd) {
		return m.empty(all, columns)
	}

	keys := shardKeys(results)
	active := make([]rows.Rows, 0, len(results))
	activeKeys := make([]string, 0, len(results))
	sentinels := make([]rows.Rows, 0, len(results))
	for i, r := range results {
		// 空分片的哨兵行不能进入队列
		if r.Empty {
			sentinels = append(sentinels, r.Rows)
			continue
		}
		active = append(active, r.Rows)
		activeKeys = append(activeKeys, keys[i])
	}
	if err = merger.CloseAll(sentinels); err != nil {
		_ = merger.CloseAll(active)
		return nil, err
	}

	var rs merger.Rows
	if m.fetch.Forward() {
		rs, err = m.forward(ctx, active, activeKeys, columns)
	} else {
		rs, err = m.backward(ctx, active, activeKeys, columns)
	}
	if err != nil {
		return nil, err
	}
	if m.fetch.All() {
		m.state.status = StatusAllDirectionLatched
	}
	m.state.active = rs
	return rs, nil
}

func (m *Merger) empty(all []rows.Rows, columns []string) (merger.Rows, error) {
	if err := merger.CloseAll(all); err != nil {
		return nil, err
	}
	if m.fetch.All() {
		m.state.status = StatusAllDirectionLatched
	}
	return rows.NewDataRows(nil, columns, nil), nil
}

func (m *Merger) forward(ctx context.Context, rowsList []rows.Rows, keys []string, columns []string) (merger.Rows, error) {
	for i, r := range rowsList {
		if err := skip(ctx, r, m.state.delivered[keys[i]]); err != nil {
			_ = merger.CloseAll(rowsList)
			return nil, err
		}
	}
	q, err := sortmerger.NewQueue(rowsList, m.sortColumns, columns)
	if err != nil {
		_ = merger.CloseAll(rowsList)
		return nil, err
	}
	if err = q.Init(); err != nil {
		_ = merger.CloseAll(rowsList)
		return nil, err
	}
	var types []*sql.ColumnType
	if len(rowsList) > 0 {
		types, _ = rowsList[0].ColumnTypes()
	}
	return &Rows{
		rowsList: rowsList,
		keys:     keys,
		queue:    q,
		state:    m.state,
		limit:    m.fetch.Limit(),
		columns:  columns,
		types:    types,
		mu:       &sync.RWMutex{},
	}, nil
}

// skip 跳过已经返回过的行
func skip(ctx context.Context, r rows.Rows, n int64) error {
	for i := int64(0); i < n; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.Next() {
			return r.Err()
		}
	}
	return nil
}

// backward 反向读取需要随机访问，所以分片结果集会被完整读取到内存里面
func (m *Merger) backward(ctx context.Context, rowsList []rows.Rows, keys []string, columns []string) (merger.Rows, error) {
	var types []*sql.ColumnType
	if len(rowsList) > 0 {
		types, _ = rowsList[0].ColumnTypes()
	}
	sorted, err := m.materialize(ctx, rowsList, columns)
	if cerr := merger.CloseAll(rowsList); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	total := int64(len(sorted))
	pos := m.state.Position()
	if m.state.pastEnd || pos > total {
		pos = total + 1
	}
	limit := m.fetch.Limit()
	last := int64(1)
	newPos := int64(0)
	if limit >= 0 {
		if last = pos - limit; last < 1 {
			last = 1
		}
		if newPos = pos - limit; newPos < 0 {
			newPos = 0
		}
	}
	data := make([][]any, 0, pos)
	for i := pos - 1; i >= last; i-- {
		data = append(data, sorted[i-1].Row)
	}

	delivered := make(map[string]int64, len(keys))
	for _, n := range sorted[:newPos] {
		delivered[keys[n.Index]]++
	}
	m.state.delivered = delivered
	m.state.pastEnd = false
	return rows.NewDataRows(data, columns, types), nil
}

// materialize 读取所有分片的全部数据，并且按照排序列归并
func (m *Merger) materialize(ctx context.Context, rowsList []rows.Rows, columns []string) ([]*sortmerger.Node, error) {
	dataList := make([]rows.Rows, 0, len(rowsList))
	for _, r := range rowsList {
		data := make([][]any, 0, 16)
		for r.Next() {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			row, err := utils.ScanRow(r, len(columns))
			if err != nil {
				return nil, err
			}
			data = append(data, row)
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		dataList = append(dataList, rows.NewDataRows(data, columns, nil))
	}
	q, err := sortmerger.NewQueue(dataList, m.sortColumns, columns)
	if err != nil {
		return nil, err
	}
	if err = q.Init(); err != nil {
		return nil, err
	}
	res := make([]*sortmerger.Node, 0, 16)
	for {
		n, err := q.Pop()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return res, nil
		}
		res = append(res, n)
	}
}

// Rows 向前 FETCH 的结果，每返回一行都会记录到游标状态里面
type Rows struct {
	rowsList []rows.Rows
	keys     []string
	queue    *sortmerger.Queue
	state    *State
	// limit 为 -1 的时候不限制行数
	limit   int64
	cnt     int64
	cur     *sortmerger.Node
	columns []string
	types   []*sql.ColumnType
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
	if r.limit >= 0 && r.cnt >= r.limit {
		r.cur = nil
		_ = r.close()
		return false
	}
	n, err := r.queue.Pop()
	if err != nil {
		r.lastErr = err
		r.cur = nil
		_ = r.close()
		return false
	}
	if n == nil {
		r.state.pastEnd = true
		r.cur = nil
		_ = r.close()
		return false
	}
	r.state.delivered[r.keys[n.Index]]++
	r.cnt++
	r.cur = n
	return true
}

func (r *Rows) row() []any {
	if r.cur == nil {
		return nil
	}
	return r.cur.Row
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
	return utils.AssignRow(r.row(), dest...)
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
	return utils.ColumnValue(r.row(), index)
}

// Close 没有读完的行也算作已经返回。
// FETCH FORWARD n 之后游标总是向前移动 n 行，和客户端读了多少行无关
func (r *Rows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return multierr.Append(r.consume(), r.close())
}

// consume 把这一批剩下的行记录到游标状态里面
func (r *Rows) consume() error {
	// ALL 之后游标已经锁定，位置不会再被用到
	if r.lastErr != nil || r.limit < 0 || r.state.status == StatusClosed {
		return nil
	}
	for r.cnt < r.limit {
		n, err := r.queue.Pop()
		if err != nil {
			return err
		}
		if n == nil {
			r.state.pastEnd = true
			return nil
		}
		r.state.delivered[r.keys[n.Index]]++
		r.cnt++
	}
	return nil
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
	return r.types, nil
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
