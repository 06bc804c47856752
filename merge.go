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

package shardmerge

import (
	"context"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger/aggregator"
	"github.com/ecodeclub/shardmerge/internal/merger/batchmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/decorator"
	"github.com/ecodeclub/shardmerge/internal/merger/groupby_merger"
	"github.com/ecodeclub/shardmerge/internal/merger/limitmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"go.uber.org/zap"
)

// 合并策略，主要用于日志
const (
	StrategyCursor        = "cursor"
	StrategyGroupByStream = "groupby-stream"
	StrategyGroupByMemory = "groupby-memory"
	StrategyDistinct      = "distinct"
	StrategyAggregate     = "aggregate"
	StrategyOrderBy       = "orderby"
	StrategyIterator      = "iterator"
)

// Merge 合并分片结果集。游标相关的语句需要使用 Session
func (e *Engine) Merge(ctx context.Context, stmt *Statement, results []Result) (Rows, error) {
	if stmt.Cursor != nil {
		return nil, errs.NewUnknownCursorError(stmt.Cursor.Name)
	}
	m, strategy, err := e.newMerger(stmt)
	if err != nil {
		return nil, err
	}
	list, err := dropSentinels(results)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("合并分片结果集",
		zap.String("strategy", strategy),
		zap.Int("shards", len(results)),
		zap.Stringer("stmt", stmt))
	return m.Merge(ctx, list)
}

// Strategy 返回语句会使用的合并策略
func (e *Engine) Strategy(stmt *Statement) (string, error) {
	if stmt.Cursor != nil {
		return StrategyCursor, nil
	}
	_, strategy, err := e.newMerger(stmt)
	return strategy, err
}

// newMerger 选择合并策略，然后依次套上分页和装饰器
func (e *Engine) newMerger(stmt *Statement) (merger.Merger, string, error) {
	m, strategy, err := e.selectMerger(stmt)
	if err != nil {
		return nil, "", err
	}
	if stmt.Limit != nil {
		m, err = limitmerger.NewMerger(m, *stmt.Limit)
		if err != nil {
			return nil, "", err
		}
	}
	for _, rule := range e.rules {
		m = decorator.NewMerger(m, decorator.Origins(stmt.Origins), rule)
	}
	return m, strategy, nil
}

func (e *Engine) selectMerger(stmt *Statement) (merger.Merger, string, error) {
	sortCols := e.sortColumns(stmt.OrderBy)
	aggs, err := aggregators(stmt.Aggregates)
	if err != nil {
		return nil, "", err
	}
	groups := groupColumns(stmt.GroupBy)
	switch {
	case len(groups) > 0 && len(sortCols) == 0:
		// 分片上的 GROUP BY 按照分组列升序输出
		m, err := groupby_merger.NewStreamMerger(aggs, groups, e.groupSortColumns(stmt.GroupBy)...)
		return m, StrategyGroupByStream, err
	case len(groups) > 0 && groupby_merger.IsGroupPrefix(groups, sortCols):
		m, err := groupby_merger.NewStreamMerger(aggs, groups, sortCols...)
		return m, StrategyGroupByStream, err
	case len(groups) > 0:
		m, err := groupby_merger.NewAggregatorMerger(aggs, groups, sortCols...)
		return m, StrategyGroupByMemory, err
	case stmt.Distinct:
		m, err := groupby_merger.NewDistinctMerger(sortCols...)
		return m, StrategyDistinct, err
	case len(aggs) > 0:
		return aggregatemerger.NewMerger(aggs...), StrategyAggregate, nil
	case len(sortCols) > 0:
		m, err := sortmerger.NewMerger(sortCols...)
		return m, StrategyOrderBy, err
	default:
		return batchmerger.NewMerger(), StrategyIterator, nil
	}
}

func (e *Engine) sortColumns(items []OrderItem) []sortmerger.SortColumn {
	res := make([]sortmerger.SortColumn, 0, len(items))
	for _, item := range items {
		order := sortmerger.ASC
		if item.Desc {
			order = sortmerger.DESC
		}
		nulls := e.dialect.Nulls(order, item.Nulls)
		res = append(res, sortmerger.NewSortColumn(item.Column, order).WithNulls(nulls))
	}
	return res
}

func (e *Engine) groupSortColumns(columns []string) []sortmerger.SortColumn {
	items := make([]OrderItem, 0, len(columns))
	for _, col := range columns {
		items = append(items, Asc(col))
	}
	return e.sortColumns(items)
}

func aggregators(items []AggregateItem) ([]aggregator.Aggregator, error) {
	res := make([]aggregator.Aggregator, 0, len(items))
	for _, item := range items {
		info := merger.NewColumnInfo(-1, item.Column)
		switch item.Kind {
		case Sum:
			res = append(res, aggregator.NewSum(info))
		case Count:
			res = append(res, aggregator.NewCount(info))
		case Max:
			res = append(res, aggregator.NewMax(info))
		case Min:
			res = append(res, aggregator.NewMin(info))
		case Avg:
			res = append(res, aggregator.NewAVG(
				merger.NewColumnInfo(-1, item.SumColumn),
				merger.NewColumnInfo(-1, item.CountColumn),
				info))
		default:
			return nil, errs.NewUnsupportedAggregateError(item.Kind)
		}
	}
	return res, nil
}

func groupColumns(names []string) []merger.ColumnInfo {
	res := make([]merger.ColumnInfo, 0, len(names))
	for _, name := range names {
		res = append(res, merger.NewColumnInfo(-1, name))
	}
	return res
}

// dropSentinels 空分片的哨兵行不能参与合并，替换成同样列的空结果集
func dropSentinels(results []Result) ([]rows.Rows, error) {
	res := make([]rows.Rows, 0, len(results))
	for _, r := range results {
		if !r.Empty || r.Rows == nil {
			res = append(res, r.Rows)
			continue
		}
		columns, err := r.Rows.Columns()
		if err != nil {
			return nil, err
		}
		if err = r.Rows.Close(); err != nil {
			return nil, err
		}
		res = append(res, rows.NewDataRows(nil, columns, nil))
	}
	return res, nil
}
