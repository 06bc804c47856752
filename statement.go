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
	"strconv"

	"github.com/ecodeclub/shardmerge/internal/merger/cursormerger"
	"github.com/ecodeclub/shardmerge/internal/merger/decorator"
	"github.com/ecodeclub/shardmerge/internal/merger/limitmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/valyala/bytebufferpool"
)

// NullsOrder NULL 在排序结果中的位置
type NullsOrder = utils.NullsOrder

const (
	// NullsDefault 由方言决定，MySQL 和 SQLite 中 NULL 最小，PostgreSQL 中 NULL 最大
	NullsDefault = utils.NullsDefault
	NullsFirst   = utils.NullsFirst
	NullsLast    = utils.NullsLast
)

// OrderItem ORDER BY 中的一项
type OrderItem struct {
	Column string
	Desc   bool
	Nulls  NullsOrder
}

func Asc(column string) OrderItem {
	return OrderItem{Column: column}
}

func Desc(column string) OrderItem {
	return OrderItem{Column: column, Desc: true}
}

func (o OrderItem) NullsFirst() OrderItem {
	o.Nulls = NullsFirst
	return o
}

func (o OrderItem) NullsLast() OrderItem {
	o.Nulls = NullsLast
	return o
}

// AggregateKind 聚合函数
type AggregateKind uint8

const (
	Sum AggregateKind = iota + 1
	Count
	Max
	Min
	Avg
)

func (a AggregateKind) String() string {
	switch a {
	case Sum:
		return "SUM"
	case Count:
		return "COUNT"
	case Max:
		return "MAX"
	case Min:
		return "MIN"
	case Avg:
		return "AVG"
	default:
		return "UNKNOWN"
	}
}

// AggregateItem 查询中的聚合函数。
// Column 是聚合函数在分片结果集中的列名。
// AVG 需要分片额外返回 SUM 和 COUNT 两个派生列
type AggregateItem struct {
	Kind        AggregateKind
	Column      string
	SumColumn   string
	CountColumn string
}

func SUM(column string) AggregateItem {
	return AggregateItem{Kind: Sum, Column: column}
}

func COUNT(column string) AggregateItem {
	return AggregateItem{Kind: Count, Column: column}
}

func MAX(column string) AggregateItem {
	return AggregateItem{Kind: Max, Column: column}
}

func MIN(column string) AggregateItem {
	return AggregateItem{Kind: Min, Column: column}
}

func AVG(column, sumColumn, countColumn string) AggregateItem {
	return AggregateItem{Kind: Avg, Column: column, SumColumn: sumColumn, CountColumn: countColumn}
}

// Limit 分页。Count 为 Unbounded 表示不限制行数
type Limit = limitmerger.Limit

const Unbounded = limitmerger.Unbounded

func NewLimit(offset, count int) *Limit {
	return &Limit{Offset: offset, Count: count}
}

type Fetch = cursormerger.Fetch

var (
	FetchNext        = cursormerger.FetchNext
	FetchForward     = cursormerger.FetchForward
	FetchAll         = cursormerger.FetchAll
	FetchPrior       = cursormerger.FetchPrior
	FetchBackward    = cursormerger.FetchBackward
	FetchBackwardAll = cursormerger.FetchBackwardAll
)

// CursorFetch 对一个已经声明的游标执行 FETCH
type CursorFetch struct {
	Name  string
	Fetch Fetch
}

// ColumnOrigin 列在改写之前对应的逻辑表和列
type ColumnOrigin = decorator.ColumnOrigin

// Statement 路由之后的语句信息，决定如何合并分片结果集
type Statement struct {
	OrderBy    []OrderItem
	GroupBy    []string
	Aggregates []AggregateItem
	Distinct   bool
	Limit      *Limit
	Cursor     *CursorFetch
	// Origins 按照下标记录每一列原本的表和列，用于脱敏和解密
	Origins []ColumnOrigin
}

// String 输出语句的合并信息，用于日志
func (s *Statement) String() string {
	if s == nil {
		return ""
	}
	buffer := bytebufferpool.Get()
	defer bytebufferpool.Put(buffer)
	if s.Distinct {
		_, _ = buffer.WriteString("DISTINCT")
	}
	if len(s.Aggregates) > 0 {
		writeSep(buffer)
		for i, agg := range s.Aggregates {
			if i > 0 {
				_ = buffer.WriteByte(',')
			}
			_, _ = buffer.WriteString(agg.Kind.String())
			_ = buffer.WriteByte('(')
			_, _ = buffer.WriteString(agg.Column)
			_ = buffer.WriteByte(')')
		}
	}
	if len(s.GroupBy) > 0 {
		writeSep(buffer)
		_, _ = buffer.WriteString("GROUP BY ")
		for i, col := range s.GroupBy {
			if i > 0 {
				_ = buffer.WriteByte(',')
			}
			_, _ = buffer.WriteString(col)
		}
	}
	if len(s.OrderBy) > 0 {
		writeSep(buffer)
		_, _ = buffer.WriteString("ORDER BY ")
		for i, item := range s.OrderBy {
			if i > 0 {
				_ = buffer.WriteByte(',')
			}
			_, _ = buffer.WriteString(item.Column)
			if item.Desc {
				_, _ = buffer.WriteString(" DESC")
			} else {
				_, _ = buffer.WriteString(" ASC")
			}
			switch item.Nulls {
			case NullsFirst:
				_, _ = buffer.WriteString(" NULLS FIRST")
			case NullsLast:
				_, _ = buffer.WriteString(" NULLS LAST")
			}
		}
	}
	if s.Limit != nil {
		writeSep(buffer)
		_, _ = buffer.WriteString("LIMIT ")
		_, _ = buffer.WriteString(strconv.Itoa(s.Limit.Offset))
		_ = buffer.WriteByte(',')
		_, _ = buffer.WriteString(strconv.Itoa(s.Limit.Count))
	}
	if s.Cursor != nil {
		writeSep(buffer)
		_, _ = buffer.WriteString("FETCH ")
		_, _ = buffer.WriteString(s.Cursor.Fetch.String())
		_, _ = buffer.WriteString(" FROM ")
		_, _ = buffer.WriteString(s.Cursor.Name)
	}
	return buffer.String()
}

func writeSep(buffer *bytebufferpool.ByteBuffer) {
	if buffer.Len() > 0 {
		_ = buffer.WriteByte(' ')
	}
}
