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

package merger

import (
	"context"
	"strconv"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"go.uber.org/multierr"
)

// Merger 将 rows.Rows 列表里的元素合并，返回一个类似 sql.Rows 的迭代器
// Merger rows.Rows 列表中每个 rows.Rows 仅支持单个结果集且每个 rows.Rows 中列集必须完全相同。
type Merger interface {
	Merge(ctx context.Context, results []rows.Rows) (Rows, error)
}

// Rows 合并之后的结果集。
// 当前行永远指向"胜出"的那个分片行，不会复制所有候选行
type Rows interface {
	rows.Rows
	// Value 返回当前行第 index 列的值
	// 没有当前行或者下标越界的时候返回 errs.ErrColumnOutOfRange 一类的错误
	Value(index int) (any, error)
}

// Result 带有分片标识的分片结果集
type Result struct {
	// Shard 分片标识，例如 order_db_0.order_tab_1
	Shard string
	Rows  rows.Rows
	// Empty 表示该分片没有任何命中的数据，Rows 里面至多是一个哨兵行
	Empty bool
}

type ColumnInfo struct {
	Index int
	Name  string
}

func NewColumnInfo(index int, name string) ColumnInfo {
	return ColumnInfo{
		Index: index,
		Name:  name,
	}
}

// Resolve 在列名列表中找到列的下标。
// Name 不为空的时候按照列名查找第一个匹配的列，否则直接使用 Index
func (c ColumnInfo) Resolve(columns []string) (int, bool) {
	if c.Name != "" {
		for idx, col := range columns {
			if col == c.Name {
				return idx, true
			}
		}
		return -1, false
	}
	if c.Index < 0 || c.Index >= len(columns) {
		return -1, false
	}
	return c.Index, true
}

func (c ColumnInfo) String() string {
	if c.Name != "" {
		return c.Name
	}
	return "#" + strconv.Itoa(c.Index)
}

// CheckRows 校验分片结果集列表，并返回统一的列名
func CheckRows(results []rows.Rows) ([]string, error) {
	if len(results) == 0 {
		return nil, errs.ErrMergerEmptyRows
	}
	var columns []string
	for idx, rs := range results {
		if rs == nil {
			return nil, errs.ErrMergerRowsIsNull
		}
		cols, err := rs.Columns()
		if err != nil {
			return nil, err
		}
		if idx == 0 {
			columns = cols
			continue
		}
		if !sameColumns(columns, cols) {
			return nil, errs.NewShardColumnsMismatch(columns, cols)
		}
	}
	return columns, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CloseAll 关闭所有分片的结果集，返回合并之后的错误
func CloseAll(results []rows.Rows) error {
	var err error
	for _, r := range results {
		if r == nil {
			continue
		}
		err = multierr.Append(err, r.Close())
	}
	return err
}
