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

package aggregator

import (
	"fmt"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
)

type Max struct {
	maxColumnInfo merger.ColumnInfo
}

func NewMax(info merger.ColumnInfo) *Max {
	return &Max{
		maxColumnInfo: info,
	}
}

func (m *Max) ColumnInfo() []merger.ColumnInfo {
	return []merger.ColumnInfo{m.maxColumnInfo}
}

func (m *Max) Column() merger.ColumnInfo {
	return m.maxColumnInfo
}

func (*Max) Name() string {
	return "MAX"
}

func (m *Max) NewAccumulator(indexes []int) Accumulator {
	return &extremeAccumulator{
		column:         m.maxColumnInfo.String(),
		index:          indexes[0],
		isExtremeValue: isMaxValue,
	}
}

// extremeValueFunc 判断 cmp(cur, data) 的结果是否意味着 data 应该替换 cur
type extremeValueFunc func(cmp int) bool

func isMaxValue(cmp int) bool {
	return cmp < 0
}

type extremeAccumulator struct {
	column         string
	index          int
	isExtremeValue extremeValueFunc
	cur            any
}

func (e *extremeAccumulator) Accumulate(row []any) error {
	data, err := utils.Normalize(row[e.index])
	if err != nil || data == nil {
		return err
	}
	if e.cur == nil {
		e.cur = data
		return nil
	}
	cmp, err := utils.CompareValue(e.cur, data)
	if err != nil {
		return errs.NewAggregateTypeMismatch(e.column, fmt.Sprintf("%T", e.cur), data)
	}
	if e.isExtremeValue(cmp) {
		e.cur = data
	}
	return nil
}

func (e *extremeAccumulator) Result() (any, error) {
	return e.cur, nil
}
