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
	"github.com/ecodeclub/shardmerge/internal/merger"
)

// AVG 不能直接对各个分片的平均值求平均。
// 分片额外返回 SUM 和 COUNT，合并之后再相除
type AVG struct {
	sumInfo   merger.ColumnInfo
	countInfo merger.ColumnInfo
	avgInfo   merger.ColumnInfo
}

// NewAVG 第一个参数为分片返回的 SUM 列，第二个为 COUNT 列，第三个为 AVG 结果所在的列
func NewAVG(sumInfo merger.ColumnInfo, countInfo merger.ColumnInfo, avgInfo merger.ColumnInfo) *AVG {
	return &AVG{
		sumInfo:   sumInfo,
		countInfo: countInfo,
		avgInfo:   avgInfo,
	}
}

func (a *AVG) ColumnInfo() []merger.ColumnInfo {
	return []merger.ColumnInfo{a.sumInfo, a.countInfo}
}

func (a *AVG) Column() merger.ColumnInfo {
	return a.avgInfo
}

func (*AVG) Name() string {
	return "AVG"
}

func (a *AVG) NewAccumulator(indexes []int) Accumulator {
	return &avgAccumulator{
		sum: sumAccumulator{
			column: a.sumInfo.String(),
			index:  indexes[0],
		},
		count: sumAccumulator{
			column: a.countInfo.String(),
			index:  indexes[1],
		},
	}
}

type avgAccumulator struct {
	sum   sumAccumulator
	count sumAccumulator
}

func (a *avgAccumulator) Accumulate(row []any) error {
	if err := a.sum.Accumulate(row); err != nil {
		return err
	}
	return a.count.Accumulate(row)
}

func (a *avgAccumulator) Result() (any, error) {
	if a.sum.sum == nil || a.count.sum == nil {
		return nil, nil
	}
	count := toFloat64(a.count.sum)
	if count == 0 {
		return nil, nil
	}
	return toFloat64(a.sum.sum) / count, nil
}

func (a *avgAccumulator) Parts() []any {
	count := a.count.sum
	if count == nil {
		count = int64(0)
	}
	return []any{a.sum.sum, count}
}
