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

// Count 各个分片返回的是自己的行数，合并的时候相加
type Count struct {
	countColumnInfo merger.ColumnInfo
}

func NewCount(info merger.ColumnInfo) *Count {
	return &Count{
		countColumnInfo: info,
	}
}

func (c *Count) ColumnInfo() []merger.ColumnInfo {
	return []merger.ColumnInfo{c.countColumnInfo}
}

func (c *Count) Column() merger.ColumnInfo {
	return c.countColumnInfo
}

func (*Count) Name() string {
	return "COUNT"
}

func (c *Count) NewAccumulator(indexes []int) Accumulator {
	return &countAccumulator{
		sumAccumulator: sumAccumulator{
			column: c.countColumnInfo.String(),
			index:  indexes[0],
		},
	}
}

type countAccumulator struct {
	sumAccumulator
}

func (c *countAccumulator) Result() (any, error) {
	if c.sum == nil {
		return int64(0), nil
	}
	return c.sum, nil
}
