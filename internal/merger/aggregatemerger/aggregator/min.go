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

type Min struct {
	minColumnInfo merger.ColumnInfo
}

func NewMin(info merger.ColumnInfo) *Min {
	return &Min{
		minColumnInfo: info,
	}
}

func (m *Min) ColumnInfo() []merger.ColumnInfo {
	return []merger.ColumnInfo{m.minColumnInfo}
}

func (m *Min) Column() merger.ColumnInfo {
	return m.minColumnInfo
}

func (*Min) Name() string {
	return "MIN"
}

func (m *Min) NewAccumulator(indexes []int) Accumulator {
	return &extremeAccumulator{
		column:         m.minColumnInfo.String(),
		index:          indexes[0],
		isExtremeValue: isMinValue,
	}
}

func isMinValue(cmp int) bool {
	return cmp > 0
}
