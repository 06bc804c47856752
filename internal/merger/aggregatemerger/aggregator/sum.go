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

type Sum struct {
	sumColumnInfo merger.ColumnInfo
}

func NewSum(info merger.ColumnInfo) *Sum {
	return &Sum{
		sumColumnInfo: info,
	}
}

func (s *Sum) ColumnInfo() []merger.ColumnInfo {
	return []merger.ColumnInfo{s.sumColumnInfo}
}

func (s *Sum) Column() merger.ColumnInfo {
	return s.sumColumnInfo
}

func (*Sum) Name() string {
	return "SUM"
}

func (s *Sum) NewAccumulator(indexes []int) Accumulator {
	return &sumAccumulator{
		column: s.sumColumnInfo.String(),
		index:  indexes[0],
	}
}

type sumAccumulator struct {
	column string
	index  int
	sum    any
}

func (s *sumAccumulator) Accumulate(row []any) error {
	val, err := toNumber(s.column, row[s.index])
	if err != nil || val == nil {
		return err
	}
	sum, err := addNumber(s.column, s.sum, val)
	if err != nil {
		return err
	}
	s.sum = sum
	return nil
}

func (s *sumAccumulator) Result() (any, error) {
	return s.sum, nil
}
