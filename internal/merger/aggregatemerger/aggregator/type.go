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
	"math"
	"reflect"
	"strconv"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
)

// Aggregator 描述一个聚合函数怎么合并多个分片的部分结果
type Aggregator interface {
	// ColumnInfo 返回参与合并的列。AVG 返回分片额外查询的 SUM 列和 COUNT 列
	ColumnInfo() []merger.ColumnInfo
	// Column 返回合并结果写回的列
	Column() merger.ColumnInfo
	// NewAccumulator 为一个分组创建累加器，indexes 是 ColumnInfo 在分片行中的下标
	NewAccumulator(indexes []int) Accumulator
	// Name 聚合函数的名字，例如 SUM
	Name() string
}

// Accumulator 一个分组的聚合状态
type Accumulator interface {
	// Accumulate 累加一行分片数据，NULL 会被忽略
	Accumulate(row []any) error
	// Result 返回最终结果。没有任何非 NULL 的输入时，COUNT 返回 0，其余返回 nil
	Result() (any, error)
}

// Binding 聚合函数和它在分片行中的位置
type Binding struct {
	Aggregator Aggregator
	// Indexes 参与合并的列的下标
	Indexes []int
	// Output 结果写回的列的下标
	Output int
}

func (b Binding) NewAccumulator() Accumulator {
	return b.Aggregator.NewAccumulator(b.Indexes)
}

// Bind 在分片的列中找到聚合函数需要的列
func Bind(aggregators []Aggregator, columns []string) ([]Binding, error) {
	res := make([]Binding, 0, len(aggregators))
	for _, agg := range aggregators {
		infos := agg.ColumnInfo()
		indexes := make([]int, 0, len(infos))
		for _, info := range infos {
			idx, ok := info.Resolve(columns)
			if !ok {
				return nil, errs.NewInvalidAggregateColumn(info.String())
			}
			indexes = append(indexes, idx)
		}
		out, ok := agg.Column().Resolve(columns)
		if !ok {
			return nil, errs.NewInvalidAggregateColumn(agg.Column().String())
		}
		res = append(res, Binding{
			Aggregator: agg,
			Indexes:    indexes,
			Output:     out,
		})
	}
	return res, nil
}

// Apply 把每个累加器的结果写回到 row 里面
func Apply(row []any, bindings []Binding, accs []Accumulator) error {
	for i, b := range bindings {
		val, err := accs[i].Result()
		if err != nil {
			return err
		}
		row[b.Output] = val
		if p, ok := accs[i].(partsAccumulator); ok {
			for j, part := range p.Parts() {
				row[b.Indexes[j]] = part
			}
		}
	}
	return nil
}

// partsAccumulator 合并的时候需要额外的列，例如 AVG 的 SUM 和 COUNT，
// 这些列也要写回合并之后的值
type partsAccumulator interface {
	Parts() []any
}

// toNumber 把分片返回的值转成 int64、uint64、float64 中的一种，NULL 返回 nil
func toNumber(column string, val any) (any, error) {
	v, err := utils.Normalize(val)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case nil, int64, uint64, float64:
		return n, nil
	case string:
		// DECIMAL 一类的类型驱动会返回字符串
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, nil
		}
	}
	return nil, errs.NewAggregateTypeMismatch(column, "number", val)
}

// addFuncMapping 返回相加的结果，以及是否溢出
var addFuncMapping = map[reflect.Kind]func(any, any) (any, bool){
	reflect.Int64:   addInt64,
	reflect.Uint64:  addUint64,
	reflect.Float64: addFloat64,
}

func addInt64(a, b any) (any, bool) {
	x, y := a.(int64), b.(int64)
	sum := x + y
	// 同号相加之后符号变了
	return sum, (x >= 0) == (y >= 0) && (sum >= 0) != (x >= 0)
}

func addUint64(a, b any) (any, bool) {
	x, y := a.(uint64), b.(uint64)
	sum := x + y
	return sum, sum < x
}

func addFloat64(a, b any) (any, bool) {
	return a.(float64) + b.(float64), false
}

// addNumber 两个数字相加，类型不同的时候先提升到同一种类型。
// 整数溢出的时候返回错误，不会回绕
func addNumber(column string, a, b any) (any, error) {
	if a == nil {
		return b, nil
	}
	x, y := promote(a, b)
	sum, overflow := addFuncMapping[reflect.TypeOf(x).Kind()](x, y)
	if overflow {
		return nil, errs.NewAggregateOverflow(column, a, b)
	}
	return sum, nil
}

func promote(a, b any) (any, any) {
	ka, kb := reflect.TypeOf(a).Kind(), reflect.TypeOf(b).Kind()
	if ka == kb {
		return a, b
	}
	if ka == reflect.Float64 || kb == reflect.Float64 {
		return toFloat64(a), toFloat64(b)
	}
	// int64 和 uint64 混合
	ua, aok := a.(uint64)
	ub, bok := b.(uint64)
	if (aok && ua > math.MaxInt64) || (bok && ub > math.MaxInt64) {
		return toFloat64(a), toFloat64(b)
	}
	return toInt64(a), toInt64(b)
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return val.(float64)
	}
}

func toInt64(val any) int64 {
	if v, ok := val.(uint64); ok {
		return int64(v)
	}
	return val.(int64)
}
