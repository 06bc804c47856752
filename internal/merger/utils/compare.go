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

package utils

import (
	"database/sql/driver"
	"time"

	"github.com/ecodeclub/shardmerge/internal/errs"
)

type Order bool

const (
	// ASC 升序排序
	ASC Order = true
	// DESC 降序排序
	DESC Order = false
)

// NullsOrder NULL 在排序结果中的位置
type NullsOrder uint8

const (
	// NullsDefault NULL 视为最小值，升序排在最前，降序排在最后，和 MySQL 保持一致
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// First 返回在给定排序方向下 NULL 是否排在前面
func (n NullsOrder) First(order Order) bool {
	switch n {
	case NullsFirst:
		return true
	case NullsLast:
		return false
	default:
		return order == ASC
	}
}

type Ordered interface {
	~int64 | ~uint64 | ~float64 | ~string
}

func compare[T Ordered](i, j T) int {
	if i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

func compareBool(i, j bool) int {
	if i == j {
		return 0
	}
	if i && !j {
		return 1
	}
	return -1
}

// Normalize 把驱动返回的值归一成 nil、int64、uint64、float64、string、bool、time.Time 中的一种，
// 其余类型原样返回
func Normalize(val any) (any, error) {
	if valuer, ok := val.(driver.Valuer); ok {
		v, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		val = v
	}
	switch v := val.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return v, nil
	}
}

// CompareValue 比较两个非 NULL 值，-1 表示 i < j，1 表示 i > j，0 表示两者相同。
// 不同分片返回的整数、无符号整数、浮点数之间可以互相比较
func CompareValue(ii, jj any) (int, error) {
	switch i := ii.(type) {
	case int64:
		switch j := jj.(type) {
		case int64:
			return compare(i, j), nil
		case uint64:
			if i < 0 {
				return -1, nil
			}
			return compare(uint64(i), j), nil
		case float64:
			return compare(float64(i), j), nil
		}
	case uint64:
		switch j := jj.(type) {
		case uint64:
			return compare(i, j), nil
		case int64:
			if j < 0 {
				return 1, nil
			}
			return compare(i, uint64(j)), nil
		case float64:
			return compare(float64(i), j), nil
		}
	case float64:
		switch j := jj.(type) {
		case float64:
			return compare(i, j), nil
		case int64:
			return compare(i, float64(j)), nil
		case uint64:
			return compare(i, float64(j)), nil
		}
	case string:
		if j, ok := jj.(string); ok {
			return compare(i, j), nil
		}
	case bool:
		if j, ok := jj.(bool); ok {
			return compareBool(i, j), nil
		}
	case time.Time:
		if j, ok := jj.(time.Time); ok {
			switch {
			case i.Before(j):
				return -1, nil
			case i.After(j):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, errs.NewIncomparableValues(ii, jj)
}

// Compare 按照排序方向和 NULL 的位置比较两个值。
// 返回值小于 0 表示 i 应该排在 j 的前面
func Compare(ii, jj any, order Order, nulls NullsOrder) (int, error) {
	i, err := Normalize(ii)
	if err != nil {
		return 0, err
	}
	j, err := Normalize(jj)
	if err != nil {
		return 0, err
	}
	if i == nil && j == nil {
		return 0, nil
	}
	if i == nil || j == nil {
		res := 1
		if nulls.First(order) {
			res = -1
		}
		if j == nil {
			res = -res
		}
		return res, nil
	}
	res, err := CompareValue(i, j)
	if err != nil {
		return 0, err
	}
	if order == DESC {
		res = -res
	}
	return res, nil
}

// Equal 判断两组值是否完全相同，NULL 与 NULL 视为相同，用于判断分组键
func Equal(a, b []any) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for k := range a {
		res, err := Compare(a[k], b[k], ASC, NullsDefault)
		if err != nil {
			return false, err
		}
		if res != 0 {
			return false, nil
		}
	}
	return true, nil
}
