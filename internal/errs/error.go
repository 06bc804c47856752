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

package errs

import (
	"errors"
	"fmt"
)

// 六类结构性错误，合并过程中一旦出现立刻返回给调用者，不做任何重试
var (
	ErrUnknownCursor           = errors.New("merger: 未知游标")
	ErrUnresolvableOrderColumn = errors.New("merger: 无法解析排序列")
	ErrUnresolvableGroupColumn = errors.New("merger: 无法解析分组列")
	ErrAggregateTypeMismatch   = errors.New("merger: 聚合函数的类型不匹配")
	ErrShardShapeMismatch      = errors.New("merger: 分片结果集的结构不一致")
	ErrColumnOutOfRange        = errors.New("merger: 列下标越界")
)

var (
	ErrEmptySortColumns           = errors.New("merger: 排序列为空")
	ErrMergerEmptyRows            = errors.New("merger: sql.Rows列表为空")
	ErrMergerRowsIsNull           = errors.New("merger: sql.Rows列表中有元素为nil")
	ErrMergerScanNotNext          = errors.New("merger: Scan之前没有调用Next方法")
	ErrMergerRowsClosed           = errors.New("merger: Rows已经关闭")
	ErrMergerInvalidLimitOrOffset = errors.New("merger: offset或limit小于0")
	ErrMergerAggregateNotFound    = errors.New("merger: 聚合函数方法未找到")
	ErrGroupByOrderMismatch       = errors.New("merger: 排序列必须以分组列开头")
	ErrEmptyGroupColumns          = errors.New("merger: 分组列为空")

	ErrCursorExists       = errors.New("merger: 游标已经声明")
	ErrCursorClosed       = errors.New("merger: 游标已经关闭")
	ErrSessionClosed      = errors.New("merger: 会话已经关闭")
	ErrUnsupportedFetch   = errors.New("merger: 不支持的 FETCH 方向")
	ErrDataSourceNotFound = errors.New("merger: 未配置数据源")
	ErrUnsupportedDriver  = errors.New("merger: 不支持的 driver 类型")
)

func NewUnknownCursorError(name string) error {
	return fmt.Errorf("%w %s", ErrUnknownCursor, name)
}

func NewCursorExistsError(name string) error {
	return fmt.Errorf("%w %s", ErrCursorExists, name)
}

func NewCursorClosedError(name string) error {
	return fmt.Errorf("%w %s", ErrCursorClosed, name)
}

func NewRepeatSortColumn(column string) error {
	return fmt.Errorf("merger: 排序列重复%s", column)
}

// NewInvalidSortColumn 数据库字段中没有这个排序列
func NewInvalidSortColumn(column string) error {
	return fmt.Errorf("%w：%s", ErrUnresolvableOrderColumn, column)
}

func NewInvalidGroupColumn(column string) error {
	return fmt.Errorf("%w：%s", ErrUnresolvableGroupColumn, column)
}

// NewInvalidAggregateColumn 聚合函数引用的列在结果集中不存在，结果集的结构与语句不一致
func NewInvalidAggregateColumn(column string) error {
	return fmt.Errorf("%w，聚合列不存在：%s", ErrShardShapeMismatch, column)
}

func NewAggregateTypeMismatch(column string, want string, got any) error {
	return fmt.Errorf("%w，列 %s 期望 %s，实际 %T", ErrAggregateTypeMismatch, column, want, got)
}

// NewAggregateOverflow 整数求和溢出，int64 装不下合并之后的结果
func NewAggregateOverflow(column string, a, b any) error {
	return fmt.Errorf("%w，列 %s 求和溢出：%v + %v", ErrAggregateTypeMismatch, column, a, b)
}

func NewShardColumnsMismatch(want, got []string) error {
	return fmt.Errorf("%w，期望列 %v，实际列 %v", ErrShardShapeMismatch, want, got)
}

func NewShardRowLengthMismatch(want, got int) error {
	return fmt.Errorf("%w，期望 %d 列，实际 %d 列", ErrShardShapeMismatch, want, got)
}

func NewIncomparableValues(i, j any) error {
	return fmt.Errorf("%w，无法比较 %T 与 %T", ErrShardShapeMismatch, i, j)
}

func NewColumnOutOfRange(index, length int) error {
	return fmt.Errorf("%w，下标 %d，列数 %d", ErrColumnOutOfRange, index, length)
}

// NewNoCurrentRow 读取列的值的时候没有当前行，cause 说明了原因
func NewNoCurrentRow(cause error) error {
	return fmt.Errorf("%w：%w", ErrColumnOutOfRange, cause)
}

func NewErrScanWrongDestinationArguments(expect int, actual int) error {
	return fmt.Errorf("%w，Scan 方法参数个数错误，期望 %d，实际 %d", ErrColumnOutOfRange, expect, actual)
}

func NewUnsupportedFetch(direction any) error {
	return fmt.Errorf("%w %v", ErrUnsupportedFetch, direction)
}

func NewErrNotFoundTargetDataSource(name string) error {
	return fmt.Errorf("%w %s", ErrDataSourceNotFound, name)
}

func NewUnsupportedDriverError(driver string) error {
	return fmt.Errorf("%w %s", ErrUnsupportedDriver, driver)
}

func NewUnsupportedAggregateError(kind any) error {
	return fmt.Errorf("%w %v", ErrMergerAggregateNotFound, kind)
}
