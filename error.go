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

import "github.com/ecodeclub/shardmerge/internal/errs"

// 哨兵错误，或者说预定义错误，谨慎添加
var (
	// ErrUnknownCursor FETCH 的游标没有声明，或者已经关闭
	ErrUnknownCursor = errs.ErrUnknownCursor
	// ErrUnresolvableOrderColumn 排序列在分片结果集中不存在
	ErrUnresolvableOrderColumn = errs.ErrUnresolvableOrderColumn
	// ErrUnresolvableGroupColumn 分组列在分片结果集中不存在
	ErrUnresolvableGroupColumn = errs.ErrUnresolvableGroupColumn
	// ErrAggregateTypeMismatch 聚合函数无法合并分片返回的值
	ErrAggregateTypeMismatch = errs.ErrAggregateTypeMismatch
	// ErrShardShapeMismatch 分片结果集的列和预期不一致
	ErrShardShapeMismatch = errs.ErrShardShapeMismatch
	// ErrColumnOutOfRange 没有当前行或者列下标越界
	ErrColumnOutOfRange = errs.ErrColumnOutOfRange

	ErrCursorExists     = errs.ErrCursorExists
	ErrSessionClosed    = errs.ErrSessionClosed
	ErrUnsupportedFetch = errs.ErrUnsupportedFetch
	ErrRowsClosed       = errs.ErrMergerRowsClosed
)
