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

import (
	"context"
)

// QueryContext.Type 的取值
const (
	TypeSelect = "SELECT"
	TypeFetch  = "FETCH"
	TypeExec   = "EXEC"
)

// QueryContext 在分片上执行查询的上下文
type QueryContext struct {
	// Type 声明语句的类型，例如 SELECT、FETCH
	Type      string
	Statement *Statement
	// Queries 路由之后在各个分片上执行的查询，按照分片注册的顺序排列
	Queries []Query
}

type QueryResult struct {
	// Results 和 Queries 一一对应
	Results []Result
	Err     error
}

type Middleware func(next HandleFunc) HandleFunc

type HandleFunc func(ctx context.Context, queryContext *QueryContext) *QueryResult
