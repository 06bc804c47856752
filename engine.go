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

	"github.com/ecodeclub/shardmerge/internal/datasource"
	"github.com/ecodeclub/shardmerge/internal/dialect"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/decorator"
	"go.uber.org/zap"
)

// Rows 合并之后的结果集
type Rows = merger.Rows

// Result 带有分片标识的分片结果集
type Result = merger.Result

// Query 在某个分片上执行的查询
type Query = datasource.Query

// Transform 对列的值进行转换，例如脱敏或者解密
type Transform = decorator.Transform

// RuleResolver 根据逻辑表和列找到转换规则
type RuleResolver = decorator.RuleResolver

var (
	// Rules 按照表和列查找转换函数
	Rules = decorator.Rules
	// Mask 保留前 prefix 个和后 suffix 个字符，其余替换为 mask
	Mask = decorator.Mask
)

type EngineOption func(e *Engine)

// Engine 合并多个分片的查询结果
type Engine struct {
	ds      datasource.DataSource
	dialect dialect.Dialect
	logger  *zap.Logger
	// rules 每一个规则对应一层装饰器，按照顺序嵌套
	rules []RuleResolver
	ms    []Middleware
}

// NewEngine driver 决定了方言，例如 mysql、sqlite3
func NewEngine(driver string, opts ...EngineOption) (*Engine, error) {
	dl, err := dialect.Of(driver)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		dialect: dl,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithDataSource(ds datasource.DataSource) EngineOption {
	return func(e *Engine) {
		e.ds = ds
	}
}

// WithRuleResolvers 例如先解密再脱敏
func WithRuleResolvers(rules ...RuleResolver) EngineOption {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

func WithMiddlewares(ms ...Middleware) EngineOption {
	return func(e *Engine) {
		e.ms = append(e.ms, ms...)
	}
}

// Query 在分片上执行查询并且合并结果。游标相关的语句需要使用 Session
func (e *Engine) Query(ctx context.Context, stmt *Statement, queries []Query) (Rows, error) {
	if stmt.Cursor != nil {
		return nil, errs.NewUnknownCursorError(stmt.Cursor.Name)
	}
	results, err := e.execute(ctx, TypeSelect, stmt, queries)
	if err != nil {
		return nil, err
	}
	return e.Merge(ctx, stmt, results)
}

// Exec 在所有分片上广播执行 DDL 或者 DML。
// 返回的结果集每个分片一行，列为 shard 和 affected，按照分片注册的顺序排列
func (e *Engine) Exec(ctx context.Context, queries []Query) (Rows, error) {
	stmt := &Statement{}
	results, err := e.execute(ctx, TypeExec, stmt, queries)
	if err != nil {
		return nil, err
	}
	return e.Merge(ctx, stmt, results)
}

// execute 经过 middleware 之后在所有分片上并发执行查询
func (e *Engine) execute(ctx context.Context, typ string, stmt *Statement, queries []Query) ([]Result, error) {
	var root HandleFunc = func(ctx context.Context, qc *QueryContext) *QueryResult {
		if e.ds == nil {
			return &QueryResult{Err: errs.ErrDataSourceNotFound}
		}
		execAll := datasource.QueryAll
		if qc.Type == TypeExec {
			execAll = datasource.ExecAll
		}
		results, err := execAll(ctx, e.ds, qc.Queries)
		return &QueryResult{Results: results, Err: err}
	}
	for i := len(e.ms) - 1; i >= 0; i-- {
		root = e.ms[i](root)
	}
	res := root(ctx, &QueryContext{
		Type:      typ,
		Statement: stmt,
		Queries:   queries,
	})
	if res.Err != nil {
		e.logger.Error("分片查询失败", zap.Stringer("stmt", stmt), zap.Int("shards", len(queries)), zap.Error(res.Err))
		return nil, res.Err
	}
	return res.Results, nil
}

func (e *Engine) Close() error {
	if e.ds == nil {
		return nil
	}
	return e.ds.Close()
}
