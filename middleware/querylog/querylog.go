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

package querylog

import (
	"context"

	"github.com/ecodeclub/shardmerge"
	"go.uber.org/zap"
)

// MiddlewareBuilder 在分片查询之前输出每一个分片上执行的 SQL
type MiddlewareBuilder struct {
	logFunc func(shard string, sql string, args ...any)
}

func NewBuilder() *MiddlewareBuilder {
	return (&MiddlewareBuilder{}).Logger(zap.L())
}

// Logger 使用 zap 在 Debug 级别输出
func (b *MiddlewareBuilder) Logger(logger *zap.Logger) *MiddlewareBuilder {
	b.logFunc = func(shard string, sql string, args ...any) {
		logger.Debug("分片查询",
			zap.String("shard", shard),
			zap.String("sql", sql),
			zap.Any("args", args))
	}
	return b
}

func (b *MiddlewareBuilder) LogFunc(logFunc func(shard string, sql string, args ...any)) *MiddlewareBuilder {
	b.logFunc = logFunc
	return b
}

func (b *MiddlewareBuilder) Build() shardmerge.Middleware {
	return func(next shardmerge.HandleFunc) shardmerge.HandleFunc {
		return func(ctx context.Context, queryContext *shardmerge.QueryContext) *shardmerge.QueryResult {
			for _, query := range queryContext.Queries {
				b.logFunc(query.Shard(), query.SQL, query.Args...)
			}
			return next(ctx, queryContext)
		}
	}
}
