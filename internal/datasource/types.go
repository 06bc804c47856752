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

package datasource

import (
	"context"
	"database/sql"

	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"golang.org/x/sync/errgroup"
)

// Query 路由之后在某一个分片上执行的查询
type Query struct {
	SQL  string
	Args []any
	// Datasource 数据源名字，例如 0.db.cluster.company.com:3306
	Datasource string
	// DB 库名，例如 order_db_0
	DB string
	// Table 表名，例如 order_tab_1
	Table string
}

// Shard 分片标识，例如 order_db_0.order_tab_1
func (q Query) Shard() string {
	res := q.Datasource
	for _, seg := range []string{q.DB, q.Table} {
		if seg == "" {
			continue
		}
		if res != "" {
			res += "."
		}
		res += seg
	}
	return res
}

type DataSource interface {
	Query(ctx context.Context, query Query) (*sql.Rows, error)
	Exec(ctx context.Context, query Query) (sql.Result, error)
	Close() error
}

// QueryAll 并发地在各个分片上执行查询，
// 返回的结果和 queries 的顺序一致，也就是分片注册的顺序。
// 任何一个查询失败都会关闭已经拿到的结果集
func QueryAll(ctx context.Context, ds DataSource, queries []Query) ([]merger.Result, error) {
	res := make([]merger.Result, len(queries))
	// 不能使用 errgroup.WithContext，Wait 返回之后 context 会被取消，结果集也会随之关闭
	var eg errgroup.Group
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			rs, err := ds.Query(ctx, q)
			if err != nil {
				return err
			}
			res[i] = merger.Result{
				Shard: q.Shard(),
				Rows:  rs,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		list := make([]rows.Rows, 0, len(res))
		for _, r := range res {
			if r.Rows != nil {
				list = append(list, r.Rows)
			}
		}
		_ = merger.CloseAll(list)
		return nil, err
	}
	return res, nil
}

// ExecColumns 广播 DML 的确认结果，每个分片一行
var ExecColumns = []string{"shard", "affected"}

// ExecAll 并发地在各个分片上执行 DDL 或者 DML。
// 每个分片的执行结果被转换成只有一行的结果集，列为 ExecColumns
func ExecAll(ctx context.Context, ds DataSource, queries []Query) ([]merger.Result, error) {
	res := make([]merger.Result, len(queries))
	var eg errgroup.Group
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			r, err := ds.Exec(ctx, q)
			if err != nil {
				return err
			}
			affected, err := r.RowsAffected()
			if err != nil {
				return err
			}
			res[i] = merger.Result{
				Shard: q.Shard(),
				Rows:  rows.NewDataRows([][]any{{q.Shard(), affected}}, ExecColumns, nil),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
