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

package integration

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ecodeclub/shardmerge"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	shardCnt     = 3
	orderCnt     = 30
	createTabSQL = "CREATE TABLE IF NOT EXISTS `order_tab` (" +
		"`id` INTEGER PRIMARY KEY, `user_id` INTEGER, `city` TEXT, `amount` INTEGER, `phone` TEXT)"
	insertSQL = "INSERT INTO `order_tab` (`id`, `user_id`, `city`, `amount`, `phone`) VALUES (?, ?, ?, ?, ?)"
)

var cities = []string{"beijing", "shanghai", "shenzhen", "hangzhou"}

// ShardingSuite 使用多个内存 sqlite 作为分片，
// all 保存全部数据，用于对比合并的结果
type ShardingSuite struct {
	suite.Suite
	name   string
	engine *shardmerge.Engine
	all    *sql.DB
	// shards 用于在分片上执行 DDL 和插入数据
	shards []*sql.DB
}

func (s *ShardingSuite) SetupSuite() {
	t := s.T()
	cfg := &shardmerge.Config{Driver: "sqlite3"}
	for i := 0; i < shardCnt; i++ {
		cfg.DataSources = append(cfg.DataSources, shardmerge.DataSourceConfig{
			Name: fmt.Sprintf("ds%d", i),
			DSN:  s.dsn(fmt.Sprintf("ds%d", i)),
		})
	}
	engine, err := shardmerge.Open(cfg, s.options()...)
	require.NoError(t, err)
	s.engine = engine

	s.all, err = sql.Open("sqlite3", s.dsn("all"))
	require.NoError(t, err)
	_, err = s.all.Exec(createTabSQL)
	require.NoError(t, err)
	for i := 0; i < shardCnt; i++ {
		db, err := sql.Open("sqlite3", s.dsn(fmt.Sprintf("ds%d", i)))
		require.NoError(t, err)
		_, err = db.Exec(createTabSQL)
		require.NoError(t, err)
		s.shards = append(s.shards, db)
	}
	for id := 1; id <= orderCnt; id++ {
		args := newOrder(id)
		_, err = s.all.Exec(insertSQL, args...)
		require.NoError(t, err)
		_, err = s.shards[id%shardCnt].Exec(insertSQL, args...)
		require.NoError(t, err)
	}
}

func (s *ShardingSuite) options() []shardmerge.EngineOption {
	return []shardmerge.EngineOption{
		shardmerge.WithRuleResolvers(shardmerge.Rules(map[shardmerge.ColumnOrigin]shardmerge.Transform{
			{Table: "order_tab", Column: "phone"}: shardmerge.Mask(3, 4, '*'),
		})),
	}
}

func (s *ShardingSuite) dsn(name string) string {
	return fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", s.name, name)
}

func (s *ShardingSuite) TearDownSuite() {
	_ = s.engine.Close()
	for _, db := range s.shards {
		_ = db.Close()
	}
	_ = s.all.Close()
}

// queries 在每一个分片上执行同样的 SQL
func (s *ShardingSuite) queries(query string, args ...any) []shardmerge.Query {
	res := make([]shardmerge.Query, 0, shardCnt)
	for i := 0; i < shardCnt; i++ {
		res = append(res, shardmerge.Query{
			SQL:        query,
			Args:       args,
			Datasource: fmt.Sprintf("ds%d", i),
		})
	}
	return res
}

// want 在保存全部数据的库上执行查询
func (s *ShardingSuite) want(query string, args ...any) [][]any {
	t := s.T()
	rs, err := s.all.QueryContext(context.Background(), query, args...)
	require.NoError(t, err)
	defer func() {
		_ = rs.Close()
	}()
	return scanAll(t, rs)
}

func newOrder(id int) []any {
	var amount any
	// 部分订单没有金额
	if id%10 != 0 {
		amount = int64((id*37)%50 + 1)
	}
	return []any{id, id % 7, cities[id%len(cities)], amount, fmt.Sprintf("138%08d", id)}
}

type scanner interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
}

func scanAll(t require.TestingT, rs scanner) [][]any {
	columns, err := rs.Columns()
	require.NoError(t, err)
	res := make([][]any, 0, 8)
	for rs.Next() {
		row := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range row {
			dest[i] = &row[i]
		}
		require.NoError(t, rs.Scan(dest...))
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		res = append(res, row)
	}
	require.NoError(t, rs.Err())
	return res
}
