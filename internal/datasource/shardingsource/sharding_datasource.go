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

package shardingsource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ecodeclub/shardmerge/internal/datasource"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"go.uber.org/multierr"
)

var _ datasource.DataSource = &ShardingDataSource{}

// ShardingDataSource 以数据源名字作为索引，
// 每一个 Query 根据 Datasource 找到对应的数据源，DB 交给数据源自己处理
type ShardingDataSource struct {
	sources map[string]datasource.DataSource
}

func (s *ShardingDataSource) Query(ctx context.Context, query datasource.Query) (*sql.Rows, error) {
	ds, err := s.source(query)
	if err != nil {
		return nil, err
	}
	return ds.Query(ctx, query)
}

func (s *ShardingDataSource) Exec(ctx context.Context, query datasource.Query) (sql.Result, error) {
	ds, err := s.source(query)
	if err != nil {
		return nil, err
	}
	return ds.Exec(ctx, query)
}

func (s *ShardingDataSource) source(query datasource.Query) (datasource.DataSource, error) {
	ds, ok := s.sources[query.Datasource]
	if !ok {
		return nil, errs.NewErrNotFoundTargetDataSource(query.Datasource)
	}
	return ds, nil
}

func NewShardingDataSource(m map[string]datasource.DataSource) datasource.DataSource {
	return &ShardingDataSource{
		sources: m,
	}
}

func (s *ShardingDataSource) Close() error {
	var err error
	for name, ds := range s.sources {
		if er := ds.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("关闭数据源 %s 失败: %w", name, er))
		}
	}
	return err
}
