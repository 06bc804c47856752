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

package cluster

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ecodeclub/shardmerge/internal/datasource"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"go.uber.org/multierr"
)

var _ datasource.DataSource = &clusterDB{}

// clusterDB 以 DB 名称作为索引目标数据库
type clusterDB struct {
	dbs map[string]datasource.DataSource
}

func (c *clusterDB) Query(ctx context.Context, query datasource.Query) (*sql.Rows, error) {
	db, ok := c.dbs[query.DB]
	if !ok {
		return nil, errs.NewErrNotFoundTargetDataSource(query.DB)
	}
	return db.Query(ctx, query)
}

func (c *clusterDB) Exec(ctx context.Context, query datasource.Query) (sql.Result, error) {
	db, ok := c.dbs[query.DB]
	if !ok {
		return nil, errs.NewErrNotFoundTargetDataSource(query.DB)
	}
	return db.Exec(ctx, query)
}

func (c *clusterDB) Close() error {
	var err error
	for name, db := range c.dbs {
		if er := db.Close(); er != nil {
			err = multierr.Combine(err, fmt.Errorf("db name [%s] error: %w", name, er))
		}
	}
	return err
}

func NewClusterDB(dbs map[string]datasource.DataSource) datasource.DataSource {
	return &clusterDB{dbs: dbs}
}
