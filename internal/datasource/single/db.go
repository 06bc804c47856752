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

package single

import (
	"context"
	"database/sql"
	"time"

	"github.com/ecodeclub/shardmerge/internal/datasource"
)

var _ datasource.DataSource = &DB{}

// DB 一个分片对应的物理库
type DB struct {
	db *sql.DB
}

type DBOption func(db *sql.DB)

// MaxOpenConns 限制单个分片的连接数，合并时所有分片会同时查询
func MaxOpenConns(n int) DBOption {
	return func(db *sql.DB) {
		db.SetMaxOpenConns(n)
	}
}

func MaxIdleConns(n int) DBOption {
	return func(db *sql.DB) {
		db.SetMaxIdleConns(n)
	}
}

func ConnMaxLifetime(d time.Duration) DBOption {
	return func(db *sql.DB) {
		db.SetConnMaxLifetime(d)
	}
}

func (db *DB) Query(ctx context.Context, query datasource.Query) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query.SQL, query.Args...)
}

func (db *DB) Exec(ctx context.Context, query datasource.Query) (sql.Result, error) {
	return db.db.ExecContext(ctx, query.SQL, query.Args...)
}

// Stats 返回连接池的状态
func (db *DB) Stats() sql.DBStats {
	return db.db.Stats()
}

func OpenDB(driver string, dsn string, opts ...DBOption) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewDB(db, opts...), nil
}

func NewDB(db *sql.DB, opts ...DBOption) *DB {
	for _, opt := range opts {
		opt(db)
	}
	return &DB{db: db}
}

func (db *DB) Close() error {
	return db.db.Close()
}
