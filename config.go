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
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ecodeclub/shardmerge/internal/datasource"
	"github.com/ecodeclub/shardmerge/internal/datasource/cluster"
	"github.com/ecodeclub/shardmerge/internal/datasource/shardingsource"
	"github.com/ecodeclub/shardmerge/internal/datasource/single"
	"github.com/ecodeclub/shardmerge/internal/dialect"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 配置文件，例如：
//
//	driver = "mysql"
//
//	[log]
//	level = "debug"
//
//	[[datasources]]
//	name = "0.db.cluster.company.com:3306"
//	dsn = "root:root@tcp(localhost:13306)/order_db_0"
//
//	[[datasources]]
//	name = "1.db.cluster.company.com:3306"
//	  [[datasources.dbs]]
//	  name = "order_db_1"
//	  dsn = "root:root@tcp(localhost:13307)/order_db_1"
type Config struct {
	Driver      string             `toml:"driver"`
	Log         LogConfig          `toml:"log"`
	DataSources []DataSourceConfig `toml:"datasources"`
}

type LogConfig struct {
	// Level debug、info、warn、error，为空的时候不输出日志
	Level string `toml:"level"`
}

// DataSourceConfig 一个数据源。配置了 DBs 的时候按照库名路由
// DataSourceConfig 配置了 DBs 的时候，DSN 不生效，Pool 对所有的库生效
type DataSourceConfig struct {
	Name string     `toml:"name"`
	DSN  string     `toml:"dsn"`
	Pool PoolConfig `toml:"pool"`
	DBs  []DBConfig `toml:"dbs"`
}

type DBConfig struct {
	Name string `toml:"name"`
	DSN  string `toml:"dsn"`
}

// PoolConfig 连接池配置，ConnMaxLifetime 使用 time.ParseDuration 的格式，例如 30m
type PoolConfig struct {
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfig(data string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open 根据配置打开所有的数据源
func Open(cfg *Config, opts ...EngineOption) (*Engine, error) {
	if _, err := dialect.Of(cfg.Driver); err != nil {
		return nil, err
	}
	logger, err := cfg.Log.build()
	if err != nil {
		return nil, err
	}
	sources := make(map[string]datasource.DataSource, len(cfg.DataSources))
	for _, dsc := range cfg.DataSources {
		ds, err := openDataSource(cfg.Driver, dsc)
		if err != nil {
			for _, opened := range sources {
				err = multierr.Append(err, opened.Close())
			}
			return nil, err
		}
		sources[dsc.Name] = ds
	}
	opts = append([]EngineOption{
		WithLogger(logger),
		WithDataSource(shardingsource.NewShardingDataSource(sources)),
	}, opts...)
	return NewEngine(cfg.Driver, opts...)
}

func openDataSource(driver string, cfg DataSourceConfig) (datasource.DataSource, error) {
	if cfg.Name == "" {
		return nil, errors.New("shardmerge: 数据源没有名字")
	}
	opts, err := cfg.Pool.options()
	if err != nil {
		return nil, fmt.Errorf("shardmerge: 数据源 %s: %w", cfg.Name, err)
	}
	if len(cfg.DBs) == 0 {
		return openDB(driver, cfg.DSN, opts...)
	}
	dbs := make(map[string]datasource.DataSource, len(cfg.DBs))
	for _, dbc := range cfg.DBs {
		db, err := openDB(driver, dbc.DSN, opts...)
		if err != nil {
			for _, opened := range dbs {
				err = multierr.Append(err, opened.Close())
			}
			return nil, fmt.Errorf("shardmerge: 数据源 %s 的库 %s: %w", cfg.Name, dbc.Name, err)
		}
		dbs[dbc.Name] = db
	}
	return cluster.NewClusterDB(dbs), nil
}

func openDB(driver string, dsn string, opts ...single.DBOption) (*single.DB, error) {
	if driver == "mysql" {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, err
		}
	}
	return single.OpenDB(driver, dsn, opts...)
}

func (p PoolConfig) options() ([]single.DBOption, error) {
	opts := make([]single.DBOption, 0, 3)
	if p.MaxOpenConns > 0 {
		opts = append(opts, single.MaxOpenConns(p.MaxOpenConns))
	}
	if p.MaxIdleConns > 0 {
		opts = append(opts, single.MaxIdleConns(p.MaxIdleConns))
	}
	if p.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(p.ConnMaxLifetime)
		if err != nil {
			return nil, err
		}
		opts = append(opts, single.ConnMaxLifetime(d))
	}
	return opts, nil
}

func (l LogConfig) build() (*zap.Logger, error) {
	if l.Level == "" {
		return zap.NewNop(), nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
