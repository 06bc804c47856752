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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/ecodeclub/shardmerge"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// 准备数据，两个分片上各有若干城市
	cfg := &shardmerge.Config{
		Driver: "sqlite3",
		Log:    shardmerge.LogConfig{Level: "info"},
		DataSources: []shardmerge.DataSourceConfig{
			{Name: "ds0", DSN: "file:distinct_ds0?mode=memory&cache=shared"},
			{Name: "ds1", DSN: "file:distinct_ds1?mode=memory&cache=shared"},
		},
	}
	shards := map[string][]string{
		"ds0": {"beijing", "shanghai", "beijing"},
		"ds1": {"shenzhen", "beijing", "hangzhou"},
	}
	for _, dsc := range cfg.DataSources {
		db, err := sql.Open("sqlite3", dsc.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if _, err = db.Exec("CREATE TABLE `user_tab` (`id` INTEGER PRIMARY KEY, `city` TEXT)"); err != nil {
			log.Fatal(err)
		}
		for _, city := range shards[dsc.Name] {
			if _, err = db.Exec("INSERT INTO `user_tab` (`city`) VALUES (?)", city); err != nil {
				log.Fatal(err)
			}
		}
	}

	engine, err := shardmerge.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	// SELECT DISTINCT city FROM user_tab ORDER BY city，每个分片去重之后再合并去重
	queries := []shardmerge.Query{
		{SQL: "SELECT DISTINCT `city` FROM `user_tab` ORDER BY `city`", Datasource: "ds0"},
		{SQL: "SELECT DISTINCT `city` FROM `user_tab` ORDER BY `city`", Datasource: "ds1"},
	}
	rs, err := engine.Query(context.Background(), &shardmerge.Statement{
		Distinct: true,
		OrderBy:  []shardmerge.OrderItem{shardmerge.Asc("city")},
	}, queries)
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close()
	for rs.Next() {
		var city string
		if err = rs.Scan(&city); err != nil {
			log.Fatal(err)
		}
		fmt.Println(city)
	}
	if err = rs.Err(); err != nil {
		log.Fatal(err)
	}

	// SELECT COUNT(DISTINCT city) 无法直接合并，先取各分片去重之后的 city，再在内存中计数
	cnt := 0
	rs, err = engine.Query(context.Background(), &shardmerge.Statement{Distinct: true}, queries)
	if err != nil {
		log.Fatal(err)
	}
	for rs.Next() {
		cnt++
	}
	_ = rs.Close()
	fmt.Println("count distinct:", cnt)
}
