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

const config = `
driver = "sqlite3"

[log]
level = "debug"

[[datasources]]
name = "ds0"
dsn = "file:cursor_ds0?mode=memory&cache=shared"

[[datasources]]
name = "ds1"
dsn = "file:cursor_ds1?mode=memory&cache=shared"
`

func main() {
	cfg, err := shardmerge.ParseConfig(config)
	if err != nil {
		log.Fatal(err)
	}
	// 奇数订单在 ds0，偶数订单在 ds1
	for i, dsc := range cfg.DataSources {
		db, err := sql.Open("sqlite3", dsc.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if _, err = db.Exec("CREATE TABLE `order_tab` (`id` INTEGER PRIMARY KEY, `buyer` TEXT)"); err != nil {
			log.Fatal(err)
		}
		for id := i + 1; id <= 10; id += 2 {
			if _, err = db.Exec("INSERT INTO `order_tab` (`id`, `buyer`) VALUES (?, ?)",
				id, fmt.Sprintf("buyer-%02d", id)); err != nil {
				log.Fatal(err)
			}
		}
	}

	engine, err := shardmerge.Open(cfg, shardmerge.WithRuleResolvers(
		shardmerge.Rules(map[shardmerge.ColumnOrigin]shardmerge.Transform{
			{Table: "order_tab", Column: "buyer"}: shardmerge.Mask(1, 2, '*'),
		})))
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	sess := engine.NewSession()
	defer sess.Close()
	// DECLARE c1 CURSOR FOR SELECT id, buyer FROM order_tab ORDER BY id
	if err = sess.Declare("c1"); err != nil {
		log.Fatal(err)
	}
	queries := make([]shardmerge.Query, 0, len(cfg.DataSources))
	for _, dsc := range cfg.DataSources {
		queries = append(queries, shardmerge.Query{
			SQL:        "SELECT `id`, `buyer` FROM `order_tab` ORDER BY `id`",
			Datasource: dsc.Name,
		})
	}
	fetches := []shardmerge.Fetch{
		shardmerge.FetchNext(),
		shardmerge.FetchForward(3),
		shardmerge.FetchBackward(2),
		shardmerge.FetchAll(),
		shardmerge.FetchNext(),
	}
	for _, f := range fetches {
		rs, err := sess.Query(context.Background(), &shardmerge.Statement{
			OrderBy: []shardmerge.OrderItem{shardmerge.Asc("id")},
			Cursor:  &shardmerge.CursorFetch{Name: "c1", Fetch: f},
			Origins: []shardmerge.ColumnOrigin{{}, {Table: "order_tab", Column: "buyer"}},
		}, queries)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("FETCH %s FROM c1\n", f)
		for rs.Next() {
			var id int64
			var buyer string
			if err = rs.Scan(&id, &buyer); err != nil {
				log.Fatal(err)
			}
			fmt.Printf("  %d %s\n", id, buyer)
		}
		if err = rs.Err(); err != nil {
			log.Fatal(err)
		}
		_ = rs.Close()
	}
	if err = sess.CloseCursor("c1"); err != nil {
		log.Fatal(err)
	}
}
