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

package dialect

import (
	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
)

// Dialect 不同数据库在合并结果时的差异
type Dialect struct {
	Name string
	// NullsLargest 为 true 的时候 NULL 被视为最大值，
	// 也就是升序排在最后，降序排在最前，例如 PostgreSQL
	NullsLargest bool
}

var (
	MySQL = Dialect{
		Name: "MySQL",
	}
	SQLite = Dialect{
		Name: "SQLite",
	}
	PostgreSQL = Dialect{
		Name:         "PostgreSQL",
		NullsLargest: true,
	}
)

// Of 根据 database/sql 的驱动名字找到方言
func Of(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "pgx":
		return PostgreSQL, nil
	default:
		return Dialect{}, errs.NewUnsupportedDriverError(driver)
	}
}

// Nulls 排序时没有指定 NULLS FIRST 或者 NULLS LAST，返回数据库实际使用的 NULL 位置
func (d Dialect) Nulls(order utils.Order, nulls utils.NullsOrder) utils.NullsOrder {
	if nulls != utils.NullsDefault || !d.NullsLargest {
		return nulls
	}
	if order == utils.DESC {
		return utils.NullsFirst
	}
	return utils.NullsLast
}
