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

package rows

import (
	"database/sql"
	"database/sql/driver"
	_ "unsafe"
)

var _ Rows = (*sql.Rows)(nil)

// Rows 单个分片返回的原始结果集，方法语义与 *sql.Rows 保持一致
// 合并引擎只是借用它，同一时间只会有一个调用者驱动它
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Err() error
	NextResultSet() bool
}

//go:linkname sqlConvertAssign database/sql.convertAssign
func sqlConvertAssign(dest, src any) error

// ConvertAssign 把合并之后的列值写入 Scan 的目标
func ConvertAssign(dest, src any) error {
	if srcVal, ok := src.(driver.Valuer); ok {
		var err error
		src, err = srcVal.Value()
		if err != nil {
			return err
		}
	}
	// 预处理一下 sqlConvertAssign 不支持的转换，遇到一个加一个
	if sv, ok := src.(sql.RawBytes); ok {
		if dv, ok := dest.(*string); ok {
			*dv = string(sv)
			return nil
		}
	}
	return sqlConvertAssign(dest, src)
}
