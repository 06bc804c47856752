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

package utils

import (
	"reflect"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// Scan 把分片当前行读取到 []any 里面。
// 分片在 Next 之后会覆盖当前行，所以合并过程中需要保留的行都要先读出来
func Scan(row rows.Rows) ([]any, error) {
	colsInfo, err := row.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var colsData []any
	if len(colsInfo) == 0 {
		// 内存结果集没有列类型，直接用 *any 接收
		cols, err := row.Columns()
		if err != nil {
			return nil, err
		}
		colsData = make([]any, 0, len(cols))
		for range cols {
			colsData = append(colsData, new(any))
		}
	} else {
		colsData = make([]any, 0, len(colsInfo))
		// 拿到 sql.Rows 字段的类型然后初始化
		for _, colInfo := range colsInfo {
			typ := colInfo.ScanType()
			if typ == nil {
				colsData = append(colsData, new(any))
				continue
			}
			// sqlite3的驱动返回的是指针。循环的去除指针
			for typ.Kind() == reflect.Pointer {
				typ = typ.Elem()
			}
			colsData = append(colsData, reflect.New(typ).Interface())
		}
	}
	// 通过Scan赋值
	err = row.Scan(colsData...)
	if err != nil {
		return nil, err
	}
	// 去掉reflect.New的指针
	for i := 0; i < len(colsData); i++ {
		colsData[i] = reflect.ValueOf(colsData[i]).Elem().Interface()
	}
	return colsData, nil
}

// ScanRow 读取分片当前行并校验列数
func ScanRow(row rows.Rows, columns int) ([]any, error) {
	data, err := Scan(row)
	if err != nil {
		return nil, err
	}
	if len(data) != columns {
		return nil, errs.NewShardRowLengthMismatch(columns, len(data))
	}
	return data, nil
}

// ColumnValue 返回行中的第 index 列
func ColumnValue(row []any, index int) (any, error) {
	if row == nil {
		return nil, errs.NewNoCurrentRow(errs.ErrMergerScanNotNext)
	}
	if index < 0 || index >= len(row) {
		return nil, errs.NewColumnOutOfRange(index, len(row))
	}
	return row[index], nil
}

// AssignRow 把一行数据写进 Scan 的目标
func AssignRow(row []any, dest ...any) error {
	if row == nil {
		return errs.ErrMergerScanNotNext
	}
	if len(dest) > len(row) {
		return errs.NewErrScanWrongDestinationArguments(len(row), len(dest))
	}
	for i := 0; i < len(dest); i++ {
		if err := rows.ConvertAssign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}
