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

	"github.com/ecodeclub/shardmerge/internal/errs"
)

var _ Rows = (*DataRows)(nil)

// DataRows 内存中的结果集。
// 游标反向 FETCH、空分片占位以及按内存分组的合并结果都会放在这里
type DataRows struct {
	data        [][]any
	columns     []string
	columnTypes []*sql.ColumnType
	// cur 当前行的下标，-1 表示还没有调用 Next
	cur    int
	closed bool
}

// NewDataRows data 中每一行的长度都应该和 columns 一致
func NewDataRows(data [][]any, columns []string, columnTypes []*sql.ColumnType) *DataRows {
	return &DataRows{
		data:        data,
		columns:     columns,
		columnTypes: columnTypes,
		cur:         -1,
	}
}

func (d *DataRows) Next() bool {
	if d.closed || d.cur+1 >= len(d.data) {
		return false
	}
	d.cur++
	return true
}

func (d *DataRows) row() ([]any, error) {
	if d.closed {
		return nil, errs.ErrMergerRowsClosed
	}
	if d.cur < 0 || d.cur >= len(d.data) {
		return nil, errs.ErrMergerScanNotNext
	}
	return d.data[d.cur], nil
}

func (d *DataRows) Scan(dest ...any) error {
	row, err := d.row()
	if err != nil {
		return err
	}
	if len(row) != len(dest) {
		return errs.NewErrScanWrongDestinationArguments(len(row), len(dest))
	}
	for i, dst := range dest {
		if err = ConvertAssign(dst, row[i]); err != nil {
			return err
		}
	}
	return nil
}

// Value 返回当前行第 index 列的原始值
func (d *DataRows) Value(index int) (any, error) {
	row, err := d.row()
	if err != nil {
		return nil, errs.NewNoCurrentRow(err)
	}
	if index < 0 || index >= len(row) {
		return nil, errs.NewColumnOutOfRange(index, len(row))
	}
	return row[index], nil
}

// Len 返回总行数，关闭之后依旧可用
func (d *DataRows) Len() int {
	return len(d.data)
}

func (d *DataRows) Close() error {
	d.closed = true
	return nil
}

func (d *DataRows) Columns() ([]string, error) {
	if d.columns == nil {
		return nil, nil
	}
	res := make([]string, len(d.columns))
	copy(res, d.columns)
	return res, nil
}

func (d *DataRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return d.columnTypes, nil
}

func (*DataRows) Err() error {
	return nil
}

func (*DataRows) NextResultSet() bool {
	return false
}
