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

package limitmerger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/batchmerger"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/multierr"
)

var (
	offsetMockErr error = errors.New("rows: MockOffsetErr")
	limitMockErr  error = errors.New("rows: MockLimitErr")
)

func newCloseMockErr(dbName string) error {
	return fmt.Errorf("rows: %s MockCloseErr", dbName)
}

type MergerSuite struct {
	suite.Suite
	mockDB01 *sql.DB
	mock01   sqlmock.Sqlmock
	mockDB02 *sql.DB
	mock02   sqlmock.Sqlmock
	mockDB03 *sql.DB
	mock03   sqlmock.Sqlmock
}

func (ms *MergerSuite) SetupTest() {
	t := ms.T()
	ms.initMock(t)
}

func (ms *MergerSuite) TearDownTest() {
	_ = ms.mockDB01.Close()
	_ = ms.mockDB02.Close()
	_ = ms.mockDB03.Close()
}

func (ms *MergerSuite) initMock(t *testing.T) {
	var err error
	ms.mockDB01, ms.mock01, err = sqlmock.New()
	require.NoError(t, err)
	ms.mockDB02, ms.mock02, err = sqlmock.New()
	require.NoError(t, err)
	ms.mockDB03, ms.mock03, err = sqlmock.New()
	require.NoError(t, err)
}

func (ms *MergerSuite) query(dbs ...*sql.DB) []rows.Rows {
	rowsList := make([]rows.Rows, 0, len(dbs))
	for _, db := range dbs {
		row, err := db.QueryContext(context.Background(), "SELECT * FROM `t1`")
		require.NoError(ms.T(), err)
		rowsList = append(rowsList, row)
	}
	return rowsList
}

// 三个分片，id 交叉分布在 1 到 6 之间
func (ms *MergerSuite) sixRows() []rows.Rows {
	cols := []string{"id", "name", "address"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "abex", "cn").AddRow(5, "bruce", "cn"))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "alex", "cn").AddRow(4, "x", "cn"))
	ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(2, "a", "cn").AddRow(6, "b", "cn"))
	return ms.query(ms.mockDB01, ms.mockDB02, ms.mockDB03)
}

func newSortMerger(t *testing.T) merger.Merger {
	m, err := sortmerger.NewMerger(sortmerger.NewSortColumn("id", sortmerger.ASC))
	require.NoError(t, err)
	return m
}

func (ms *MergerSuite) TestMerger_New() {
	testcases := []struct {
		name    string
		limit   Limit
		wantErr error
	}{
		{
			name:    "count 小于 -1",
			limit:   Limit{Offset: 0, Count: -2},
			wantErr: errs.ErrMergerInvalidLimitOrOffset,
		},
		{
			name:    "offset 小于0",
			limit:   Limit{Offset: -1, Count: 10},
			wantErr: errs.ErrMergerInvalidLimitOrOffset,
		},
		{
			name:  "count 等于0",
			limit: Limit{Offset: 0, Count: 0},
		},
		{
			name:  "不限制行数",
			limit: Limit{Offset: 3, Count: Unbounded},
		},
		{
			name:  "count 大于等于0，offset大于等于0",
			limit: Limit{Offset: 10, Count: 10},
		},
	}
	for _, tc := range testcases {
		ms.T().Run(tc.name, func(t *testing.T) {
			m, err := NewMerger(newSortMerger(t), tc.limit)
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			require.NotNil(t, m)
		})
	}
}

func (ms *MergerSuite) TestMerger_Merge() {
	testcases := []struct {
		name     string
		rowsList func() []rows.Rows
		ctx      func() (context.Context, context.CancelFunc)
		limit    Limit
		wantErr  error
	}{
		{
			name: "里面的Merger的Merge出错",
			rowsList: func() []rows.Rows {
				return []rows.Rows{}
			},
			limit:   Limit{Count: 1},
			wantErr: errs.ErrMergerEmptyRows,
		},
		{
			name: "跳过 offset 的时候出错",
			rowsList: func() []rows.Rows {
				cols := []string{"id", "name", "address"}
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "abex", "cn").AddRow(2, "bruce", "cn").RowError(1, offsetMockErr))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "alex", "cn").AddRow(4, "x", "cn"))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(5, "a", "cn").AddRow(7, "b", "cn"))
				return ms.query(ms.mockDB01, ms.mockDB02, ms.mockDB03)
			},
			limit:   Limit{Offset: 5, Count: 10},
			wantErr: offsetMockErr,
		},
		{
			name:     "offset的值超过返回的数据行数",
			rowsList: ms.sixRows,
			limit:    Limit{Offset: 10, Count: 10},
		},
		{
			name:     "超时",
			rowsList: ms.sixRows,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 0)
			},
			limit:   Limit{Count: 5},
			wantErr: context.DeadlineExceeded,
		},
	}
	for _, tc := range testcases {
		ms.T().Run(tc.name, func(t *testing.T) {
			limitMerger, err := NewMerger(newSortMerger(t), tc.limit)
			require.NoError(t, err)
			ctx, cancel := context.WithCancel(context.Background())
			if tc.ctx != nil {
				ctx, cancel = tc.ctx()
			}
			rs, err := limitMerger.Merge(ctx, tc.rowsList())
			cancel()
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			require.NotNil(t, rs)
			assert.False(t, rs.Next())
		})
	}
}

func (ms *MergerSuite) TestMerger_NextAndScan() {
	testcases := []struct {
		name    string
		limit   Limit
		wantIds []int
	}{
		{
			name:    "limit的行数超过了返回的总行数",
			limit:   Limit{Offset: 1, Count: 100},
			wantIds: []int{2, 3, 4, 5, 6},
		},
		{
			name:    "limit 行数小于返回的总行数",
			limit:   Limit{Offset: 2, Count: 3},
			wantIds: []int{3, 4, 5},
		},
		{
			name:    "offset超过返回的总行数",
			limit:   Limit{Offset: 7, Count: 3},
			wantIds: []int{},
		},
		{
			name:    "offset 的值为0",
			limit:   Limit{Offset: 0, Count: 2},
			wantIds: []int{1, 2},
		},
		{
			name:    "count 为0",
			limit:   Limit{Offset: 0, Count: 0},
			wantIds: []int{},
		},
		{
			name:    "不限制行数",
			limit:   Limit{Offset: 4, Count: Unbounded},
			wantIds: []int{5, 6},
		},
		{
			name:    "offset 已经下推到分片",
			limit:   Limit{Offset: 4, Count: 3, OffsetPushedDown: true},
			wantIds: []int{1, 2, 3},
		},
	}
	for _, tc := range testcases {
		ms.T().Run(tc.name, func(t *testing.T) {
			limitMerger, err := NewMerger(newSortMerger(t), tc.limit)
			require.NoError(t, err)
			rs, err := limitMerger.Merge(context.Background(), ms.sixRows())
			require.NoError(t, err)
			res := make([]int, 0, len(tc.wantIds))
			for rs.Next() {
				var model TestModel
				require.NoError(t, rs.Scan(&model.Id, &model.Name, &model.Address))
				res = append(res, model.Id)
			}
			require.NoError(t, rs.Err())
			assert.Equal(t, tc.wantIds, res)
		})
	}
}

// 结果的行数等于 max(0, min(count, N-offset))，内容是排好序的 [offset, offset+count)
func TestMerger_Window(t *testing.T) {
	all := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cols := []string{"id"}
	newRows := func() []rows.Rows {
		return []rows.Rows{
			rows.NewDataRows([][]any{{int64(1)}, {int64(4)}, {int64(7)}, {int64(10)}}, cols, nil),
			rows.NewDataRows([][]any{{int64(2)}, {int64(5)}, {int64(8)}}, cols, nil),
			rows.NewDataRows([][]any{{int64(3)}, {int64(6)}, {int64(9)}}, cols, nil),
		}
	}
	for offset := 0; offset <= 12; offset++ {
		for count := 0; count <= 12; count++ {
			limitMerger, err := NewMerger(newSortMerger(t), Limit{Offset: offset, Count: count})
			require.NoError(t, err)
			rs, err := limitMerger.Merge(context.Background(), newRows())
			require.NoError(t, err)
			got := make([]int64, 0, count)
			for rs.Next() {
				val, err := rs.Value(0)
				require.NoError(t, err)
				got = append(got, val.(int64))
			}
			start, end := offset, offset+count
			if start > len(all) {
				start = len(all)
			}
			if end > len(all) {
				end = len(all)
			}
			assert.Equal(t, all[start:end], got, "offset %d count %d", offset, count)
		}
	}
}

func (ms *MergerSuite) TestMerger_Batch() {
	cols := []string{"id"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(9).AddRow(8))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(7).AddRow(6))
	limitMerger, err := NewMerger(batchmerger.NewMerger(), Limit{Offset: 1, Count: 2})
	require.NoError(ms.T(), err)
	rs, err := limitMerger.Merge(context.Background(), ms.query(ms.mockDB01, ms.mockDB02))
	require.NoError(ms.T(), err)
	res := make([]int, 0, 2)
	for rs.Next() {
		var id int
		require.NoError(ms.T(), rs.Scan(&id))
		res = append(res, id)
	}
	assert.Equal(ms.T(), []int{8, 7}, res)
}

func (ms *MergerSuite) TestRows_NextAndErr() {
	cols := []string{"id", "name", "address"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "abex", "cn").AddRow(5, "bruce", "cn"))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "alex", "cn").AddRow(4, "x", "cn"))
	ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(2, "a", "cn").AddRow(7, "b", "cn").RowError(1, limitMockErr))
	limitMerger, err := NewMerger(newSortMerger(ms.T()), Limit{Offset: 1, Count: 10})
	require.NoError(ms.T(), err)
	rs, err := limitMerger.Merge(context.Background(), ms.query(ms.mockDB01, ms.mockDB02, ms.mockDB03))
	require.NoError(ms.T(), err)
	for rs.Next() {
	}
	require.True(ms.T(), rs.(*Rows).closed)
	assert.Equal(ms.T(), limitMockErr, rs.Err())
}

func (ms *MergerSuite) TestRows_ScanAndErr() {
	ms.T().Run("未调用Next，直接Scan，返回错", func(t *testing.T) {
		ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(5))
		limitMerger, err := NewMerger(newSortMerger(t), Limit{Count: 1})
		require.NoError(t, err)
		rs, err := limitMerger.Merge(context.Background(), ms.query(ms.mockDB01))
		require.NoError(t, err)
		id := 0
		err = rs.Scan(&id)
		assert.Equal(t, errs.ErrMergerScanNotNext, err)
		_, err = rs.Value(0)
		assert.ErrorIs(t, err, errs.ErrMergerScanNotNext)
		assert.ErrorIs(t, err, errs.ErrColumnOutOfRange)
	})
	ms.T().Run("迭代过程中发现错误,调用Scan，返回迭代中发现的错误", func(t *testing.T) {
		ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, limitMockErr))
		limitMerger, err := NewMerger(newSortMerger(t), Limit{Count: 5})
		require.NoError(t, err)
		rs, err := limitMerger.Merge(context.Background(), ms.query(ms.mockDB02))
		require.NoError(t, err)
		for rs.Next() {
		}
		id := 0
		err = rs.Scan(&id)
		assert.Equal(t, limitMockErr, err)
	})
}

func (ms *MergerSuite) TestRows_Close() {
	cols := []string{"id"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("1"))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("2").AddRow("5").CloseError(newCloseMockErr("db02")))
	ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("3").AddRow("4").CloseError(newCloseMockErr("db03")))
	limitMerger, err := NewMerger(newSortMerger(ms.T()), Limit{Offset: 1, Count: 6})
	require.NoError(ms.T(), err)
	rowsList := ms.query(ms.mockDB01, ms.mockDB02, ms.mockDB03)
	rs, err := limitMerger.Merge(context.Background(), rowsList)
	require.NoError(ms.T(), err)
	// 判断当前是可以正常读取的
	require.True(ms.T(), rs.Next())
	var id int
	require.NoError(ms.T(), rs.Scan(&id))
	assert.Equal(ms.T(), 2, id)
	err = rs.Close()
	ms.T().Run("close返回error", func(t *testing.T) {
		assert.Equal(t, []error{newCloseMockErr("db02"), newCloseMockErr("db03")}, multierr.Errors(err))
	})
	ms.T().Run("close之后Next返回false", func(t *testing.T) {
		for i := 0; i < len(rowsList); i++ {
			require.False(t, rowsList[i].Next())
		}
		require.False(t, rs.Next())
	})
	ms.T().Run("close之后Scan返回错误", func(t *testing.T) {
		var id int
		err := rs.Scan(&id)
		assert.Equal(t, errs.ErrMergerRowsClosed, err)
	})
	ms.T().Run("close多次是等效的", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			require.NoError(t, rs.Close())
		}
	})
}

func (ms *MergerSuite) TestRows_Columns() {
	limitMerger, err := NewMerger(newSortMerger(ms.T()), Limit{Count: 10})
	require.NoError(ms.T(), err)
	rs, err := limitMerger.Merge(context.Background(), ms.sixRows())
	require.NoError(ms.T(), err)
	columns, err := rs.Columns()
	require.NoError(ms.T(), err)
	assert.Equal(ms.T(), []string{"id", "name", "address"}, columns)
}

func TestMerger(t *testing.T) {
	suite.Run(t, &MergerSuite{})
}

type TestModel struct {
	Id      int
	Name    string
	Address string
}

func TestRows_NextResultSet(t *testing.T) {
	assert.False(t, (&Rows{}).NextResultSet())
}
