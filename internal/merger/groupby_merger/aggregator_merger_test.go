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

package groupby_merger

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/aggregatemerger/aggregator"
	"github.com/ecodeclub/shardmerge/internal/merger/sortmerger"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var nextMockErr = errors.New("rows: MockNextErr")

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

func (ms *MergerSuite) dbs() []*sql.DB {
	return []*sql.DB{ms.mockDB01, ms.mockDB02, ms.mockDB03}
}

func collect(t *testing.T, rs merger.Rows) [][]any {
	cols, err := rs.Columns()
	require.NoError(t, err)
	res := make([][]any, 0, 4)
	for rs.Next() {
		row := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		require.NoError(t, rs.Scan(dest...))
		res = append(res, row)
	}
	require.NoError(t, rs.Err())
	return res
}

func TestMerger(t *testing.T) {
	suite.Run(t, &MergerSuite{})
}

func (ms *MergerSuite) TestAggregatorMerger_NextAndScan() {
	cols := []string{"county", "gender", "SUM(id)"}
	testcases := []struct {
		name    string
		before  func()
		merger  func() (*AggregatorMerger, error)
		wantRes [][]any
	}{
		{
			name: "按照分组键升序",
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male", 10).AddRow("hangzhou", "female", 20).AddRow("shanghai", "female", 30))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male", 40).AddRow("shanghai", "female", 50).AddRow("hangzhou", "female", 60))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male", 70).AddRow("shanghai", "female", 80))
			},
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(2, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county"), merger.NewColumnInfo(1, "gender")})
			},
			wantRes: [][]any{
				{"hangzhou", "female", int64(80)},
				{"hangzhou", "male", int64(10)},
				{"shanghai", "female", int64(160)},
				{"shanghai", "male", int64(110)},
			},
		},
		{
			name: "按照聚合列降序",
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male", 10).AddRow("hangzhou", "female", 20).AddRow("shanghai", "female", 30))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male", 40).AddRow("shanghai", "female", 50).AddRow("hangzhou", "female", 60))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male", 70).AddRow("shanghai", "female", 80))
			},
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(2, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county"), merger.NewColumnInfo(1, "gender")},
					sortmerger.NewSortColumn("SUM(id)", sortmerger.DESC))
			},
			wantRes: [][]any{
				{"shanghai", "female", int64(160)},
				{"shanghai", "male", int64(110)},
				{"hangzhou", "female", int64(80)},
				{"hangzhou", "male", int64(10)},
			},
		},
		{
			name: "NULL 单独成组",
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(nil, "male", 10).AddRow("hangzhou", "male", 20))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow(nil, "male", 5))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male", nil))
			},
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(2, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			wantRes: [][]any{
				{nil, "male", int64(15)},
				{"hangzhou", "male", int64(20)},
			},
		},
		{
			name: "按照下标分组",
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male", 1))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "female", 2))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male", 3))
			},
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(2, ""))},
					[]merger.ColumnInfo{merger.NewColumnInfo(1, "")})
			},
			wantRes: [][]any{
				{"hangzhou", "female", int64(2)},
				{"hangzhou", "male", int64(4)},
			},
		},
		{
			name: "所有分片都没有数据",
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols))
				ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols))
				ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols))
			},
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(2, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			wantRes: [][]any{},
		},
	}
	for _, tc := range testcases {
		ms.T().Run(tc.name, func(t *testing.T) {
			tc.before()
			m, err := tc.merger()
			require.NoError(t, err)
			rs, err := m.Merge(context.Background(), ms.query(ms.dbs()...))
			require.NoError(t, err)
			assert.Equal(t, tc.wantRes, collect(t, rs))
		})
	}
}

func (ms *MergerSuite) TestDistinctMerger() {
	cols := []string{"county", "gender"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male").AddRow("hangzhou", "male"))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", "male").AddRow("hangzhou", "female"))
	ms.mock03.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", "male"))

	m, err := NewDistinctMerger(sortmerger.NewSortColumn("county", sortmerger.DESC))
	require.NoError(ms.T(), err)
	rs, err := m.Merge(context.Background(), ms.query(ms.dbs()...))
	require.NoError(ms.T(), err)
	assert.Equal(ms.T(), [][]any{
		{"shanghai", "male"},
		{"hangzhou", "female"},
		{"hangzhou", "male"},
	}, collect(ms.T(), rs))
}

func (ms *MergerSuite) TestAggregatorMerger_Merge() {
	cols := []string{"county", "SUM(id)"}
	testcases := []struct {
		name    string
		merger  func() (*AggregatorMerger, error)
		ctx     func() (context.Context, context.CancelFunc)
		before  func()
		wantErr error
	}{
		{
			name: "分组列不存在",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "city")})
			},
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
			},
			wantErr: errs.ErrUnresolvableGroupColumn,
		},
		{
			name: "排序列不存在",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")},
					sortmerger.NewSortColumn("age", sortmerger.ASC))
			},
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
			},
			wantErr: errs.ErrUnresolvableOrderColumn,
		},
		{
			name: "聚合列不存在",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(age)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
			},
			wantErr: errs.ErrShardShapeMismatch,
		},
		{
			name: "分组键类型不一致",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1).AddRow(12, 2))
			},
			wantErr: errs.ErrShardShapeMismatch,
		},
		{
			name: "分片读取出错",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1).AddRow("shanghai", 2).RowError(1, nextMockErr))
			},
			wantErr: nextMockErr,
		},
		{
			name: "超时",
			merger: func() (*AggregatorMerger, error) {
				return NewAggregatorMerger(
					[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
					[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
			},
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithTimeout(context.Background(), 0)
				return ctx, cancel
			},
			before: func() {
				ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
			},
			wantErr: context.DeadlineExceeded,
		},
	}
	for _, tc := range testcases {
		ms.T().Run(tc.name, func(t *testing.T) {
			tc.before()
			m, err := tc.merger()
			require.NoError(t, err)
			ctx, cancel := tc.ctx()
			defer cancel()
			_, err = m.Merge(ctx, ms.query(ms.mockDB01))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func (ms *MergerSuite) TestAggregatorMerger_Close() {
	cols := []string{"county", "SUM(id)"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("shanghai", 2))
	m, err := NewAggregatorMerger(
		[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
		[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
	require.NoError(ms.T(), err)
	rs, err := m.Merge(context.Background(), ms.query(ms.mockDB01, ms.mockDB02))
	require.NoError(ms.T(), err)
	require.True(ms.T(), rs.Next())
	require.NoError(ms.T(), rs.Close())
	assert.False(ms.T(), rs.Next())
	var county string
	var sum int64
	assert.ErrorIs(ms.T(), rs.Scan(&county, &sum), errs.ErrMergerRowsClosed)
	_, err = rs.Value(0)
	assert.ErrorIs(ms.T(), err, errs.ErrMergerRowsClosed)
}

func (ms *MergerSuite) TestAggregatorRows_Value() {
	cols := []string{"county", "SUM(id)"}
	ms.mock01.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 1))
	ms.mock02.ExpectQuery("SELECT *").WillReturnRows(sqlmock.NewRows(cols).AddRow("hangzhou", 2))
	m, err := NewAggregatorMerger(
		[]aggregator.Aggregator{aggregator.NewSum(merger.NewColumnInfo(1, "SUM(id)"))},
		[]merger.ColumnInfo{merger.NewColumnInfo(0, "county")})
	require.NoError(ms.T(), err)
	rs, err := m.Merge(context.Background(), ms.query(ms.mockDB01, ms.mockDB02))
	require.NoError(ms.T(), err)

	_, err = rs.Value(0)
	assert.ErrorIs(ms.T(), err, errs.ErrMergerScanNotNext)
	require.True(ms.T(), rs.Next())
	val, err := rs.Value(1)
	require.NoError(ms.T(), err)
	assert.Equal(ms.T(), int64(3), val)
	_, err = rs.Value(2)
	assert.ErrorIs(ms.T(), err, errs.ErrColumnOutOfRange)
	assert.False(ms.T(), rs.Next())
}

func TestNewAggregatorMerger(t *testing.T) {
	_, err := NewAggregatorMerger(nil, nil)
	assert.ErrorIs(t, err, errs.ErrEmptyGroupColumns)
	_, err = NewAggregatorMerger(nil, []merger.ColumnInfo{merger.NewColumnInfo(0, "id")},
		sortmerger.NewSortColumn("id", sortmerger.ASC), sortmerger.NewSortColumn("id", sortmerger.DESC))
	assert.Equal(t, errs.NewRepeatSortColumn("id"), err)
	_, err = NewDistinctMerger(sortmerger.NewSortColumn("id", sortmerger.ASC), sortmerger.NewSortColumn("id", sortmerger.DESC))
	assert.Equal(t, errs.NewRepeatSortColumn("id"), err)
}
