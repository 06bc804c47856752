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
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ecodeclub/shardmerge/internal/datasource"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SingleSuite struct {
	suite.Suite
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
}

func (s *SingleSuite) SetupTest() {
	var err error
	s.mockDB, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)
}

func (s *SingleSuite) TearDownTest() {
	_ = s.mockDB.Close()
}

func (s *SingleSuite) TestQuery() {
	testCases := []struct {
		name     string
		query    datasource.Query
		mock     func(mock sqlmock.Sqlmock)
		wantData [][]any
		wantErr  error
	}{
		{
			name: "shard rows",
			query: datasource.Query{
				SQL:        "SELECT `id`, `amount` FROM `order_tab_0` WHERE `user_id` = ?",
				Args:       []any{123},
				Datasource: "ds0",
				DB:         "order_db_0",
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT `id`, `amount` FROM `order_tab_0` WHERE `user_id` = ?").
					WithArgs(123).
					WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).
						AddRow(int64(1), int64(100)).
						AddRow(int64(2), nil))
			},
			wantData: [][]any{{int64(1), int64(100)}, {int64(2), nil}},
		},
		{
			name: "empty shard",
			query: datasource.Query{
				SQL: "SELECT `id`, `amount` FROM `order_tab_1`",
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT `id`, `amount` FROM `order_tab_1`").
					WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}))
			},
		},
		{
			name: "query err",
			query: datasource.Query{
				SQL: "SELECT `id` FROM `order_tab_2`",
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT `id` FROM `order_tab_2`").
					WillReturnError(errors.New("shard is down"))
			},
			wantErr: errors.New("shard is down"),
		},
	}
	for _, tc := range testCases {
		s.T().Run(tc.name, func(t *testing.T) {
			tc.mock(s.mock)
			db := NewDB(s.mockDB)
			rows, err := db.Query(context.Background(), tc.query)
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			var data [][]any
			for rows.Next() {
				var id, amount any
				require.NoError(t, rows.Scan(&id, &amount))
				data = append(data, []any{id, amount})
			}
			require.NoError(t, rows.Close())
			assert.Equal(t, tc.wantData, data)
		})
	}
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *SingleSuite) TestExec() {
	s.mock.ExpectExec("^CREATE TABLE (.+)").WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec("^INSERT INTO (.+)").WillReturnResult(sqlmock.NewResult(4, 2))
	db := NewDB(s.mockDB)
	_, err := db.Exec(context.Background(), datasource.Query{
		SQL: "CREATE TABLE `order_tab_0` (`id` BIGINT)",
	})
	require.NoError(s.T(), err)
	res, err := db.Exec(context.Background(), datasource.Query{
		SQL:  "INSERT INTO `order_tab_0`(`id`) VALUES (?),(?)",
		Args: []any{3, 4},
	})
	require.NoError(s.T(), err)
	affected, err := res.RowsAffected()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), affected)
}

func TestSingleSuite(t *testing.T) {
	suite.Run(t, &SingleSuite{})
}

func TestOpenDB(t *testing.T) {
	db, err := OpenDB("sqlite3", "file:single_open?mode=memory&cache=shared",
		MaxOpenConns(4), MaxIdleConns(2), ConnMaxLifetime(0))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)

	ctx := context.Background()
	_, err = db.Exec(ctx, datasource.Query{SQL: "CREATE TABLE `user_tab` (`id` INTEGER PRIMARY KEY, `name` TEXT)"})
	require.NoError(t, err)
	_, err = db.Exec(ctx, datasource.Query{
		SQL:  "INSERT INTO `user_tab` (`id`, `name`) VALUES (?, ?)",
		Args: []any{1, "tom"},
	})
	require.NoError(t, err)
	rows, err := db.Query(ctx, datasource.Query{SQL: "SELECT `name` FROM `user_tab` WHERE `id` = ?", Args: []any{1}})
	require.NoError(t, err)
	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "tom", name)
	require.NoError(t, rows.Close())

	_, err = OpenDB("unknown", "")
	assert.Error(t, err)
}

func ExampleDB_Close() {
	db, _ := OpenDB("sqlite3", "file:test.db?cache=shared&mode=memory")
	err := db.Close()
	if err == nil {
		fmt.Println("close")
	}

	// Output:
	// close
}
