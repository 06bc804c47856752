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
	"context"
	"sync"
	"sync/atomic"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/cursormerger"
	"github.com/ecodeclub/shardmerge/internal/merger/decorator"
	"github.com/ecodeclub/shardmerge/internal/rows"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var sessionID atomic.Int64

// Session 对应一个客户端连接，持有这个连接上声明的所有游标。
// 不同会话中的同名游标互不影响
type Session struct {
	engine  *Engine
	id      int64
	logger  *zap.Logger
	mu      sync.Mutex
	cursors map[string]*cursormerger.State
	closed  bool
}

func (e *Engine) NewSession() *Session {
	id := sessionID.Add(1)
	return &Session{
		engine:  e,
		id:      id,
		logger:  e.logger.With(zap.Int64("session", id)),
		cursors: make(map[string]*cursormerger.State, 4),
	}
}

func (s *Session) ID() int64 {
	return s.id
}

// Declare 声明游标，同名的游标必须先关闭
func (s *Session) Declare(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.ErrSessionClosed
	}
	if _, ok := s.cursors[name]; ok {
		return errs.NewCursorExistsError(name)
	}
	s.cursors[name] = cursormerger.NewState(name)
	s.logger.Debug("声明游标", zap.String("cursor", name))
	return nil
}

// CloseCursor 关闭游标上一次 FETCH 的结果集并且丢弃游标的状态
func (s *Session) CloseCursor(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.ErrSessionClosed
	}
	state, ok := s.cursors[name]
	if !ok {
		return errs.NewUnknownCursorError(name)
	}
	delete(s.cursors, name)
	s.logger.Debug("关闭游标", zap.String("cursor", name))
	return state.Close()
}

func (s *Session) cursor(name string) (*cursormerger.State, error) {
	if s.closed {
		return nil, errs.ErrSessionClosed
	}
	state, ok := s.cursors[name]
	if !ok {
		return nil, errs.NewUnknownCursorError(name)
	}
	return state, nil
}

// Query 在分片上执行查询并且合并结果。
// 游标已经执行过 FETCH ALL 的时候直接返回空结果，不会再查询分片
func (s *Session) Query(ctx context.Context, stmt *Statement, queries []Query) (Rows, error) {
	if stmt.Cursor == nil {
		return s.engine.Query(ctx, stmt, queries)
	}
	s.mu.Lock()
	state, err := s.cursor(stmt.Cursor.Name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if state.Latched() {
		s.logger.Debug("游标已经锁定", zap.String("cursor", state.Name()))
		return rows.NewDataRows(nil, state.Columns(), nil), nil
	}
	results, err := s.engine.execute(ctx, TypeFetch, stmt, queries)
	if err != nil {
		return nil, err
	}
	return s.Merge(ctx, stmt, results)
}

// Merge 合并分片结果集，游标语句会更新游标的状态
func (s *Session) Merge(ctx context.Context, stmt *Statement, results []Result) (Rows, error) {
	if stmt.Cursor == nil {
		return s.engine.Merge(ctx, stmt, results)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.cursor(stmt.Cursor.Name)
	if err != nil {
		closeResults(results)
		return nil, err
	}
	m, err := cursormerger.NewMerger(state, stmt.Cursor.Fetch, s.engine.sortColumns(stmt.OrderBy)...)
	if err != nil {
		closeResults(results)
		return nil, err
	}
	s.logger.Debug("合并分片结果集",
		zap.String("strategy", StrategyCursor),
		zap.String("cursor", state.Name()),
		zap.Int("shards", len(results)),
		zap.Stringer("stmt", stmt))
	var rs merger.Rows
	rs, err = m.MergeResults(ctx, results)
	if err != nil {
		return nil, err
	}
	for _, rule := range s.engine.rules {
		rs = decorator.NewRows(rs, decorator.Origins(stmt.Origins), rule)
	}
	return rs, nil
}

func closeResults(results []Result) {
	list := make([]rows.Rows, 0, len(results))
	for _, r := range results {
		list = append(list, r.Rows)
	}
	_ = merger.CloseAll(list)
}

// Close 关闭会话上所有的游标
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for name, state := range s.cursors {
		err = multierr.Append(err, state.Close())
		delete(s.cursors, name)
	}
	s.logger.Debug("关闭会话")
	return err
}
