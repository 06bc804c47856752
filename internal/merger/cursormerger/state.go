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

package cursormerger

import (
	"strconv"

	"github.com/ecodeclub/shardmerge/internal/merger"
)

// Status 游标的状态
type Status uint8

const (
	// StatusOpen 可以继续 FETCH
	StatusOpen Status = iota
	// StatusAllDirectionLatched 已经执行过 FETCH ALL 或者 FETCH BACKWARD ALL，
	// 之后的 FETCH 都返回空结果，并且不会再查询分片
	StatusAllDirectionLatched
	// StatusClosed 游标已经关闭
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusAllDirectionLatched:
		return "ALL_DIRECTION_LATCHED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// State 游标的状态，归属于某一个会话。
// 记录了每个分片已经返回给客户端的行数。
// 同一个会话同一时刻只会执行一条语句，所以这里不需要加锁
type State struct {
	name   string
	status Status
	// delivered 分片标识 => 已经返回的行数
	delivered map[string]int64
	// pastEnd 游标已经越过了最后一行
	pastEnd bool
	// active 上一次 FETCH 返回的结果集
	active merger.Rows
	// columns 最近一次 FETCH 的列，锁定之后的空结果沿用
	columns []string
}

func NewState(name string) *State {
	return &State{
		name:      name,
		status:    StatusOpen,
		delivered: make(map[string]int64, 8),
	}
}

func (s *State) Name() string {
	return s.name
}

func (s *State) Status() Status {
	return s.status
}

// Latched 后续的 FETCH 是否直接返回空结果
func (s *State) Latched() bool {
	return s.status == StatusAllDirectionLatched
}

// Columns 最近一次 FETCH 的结果集的列，还没有 FETCH 过的时候返回 nil
func (s *State) Columns() []string {
	return s.columns
}

// Delivered 分片已经返回的行数
func (s *State) Delivered(shard string) int64 {
	return s.delivered[shard]
}

// Position 游标当前所在的行，从 1 开始，0 表示在第一行之前
func (s *State) Position() int64 {
	var pos int64
	for _, cnt := range s.delivered {
		pos += cnt
	}
	return pos
}

// Close 关闭上一次 FETCH 返回的结果集并且清空状态，可以重复调用
func (s *State) Close() error {
	s.status = StatusClosed
	s.delivered = nil
	s.pastEnd = false
	return s.release()
}

func (s *State) release() error {
	if s.active == nil {
		return nil
	}
	err := s.active.Close()
	s.active = nil
	return err
}

// shardKeys 分片标识。同一个分片出现多次的时候，按照出现的次序区分
func shardKeys(results []merger.Result) []string {
	seen := make(map[string]int, len(results))
	keys := make([]string, 0, len(results))
	for _, res := range results {
		ordinal := seen[res.Shard]
		seen[res.Shard] = ordinal + 1
		keys = append(keys, res.Shard+"#"+strconv.Itoa(ordinal))
	}
	return keys
}
