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

package sortmerger

import (
	"container/heap"

	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// Node 某个分片的候选行
type Node struct {
	// Index 分片注册的顺序
	Index      int
	SortValues []any
	Row        []any
}

// Heap 按照排序列组织候选行，排序列都相同的时候按照分片注册顺序排序
type Heap struct {
	nodes       []*Node
	sortColumns SortColumns
	// err 比较过程中遇到的第一个错误，heap.Interface 没办法返回错误
	err error
}

func NewHeap(sortColumns SortColumns, capacity int) *Heap {
	return &Heap{
		nodes:       make([]*Node, 0, capacity),
		sortColumns: sortColumns,
	}
}

func (h *Heap) Len() int {
	return len(h.nodes)
}

func (h *Heap) Less(i, j int) bool {
	ni, nj := h.nodes[i], h.nodes[j]
	for k := 0; k < h.sortColumns.Len(); k++ {
		col := h.sortColumns.Get(k)
		res, err := utils.Compare(ni.SortValues[k], nj.SortValues[k], col.order, col.nulls)
		if err != nil {
			if h.err == nil {
				h.err = err
			}
			return false
		}
		if res != 0 {
			return res < 0
		}
	}
	return ni.Index < nj.Index
}

func (h *Heap) Swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
}

func (h *Heap) Push(x any) {
	h.nodes = append(h.nodes, x.(*Node))
}

func (h *Heap) Pop() any {
	v := h.nodes[len(h.nodes)-1]
	h.nodes[len(h.nodes)-1] = nil
	h.nodes = h.nodes[:len(h.nodes)-1]
	return v
}

func (h *Heap) Err() error {
	return h.err
}

// Queue 多路归并使用的优先队列，每个还有数据的分片在队列里面最多只有一行
type Queue struct {
	rowsList []rows.Rows
	columns  int
	// sortIndexes 排序列在分片行中的下标
	sortIndexes []int
	hp          *Heap
}

// NewQueue 在分片的列里面找到排序列，找不到的时候返回 errs.ErrUnresolvableOrderColumn
func NewQueue(rowsList []rows.Rows, sortColumns SortColumns, columns []string) (*Queue, error) {
	indexes, err := sortColumns.Resolve(columns)
	if err != nil {
		return nil, err
	}
	return &Queue{
		rowsList:    rowsList,
		columns:     len(columns),
		sortIndexes: indexes,
		hp:          NewHeap(sortColumns, len(rowsList)),
	}, nil
}

// Init 每个分片读取一行放进队列
func (q *Queue) Init() error {
	for i := 0; i < len(q.rowsList); i++ {
		if err := q.advance(i); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) Len() int {
	return q.hp.Len()
}

// Pop 弹出最小的候选行，并且从同一个分片读取下一行放进队列。
// 队列为空的时候返回 nil
func (q *Queue) Pop() (*Node, error) {
	if q.hp.Len() == 0 {
		return nil, nil
	}
	n := heap.Pop(q.hp).(*Node)
	if err := q.hp.Err(); err != nil {
		return nil, err
	}
	if err := q.advance(n.Index); err != nil {
		return nil, err
	}
	return n, nil
}

func (q *Queue) advance(index int) error {
	row := q.rowsList[index]
	if !row.Next() {
		return row.Err()
	}
	data, err := utils.ScanRow(row, q.columns)
	if err != nil {
		return err
	}
	sortValues := make([]any, 0, len(q.sortIndexes))
	for _, idx := range q.sortIndexes {
		sortValues = append(sortValues, data[idx])
	}
	heap.Push(q.hp, &Node{
		Index:      index,
		SortValues: sortValues,
		Row:        data,
	})
	return q.hp.Err()
}
