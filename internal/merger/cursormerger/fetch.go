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

	"github.com/ecodeclub/shardmerge/internal/errs"
)

// Direction FETCH 的方向
type Direction uint8

const (
	// DirectionNext FETCH NEXT，等价于 FETCH FORWARD 1
	DirectionNext Direction = iota + 1
	// DirectionForward FETCH FORWARD n 或者 FETCH n
	DirectionForward
	// DirectionAll FETCH ALL 或者 FETCH FORWARD ALL
	DirectionAll
	// DirectionPrior FETCH PRIOR，等价于 FETCH BACKWARD 1
	DirectionPrior
	// DirectionBackward FETCH BACKWARD n
	DirectionBackward
	// DirectionBackwardAll FETCH BACKWARD ALL
	DirectionBackwardAll
)

func (d Direction) String() string {
	switch d {
	case DirectionNext:
		return "NEXT"
	case DirectionForward:
		return "FORWARD"
	case DirectionAll:
		return "ALL"
	case DirectionPrior:
		return "PRIOR"
	case DirectionBackward:
		return "BACKWARD"
	case DirectionBackwardAll:
		return "BACKWARD ALL"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(d)) + ")"
	}
}

// Fetch 一次 FETCH 请求
type Fetch struct {
	Direction Direction
	// Count 只在 DirectionForward 和 DirectionBackward 下有意义
	Count int64
}

func FetchNext() Fetch {
	return Fetch{Direction: DirectionNext, Count: 1}
}

func FetchForward(n int64) Fetch {
	return Fetch{Direction: DirectionForward, Count: n}
}

func FetchAll() Fetch {
	return Fetch{Direction: DirectionAll}
}

func FetchPrior() Fetch {
	return Fetch{Direction: DirectionPrior, Count: 1}
}

func FetchBackward(n int64) Fetch {
	return Fetch{Direction: DirectionBackward, Count: n}
}

func FetchBackwardAll() Fetch {
	return Fetch{Direction: DirectionBackwardAll}
}

// Validate 检查方向和行数
func (f Fetch) Validate() error {
	switch f.Direction {
	case DirectionNext, DirectionPrior, DirectionAll, DirectionBackwardAll:
		return nil
	case DirectionForward, DirectionBackward:
		if f.Count < 0 {
			return errs.NewUnsupportedFetch(f)
		}
		return nil
	default:
		return errs.NewUnsupportedFetch(f.Direction)
	}
}

// Forward 是否向前读取
func (f Fetch) Forward() bool {
	return f.Direction == DirectionNext || f.Direction == DirectionForward || f.Direction == DirectionAll
}

// All 是否读取所有剩余的行，执行之后游标会被锁定
func (f Fetch) All() bool {
	return f.Direction == DirectionAll || f.Direction == DirectionBackwardAll
}

// Limit 本次最多返回的行数，-1 表示不限制
func (f Fetch) Limit() int64 {
	switch f.Direction {
	case DirectionNext, DirectionPrior:
		return 1
	case DirectionAll, DirectionBackwardAll:
		return -1
	default:
		return f.Count
	}
}

func (f Fetch) String() string {
	switch f.Direction {
	case DirectionForward, DirectionBackward:
		return f.Direction.String() + " " + strconv.FormatInt(f.Count, 10)
	default:
		return f.Direction.String()
	}
}
