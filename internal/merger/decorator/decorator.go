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

package decorator

import (
	"context"
	"unicode/utf8"

	"github.com/ecodeclub/shardmerge/internal/errs"
	"github.com/ecodeclub/shardmerge/internal/merger"
	"github.com/ecodeclub/shardmerge/internal/merger/utils"
	"github.com/ecodeclub/shardmerge/internal/rows"
)

// ColumnOrigin 列在改写之前对应的逻辑表和列
type ColumnOrigin struct {
	Table  string
	Column string
}

// OriginResolver 根据列的下标找到列原本的表和列，由路由提供
type OriginResolver func(index int) (ColumnOrigin, bool)

// Transform 对列的值进行转换，例如脱敏或者解密。
// 传入的值不会是 NULL，并且已经被规整过，例如 []byte 会变成 string
type Transform func(val any) (any, error)

// RuleResolver 根据表和列找到转换规则，由脱敏或者加密模块提供
type RuleResolver func(table, column string) (Transform, bool)

// Origins 按照下标指定每一列的来源，Table 为空表示没有来源
func Origins(origins []ColumnOrigin) OriginResolver {
	return func(index int) (ColumnOrigin, bool) {
		if index < 0 || index >= len(origins) || origins[index].Table == "" {
			return ColumnOrigin{}, false
		}
		return origins[index], true
	}
}

// Rules 使用固定的规则
func Rules(rules map[ColumnOrigin]Transform) RuleResolver {
	return func(table, column string) (Transform, bool) {
		t, ok := rules[ColumnOrigin{Table: table, Column: column}]
		return t, ok
	}
}

// Mask 保留前 prefix 个字符和后 suffix 个字符，其余的替换成 mask
func Mask(prefix, suffix int, mask rune) Transform {
	return func(val any) (any, error) {
		str, ok := val.(string)
		if !ok {
			return val, nil
		}
		n := utf8.RuneCountInString(str)
		if prefix+suffix >= n {
			return str, nil
		}
		res := make([]rune, 0, n)
		for i, r := range []rune(str) {
			if i < prefix || i >= n-suffix {
				res = append(res, r)
				continue
			}
			res = append(res, mask)
		}
		return string(res), nil
	}
}

// Merger 给合并的结果加上装饰器。多个装饰器通过嵌套组合，
// 内层的装饰器先执行，例如先解密再脱敏
type Merger struct {
	merger  merger.Merger
	origins OriginResolver
	rules   RuleResolver
}

func NewMerger(m merger.Merger, origins OriginResolver, rules RuleResolver) *Merger {
	return &Merger{
		merger:  m,
		origins: origins,
		rules:   rules,
	}
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (merger.Rows, error) {
	rs, err := m.merger.Merge(ctx, results)
	if err != nil {
		return nil, err
	}
	return NewRows(rs, m.origins, m.rules), nil
}

// Rows 只拦截 Value 和 Scan，其余方法直接转发
type Rows struct {
	merger.Rows
	origins OriginResolver
	rules   RuleResolver
}

func NewRows(rs merger.Rows, origins OriginResolver, rules RuleResolver) *Rows {
	return &Rows{
		Rows:    rs,
		origins: origins,
		rules:   rules,
	}
}

func (r *Rows) Value(index int) (any, error) {
	val, err := r.Rows.Value(index)
	if err != nil {
		return nil, err
	}
	return r.transform(index, val)
}

func (r *Rows) transform(index int, val any) (any, error) {
	if r.origins == nil || r.rules == nil {
		return val, nil
	}
	origin, ok := r.origins(index)
	if !ok {
		return val, nil
	}
	t, ok := r.rules(origin.Table, origin.Column)
	if !ok {
		return val, nil
	}
	normalized, err := utils.Normalize(val)
	if err != nil {
		return nil, err
	}
	// NULL 不做转换
	if normalized == nil {
		return val, nil
	}
	return t(normalized)
}

func (r *Rows) Scan(dest ...any) error {
	columns, err := r.Rows.Columns()
	if err != nil {
		return err
	}
	if len(dest) > len(columns) {
		return errs.NewErrScanWrongDestinationArguments(len(columns), len(dest))
	}
	for i := range dest {
		val, err := r.Value(i)
		if err != nil {
			return err
		}
		if err = rows.ConvertAssign(dest[i], val); err != nil {
			return err
		}
	}
	return nil
}
