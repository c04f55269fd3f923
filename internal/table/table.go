// 包 table：属性表与键连接（合并引擎）
// 背景：区域几何的属性行与外部数据集都以行表表示；合并只按声明的键进行，
// 行序在合并后不作任何承诺，必须经位置绑定后才能与几何对位使用。
// 约束：键在两侧都必须逐行唯一，否则拒绝合并；不做类型转换，键值按字符串规范化比较。
package table

import (
	"fmt"
	"sort"
)

// Row：单行属性，字段名到值的映射
type Row map[string]any

// Table：带声明键列的行表
// 约束：Rows 的顺序仅在位置绑定之后才有意义，合并/聚合产物视为无序
type Table struct {
	Key  string
	Rows []Row
}

// NonUniqueJoinKeyError：声明键在某一侧存在重复值
// 背景：人类可读键（如简称）未必与区域身份一一对应，重复键会导致行扩增或属性串染，
// 必须在合并前失败而不是在渲染时出错
type NonUniqueJoinKeyError struct {
	Key   string
	Value string
	Side  string // "base" 或 "external"
}

func (e *NonUniqueJoinKeyError) Error() string {
	return fmt.Sprintf("join key %q not unique on %s side: duplicate value %q", e.Key, e.Side, e.Value)
}

// KeyString：键值规范化为字符串
// 约束：nil 视为缺失；数值不参与格式化推断，调用方应保证键列为文本
func KeyString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// indexUnique：按键建索引并校验唯一性
func indexUnique(rows []Row, key, side string) (map[string]int, error) {
	idx := make(map[string]int, len(rows))
	for i, r := range rows {
		k, _ := KeyString(r[key])
		if _, dup := idx[k]; dup {
			return nil, &NonUniqueJoinKeyError{Key: key, Value: k, Side: side}
		}
		idx[k] = i
	}
	return idx, nil
}

// Columns：出现过的字段名集合（字典序）
func (t Table) Columns() []string {
	seen := map[string]bool{}
	for _, r := range t.Rows {
		for c := range r {
			seen[c] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Merge：左连接合并
// 背景：基表的每一行保留；外部表按键匹配，未命中的外部字段以 nil 填充。
// 约束：键必须在两侧逐行唯一（NonUniqueJoinKeyError），输出行数恒等于基表行数；
// 输出行序无任何承诺，调用方不得假设其等于任何规范顺序。
func Merge(base, external Table, key string) (Table, error) {
	if _, err := indexUnique(base.Rows, key, "base"); err != nil {
		return Table{}, err
	}
	extIdx, err := indexUnique(external.Rows, key, "external")
	if err != nil {
		return Table{}, err
	}

	// 外部字段全集：未命中行也要带齐列，下游按列取值不应因行而异
	extCols := []string{}
	for _, c := range external.Columns() {
		if c != key {
			extCols = append(extCols, c)
		}
	}

	out := make([]Row, 0, len(base.Rows))
	for _, br := range base.Rows {
		merged := make(Row, len(br)+len(extCols))
		for c, v := range br {
			merged[c] = v
		}
		k, _ := KeyString(br[key])
		if j, ok := extIdx[k]; ok {
			er := external.Rows[j]
			for _, c := range extCols {
				if v, present := er[c]; present {
					merged[c] = v
				} else {
					merged[c] = nil
				}
			}
		} else {
			for _, c := range extCols {
				merged[c] = nil
			}
		}
		out = append(out, merged)
	}
	return Table{Key: base.Key, Rows: out}, nil
}
