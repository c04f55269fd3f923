package geostore

import (
	"fmt"

	"region-api/internal/table"
)

// KeyColumn：所有属性表中承载区域稳定标识的列名
// 背景：聚合表与几何属性表共用同一键名，合并时两侧无需改名
const KeyColumn = "region_id"

// NameColumn：人类可读简称列，外部数据集可声明其为连接键（唯一性由合并引擎校验）
const NameColumn = "name"

// DuplicateIDError：加载时两个区域共用同一稳定标识
// 约束：规范位置与连接正确性都依赖标识唯一，此错误致命，不产生部分仓库
type DuplicateIDError struct {
	ID     string
	First  int
	Second int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate region id %q at positions %d and %d", e.ID, e.First, e.Second)
}

// CardinalityError：待绑定的表不是每区域恰好一行
// 约束：致命，拒绝绑定以避免产生错位但看似合理的属性表
type CardinalityError struct {
	Want   int
	Got    int
	Detail string
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("attribute table cardinality mismatch: want %d rows, got %d (%s)", e.Want, e.Got, e.Detail)
}

// Store：不可变几何仓库
// 背景：几何与位置在加载后只读；属性表的替换通过 BindAttributes 返回新仓库完成，
// 不存在任何绕过位置重排的就地写入路径。
type Store struct {
	regions []Region
	pos     map[string]int
	attrs   table.Table
}

// Load：从区域集合构建仓库
// 约束：Position 按输入顺序 0 起始赋值；标识重复返回 DuplicateIDError；
// 初始属性表由区域自带字段构成，行序即规范位置序
func Load(regions []Region) (*Store, error) {
	pos := make(map[string]int, len(regions))
	owned := make([]Region, len(regions))
	rows := make([]table.Row, len(regions))
	for i, r := range regions {
		if first, dup := pos[r.ID]; dup {
			return nil, &DuplicateIDError{ID: r.ID, First: first, Second: i}
		}
		pos[r.ID] = i
		r.Position = i
		owned[i] = r

		row := make(table.Row, len(r.Props)+2)
		for k, v := range r.Props {
			row[k] = v
		}
		row[KeyColumn] = r.ID
		row[NameColumn] = r.Name
		rows[i] = row
	}
	return &Store{
		regions: owned,
		pos:     pos,
		attrs:   table.Table{Key: KeyColumn, Rows: rows},
	}, nil
}

func (s *Store) Len() int { return len(s.regions) }

// RegionIDs：规范位置序的标识列表，作为全域聚合的完备域
func (s *Store) RegionIDs() []string {
	ids := make([]string, len(s.regions))
	for i := range s.regions {
		ids[i] = s.regions[i].ID
	}
	return ids
}

// PositionOf：标识到规范位置
func (s *Store) PositionOf(id string) (int, bool) {
	p, ok := s.pos[id]
	return p, ok
}

// Region：按规范位置取区域；调用方不得修改返回值指向的数据
func (s *Store) Region(i int) *Region { return &s.regions[i] }

// Attributes：当前绑定的属性表，行序即规范位置序
// 约束：返回值只读共享；修改需走 BindAttributes
func (s *Store) Attributes() table.Table { return s.attrs }

// BindAttributes：把一张属性表按规范位置重排后绑定，返回共享几何的新仓库
// 背景：这是把外部数据挂到几何上的唯一合法入口。合并产物的行序无任何承诺，
// 绕过此处按位置直写属性正是本设计要杜绝的那类错配缺陷。
// 约束：表必须恰好每区域一行（CardinalityError）；原仓库不受影响，
// 绑定是整表替换而非增量修改，读者不会观察到半成品表。
func (s *Store) BindAttributes(t table.Table) (*Store, error) {
	want := len(s.regions)
	if len(t.Rows) != want {
		return nil, &CardinalityError{Want: want, Got: len(t.Rows), Detail: "row count"}
	}
	ordered := make([]table.Row, want)
	for _, r := range t.Rows {
		id, ok := table.KeyString(r[KeyColumn])
		if !ok {
			return nil, &CardinalityError{Want: want, Got: len(t.Rows), Detail: "row without " + KeyColumn}
		}
		p, known := s.pos[id]
		if !known {
			return nil, &CardinalityError{Want: want, Got: len(t.Rows), Detail: "row for unknown region " + id}
		}
		if ordered[p] != nil {
			return nil, &CardinalityError{Want: want, Got: len(t.Rows), Detail: "duplicate row for region " + id}
		}
		row := make(table.Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		ordered[p] = row
	}
	return &Store{
		regions: s.regions,
		pos:     s.pos,
		attrs:   table.Table{Key: KeyColumn, Rows: ordered},
	}, nil
}
