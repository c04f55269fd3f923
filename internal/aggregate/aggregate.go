// 包 aggregate：按区域的全域计数聚合
// 背景：朴素的 group-and-count 只覆盖观测到的键，零事件区域会被无声丢掉，
// 下游着色随之缺行。聚合域必须是几何仓库的完整标识集合，而不是数据中出现过的子集。
package aggregate

import (
	"region-api/internal/geostore"
	"region-api/internal/resolve"
	"region-api/internal/table"
)

// CountColumn：计数列名
const CountColumn = "count"

// Counts：把解析结果归并为每区域计数表
// 约束：输出恰好覆盖仓库的每个区域标识，未命中的区域计数为 0；
// 未匹配点不进入任何行，由 Outcome.Unmatched 单独承载。
// 输出行序无承诺，使用前必须经位置绑定。
func Counts(out *resolve.Outcome, s *geostore.Store) table.Table {
	byRegion := make(map[string]int, s.Len())
	for _, m := range out.Matches {
		byRegion[m.RegionID]++
	}
	rows := make([]table.Row, 0, s.Len())
	for _, id := range s.RegionIDs() {
		rows = append(rows, table.Row{
			geostore.KeyColumn: id,
			CountColumn:        byRegion[id],
		})
	}
	return table.Table{Key: geostore.KeyColumn, Rows: rows}
}
