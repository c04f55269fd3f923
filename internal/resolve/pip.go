// 文档注释：点入多边形判定（Even-Odd）
// 背景：对包围盒初筛后的候选执行精确命中判定；支持洞与多面结构。
// 约束：射线算法在边界临界值附近受数值误差影响，分母加极小量保持稳定；
// 落在共享边界上的点归属取决于浮点结果，跨区域的确定性由解析器的规范顺序扫描保证。
package resolve

import "region-api/internal/geostore"

// pointInPoly：外环命中且不在任何洞内视为命中
func pointInPoly(pt geostore.Point, poly geostore.Polygon) bool {
	if len(poly.Rings) == 0 {
		return false
	}
	if !pointInRing(pt, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if pointInRing(pt, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// pointInRing：射线法判定点是否在环内
func pointInRing(pt geostore.Point, ring []geostore.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x := pt.Lon
	y := pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi := ring[i].Lon
		yi := ring[i].Lat
		xj := ring[j].Lon
		yj := ring[j].Lat
		intersect := ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// inBBox：快速包围盒过滤
func inBBox(pt geostore.Point, b [4]float64) bool {
	return pt.Lon >= b[0] && pt.Lon <= b[2] && pt.Lat >= b[1] && pt.Lat <= b[3]
}
