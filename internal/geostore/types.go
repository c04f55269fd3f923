// 包 geostore：几何仓库——不可变的区域多边形集合与位置绑定的属性表
// 背景：下游渲染按“行位置对应几何位置”消费属性，仓库是位置顺序的唯一权威；
// 加载时固定 0 起始的规范位置，之后永不重排。
// 约束：几何仅支持 Polygon/MultiPolygon；环按 GeoJSON 约定，第一环为外环，其余为洞。
package geostore

// Point：经纬度坐标，与仓库几何共用同一参考系
type Point struct {
	Lat float64
	Lon float64
}

// Polygon：环集合，第一环是外环，其后为洞
type Polygon struct {
	Rings [][]Point
	BBox  [4]float64 // minLon, minLat, maxLon, maxLat
}

// Region：带稳定标识与规范位置的区域
// 约束：ID 在仓库内全局唯一；Position 由加载顺序决定且不再变更，
// 是后续把属性行绑回几何的唯一合法依据
type Region struct {
	ID       string
	Name     string
	Position int
	Polys    []Polygon
	Props    map[string]any
}

// ComputeBBox：预计算多边形包围盒，用于解析时的候选快速过滤
func ComputeBBox(p *Polygon) {
	b := [4]float64{180, 90, -180, -90}
	for _, r := range p.Rings {
		for _, pt := range r {
			if pt.Lon < b[0] {
				b[0] = pt.Lon
			}
			if pt.Lat < b[1] {
				b[1] = pt.Lat
			}
			if pt.Lon > b[2] {
				b[2] = pt.Lon
			}
			if pt.Lat > b[3] {
				b[3] = pt.Lat
			}
		}
	}
	p.BBox = b
}
