// 包 geostore：GeoJSON 要素集合的解码与导出
// 背景：几何来源是已解码的地理要素集合（行政边界文件）；此处只做结构转换，
// 不做重投影、不做拓扑修复，输入被视为与事件点同一参考系。
package geostore

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadGeoJSON：解码 FeatureCollection 并构建区域集合
// 参数：idProp 为承载稳定标识的属性名；nameProp 为人类可读简称的属性名，可为空。
// 约束：仅接受 Polygon/MultiPolygon 要素；缺失 idProp 时回退到要素自身的 id 字段，
// 仍缺失则报错——没有稳定标识的区域无法参与连接与绑定。
func LoadGeoJSON(data []byte, idProp, nameProp string) ([]Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	regions := make([]Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		var r Region
		if v, ok := f.Properties[idProp]; ok {
			r.ID = fmt.Sprint(v)
		} else if f.ID != nil {
			r.ID = fmt.Sprint(f.ID)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("feature %d: no region id in property %q or feature id", i, idProp)
		}
		if nameProp != "" {
			if v, ok := f.Properties[nameProp]; ok {
				r.Name = fmt.Sprint(v)
			}
		}
		r.Props = map[string]any{}
		for k, v := range f.Properties {
			if k == idProp || k == nameProp {
				continue
			}
			r.Props[k] = v
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			r.Polys = append(r.Polys, fromOrbPolygon(g))
		case orb.MultiPolygon:
			for _, p := range g {
				r.Polys = append(r.Polys, fromOrbPolygon(p))
			}
		default:
			return nil, fmt.Errorf("feature %d (%s): unsupported geometry %q", i, r.ID, f.Geometry.GeoJSONType())
		}
		regions = append(regions, r)
	}
	return regions, nil
}

func fromOrbPolygon(p orb.Polygon) Polygon {
	var poly Polygon
	for _, ring := range p {
		rr := make([]Point, len(ring))
		for i, pt := range ring {
			rr[i] = Point{Lat: pt.Lat(), Lon: pt.Lon()}
		}
		poly.Rings = append(poly.Rings, rr)
	}
	ComputeBBox(&poly)
	return poly
}

func toOrbPolygon(p Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p.Rings))
	for i, ring := range p.Rings {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = orb.Point{pt.Lon, pt.Lat}
		}
		out[i] = r
	}
	return out
}

// FeatureCollection：把仓库导出为渲染就绪的要素集合
// 背景：属性行按规范位置与几何一一对应，此处逐位置配对导出，
// 供下游着色与标注使用；不做任何排序以外的加工。
func (s *Store) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range s.regions {
		r := &s.regions[i]
		var geom orb.Geometry
		if len(r.Polys) == 1 {
			geom = toOrbPolygon(r.Polys[0])
		} else {
			mp := make(orb.MultiPolygon, len(r.Polys))
			for j, p := range r.Polys {
				mp[j] = toOrbPolygon(p)
			}
			geom = mp
		}
		f := geojson.NewFeature(geom)
		f.ID = r.ID
		for k, v := range s.attrs.Rows[i] {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}
