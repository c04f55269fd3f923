// 包 points：事件点来源（远端订阅源、GeoIP、数据库）与文本坐标的数值化
// 背景：核心管线只消费内存中已解码的点集合；各来源负责取数与字段校验，
// 把“可能是文本”的坐标转成有限浮点后才交给解析器。
package points

import (
	"context"
	"strconv"
	"time"

	"region-api/internal/geostore"
	"region-api/internal/resolve"
)

// RawEvent：一条点事件的原始记录
// 约束：坐标保留上游文本形态，数值化集中在 CoercePoint；ID 用于去重与持久化
type RawEvent struct {
	ID     string    `json:"id"`
	Lat    string    `json:"latitude"`
	Lon    string    `json:"longitude"`
	At     time.Time `json:"occurred_at"`
	Source string    `json:"source,omitempty"`
}

// Source：事件来源统一接口
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawEvent, error)
}

// CoercePoint：文本坐标到有限浮点
// 背景：上游字段常以字符串到达；缺失、不可解析、非有限都归入 InvalidPointError，
// 由调用方按批策略决定跳过或中止。
func CoercePoint(latText, lonText string) (geostore.Point, error) {
	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return geostore.Point{}, &resolve.InvalidPointError{Reason: "latitude " + strconv.Quote(latText) + " not numeric"}
	}
	lon, err := strconv.ParseFloat(lonText, 64)
	if err != nil {
		return geostore.Point{}, &resolve.InvalidPointError{Reason: "longitude " + strconv.Quote(lonText) + " not numeric"}
	}
	p := geostore.Point{Lat: lat, Lon: lon}
	if err := resolve.Valid(p); err != nil {
		return geostore.Point{}, err
	}
	return p, nil
}

// CoerceBatch：批量数值化
// 返回有效点与无效计数；abort 为真时遇首个无效即返回错误
func CoerceBatch(evs []RawEvent, abort bool) ([]geostore.Point, int, error) {
	pts := make([]geostore.Point, 0, len(evs))
	invalid := 0
	for _, ev := range evs {
		p, err := CoercePoint(ev.Lat, ev.Lon)
		if err != nil {
			if abort {
				return nil, 0, err
			}
			invalid++
			continue
		}
		pts = append(pts, p)
	}
	return pts, invalid, nil
}
