// 文档注释：GeoIP 事件来源
// 背景：部分事件只携带客户端 IP（访问日志、接口审计），通过 MaxMind City 库
// 映射到经纬度后并入事件点集合；定位精度为城市级，适合区域粒度的聚合。
// 约束：库文件需为 City 类型；无坐标记录的 IP 被跳过并记录日志，不伪造位置。
package points

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"region-api/internal/logger"
)

type GeoIPSource struct {
	reader *geoip2.Reader
	ips    []string
}

// OpenGeoIP：打开并校验 MaxMind 库
// 约束：先经 maxminddb 读元数据确认库类型，再交给 geoip2 做记录解码
func OpenGeoIP(path string, ips []string) (*GeoIPSource, error) {
	meta, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb: %w", err)
	}
	dbType := meta.Metadata.DatabaseType
	_ = meta.Close()
	if !strings.Contains(dbType, "City") {
		return nil, fmt.Errorf("mmdb %q is %q, need a City database", path, dbType)
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIPSource{reader: r, ips: ips}, nil
}

func (g *GeoIPSource) Name() string { return "geoip" }

func (g *GeoIPSource) Close() error { return g.reader.Close() }

// Locate：单 IP 到坐标
func (g *GeoIPSource) Locate(ip string) (lat, lon float64, ok bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, 0, false
	}
	rec, err := g.reader.City(parsed)
	if err != nil {
		return 0, 0, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return 0, 0, false
	}
	return rec.Location.Latitude, rec.Location.Longitude, true
}

// Fetch：把 IP 列表转成事件点
// 背景：坐标格式化为文本以与订阅源事件同构，统一走 CoercePoint 入口
func (g *GeoIPSource) Fetch(ctx context.Context) ([]RawEvent, error) {
	now := time.Now()
	out := make([]RawEvent, 0, len(g.ips))
	skipped := 0
	for _, ip := range g.ips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lat, lon, ok := g.Locate(ip)
		if !ok {
			skipped++
			continue
		}
		out = append(out, RawEvent{
			ID:     "ip:" + ip,
			Lat:    strconv.FormatFloat(lat, 'f', 6, 64),
			Lon:    strconv.FormatFloat(lon, 'f', 6, 64),
			At:     now,
			Source: g.Name(),
		})
	}
	if skipped > 0 {
		logger.L().Debug("geoip_skipped", "count", skipped)
	}
	return out, nil
}
