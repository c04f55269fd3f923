// 工具入口：从远端订阅源 / GeoIP IP 清单拉取事件并入库，一次性执行
// 背景：在线服务按库内快照运行，取数放在独立工具里便于排错与重放；
// 布隆位图先挡重复标识，数据库主键兜底强一致。
package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"region-api/internal/logger"
	"region-api/internal/metrics"
	"region-api/internal/migrate"
	"region-api/internal/points"
	"region-api/internal/store"
	"region-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	metrics.Register()

	var sources []points.Source
	if fc := points.NewFeedClientFromEnv(); fc != nil {
		sources = append(sources, fc)
	}
	if gs := openGeoIPFromEnv(); gs != nil {
		defer gs.Close()
		sources = append(sources, gs)
	}
	if len(sources) == 0 {
		l.Error("no_source_configured", "hint", "set EVENT_FEED_URL or GEOIP_DB_PATH+GEOIP_IP_FILE")
		os.Exit(1)
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		os.Exit(1)
	}
	st := store.AttachDB(db)

	rc := utils.OpenRedisFromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var evs []points.RawEvent
	for _, src := range sources {
		batch, err := src.Fetch(ctx)
		if err != nil {
			l.Error("fetch_error", "source", src.Name(), "err", err)
			os.Exit(1)
		}
		evs = append(evs, batch...)
	}
	evs, err = points.Dedup(ctx, rc, "events:bloom", evs, 24*time.Hour)
	if err != nil {
		l.Warn("dedup_error", "err", err)
	}
	n, err := st.InsertEvents(ctx, evs)
	if err != nil {
		l.Error("insert_error", "err", err)
		os.Exit(1)
	}
	l.Info("ingest_done", "fetched", len(evs), "inserted", n)
}

// openGeoIPFromEnv：GEOIP_DB_PATH 指向 City 库、GEOIP_IP_FILE 为逐行 IP 清单；
// 任一未配置返回 nil
func openGeoIPFromEnv() *points.GeoIPSource {
	dbPath := os.Getenv("GEOIP_DB_PATH")
	ipFile := os.Getenv("GEOIP_IP_FILE")
	if dbPath == "" || ipFile == "" {
		return nil
	}
	raw, err := os.ReadFile(ipFile)
	if err != nil {
		logger.L().Error("geoip_ip_file_error", "path", ipFile, "err", err)
		os.Exit(1)
	}
	var ips []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			ips = append(ips, line)
		}
	}
	gs, err := points.OpenGeoIP(dbPath, ips)
	if err != nil {
		logger.L().Error("geoip_open_error", "err", err)
		os.Exit(1)
	}
	return gs
}
