// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"region-api/internal/api"
	"region-api/internal/dataset"
	"region-api/internal/geostore"
	"region-api/internal/ingest"
	"region-api/internal/logger"
	"region-api/internal/metrics"
	"region-api/internal/middleware"
	"region-api/internal/migrate"
	"region-api/internal/pipeline"
	"region-api/internal/points"
	"region-api/internal/resolve"
	"region-api/internal/store"
	"region-api/internal/utils"
	"region-api/internal/version"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Info("start", "version", version.Version)

	metrics.Register()

	// 几何：服务的位置权威，启动即加载且此后只读
	geoPath := os.Getenv("GEOJSON_PATH")
	if geoPath == "" {
		geoPath = filepath.Join("data", "regions.geojson")
	}
	idProp := os.Getenv("REGION_ID_PROP")
	if idProp == "" {
		idProp = "id"
	}
	nameProp := os.Getenv("REGION_NAME_PROP")
	if nameProp == "" {
		nameProp = "name"
	}
	raw, err := os.ReadFile(geoPath)
	if err != nil {
		l.Error("geojson_read_error", "path", geoPath, "err", err)
		os.Exit(1)
	}
	regions, err := geostore.LoadGeoJSON(raw, idProp, nameProp)
	if err != nil {
		l.Error("geojson_parse_error", "err", err)
		os.Exit(1)
	}
	gs, err := geostore.Load(regions)
	if err != nil {
		l.Error("geostore_load_error", "err", err)
		os.Exit(1)
	}
	l.Info("geostore_ok", "regions", gs.Len())

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	var st *store.Store
	if err := db.Ping(); err != nil {
		l.Warn("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	}

	rc := utils.OpenRedisFromEnv()

	// 来源：数据库事件快照为主，可选远端订阅源直拉
	var sources []points.Source
	if st != nil {
		sources = append(sources, dbSource{st})
	}
	if fc := points.NewFeedClientFromEnv(); fc != nil {
		sources = append(sources, fc)
	}

	// 数据集：启动时从库内读入，作为每次运行的合并输入
	var datasets []dataset.Dataset
	if st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		datasets, err = st.LoadDatasets(ctx)
		cancel()
		if err != nil {
			l.Error("datasets_load_error", "err", err)
			os.Exit(1)
		}
		l.Info("datasets_ok", "count", len(datasets))
	}

	onInvalid := resolve.SkipInvalid
	if os.Getenv("INVALID_POINT_POLICY") == "abort" {
		onInvalid = resolve.AbortOnInvalid
	}
	// 坐标缓存是显式开关：geohash 单元键在边界附近是近似命中，
	// 会把邻近单元的既有归属借给本应无归属的点，缺省关闭
	cachePrec := 0
	if s := os.Getenv("POINT_CACHE_GEOHASH_PRECISION"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cachePrec = n
		}
	}
	p := pipeline.New(pipeline.Config{
		Store:    gs,
		Sources:  sources,
		Datasets: datasets,
		Redis:    rc,
		DB:       st,
		Options: pipeline.Options{
			OnInvalid:        onInvalid,
			GeohashPrecision: cachePrec,
		},
	})

	// 首跑放后台，先把 API 挂起来
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := p.Run(ctx); err != nil {
			l.Error("initial_run_error", "err", err)
		}
	}()

	ingest.StartInterval(p, ingest.IntervalFromEnv())

	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	mux := http.NewServeMux()
	api.NewHandler(p, st).Register(mux, apiBase)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := middleware.Wrap(logger.AccessMiddleware(l)(mux))
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	l.Info("listen", "addr", addr, "api_base", apiBase)
	if err := http.ListenAndServe(addr, handler); err != nil {
		l.Error("serve_error", "err", err)
		os.Exit(1)
	}
}

// dbSource：数据库事件快照来源
type dbSource struct {
	st *store.Store
}

func (d dbSource) Name() string { return "db" }

func (d dbSource) Fetch(ctx context.Context) ([]points.RawEvent, error) {
	return d.st.LoadEvents(ctx)
}
