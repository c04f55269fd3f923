// 包 pipeline：一次性批管线的编排（取数 → 解析 → 聚合 → 合并 → 位置绑定 → 发布）
// 背景：解析阶段可并行且可缓存；合并与绑定是管线栅栏，必须看到整批行才能校验
// 基数与位置。发布是对当前仓库指针的原子替换，读者不会看到半绑定的属性表。
// 约束：结构性错误（键不唯一、基数不符）使本次运行整体失败，不产生部分结果；
// 几何仓库在运行间不变，变的只是绑定出的新仓库。
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"region-api/internal/aggregate"
	"region-api/internal/cache"
	"region-api/internal/dataset"
	"region-api/internal/geostore"
	"region-api/internal/logger"
	"region-api/internal/metrics"
	"region-api/internal/points"
	"region-api/internal/resolve"
	"region-api/internal/store"
	"region-api/internal/table"
)

// unmatchedSentinel：缓存中表示“有效但落在所有区域之外”的哨兵值
const unmatchedSentinel = "-"

// Options：运行参数
type Options struct {
	Workers          int
	OnInvalid        resolve.Policy
	GeohashPrecision int           // 缓存键粒度；0（缺省）禁用坐标缓存，单元键是近似命中，开启须显式
	CacheTTL         time.Duration // 进程内与 Redis 缓存共用
}

// Config：管线装配
type Config struct {
	Store    *geostore.Store
	Sources  []points.Source
	Datasets []dataset.Dataset
	Redis    *redis.Client
	DB       *store.Store
	Options  Options
}

// Pipeline：持有几何仓库与各协作方，串行化运行
type Pipeline struct {
	base     *geostore.Store
	cur      atomic.Pointer[geostore.Store]
	sources  []points.Source
	datasets []dataset.Dataset
	rc       *redis.Client
	lru      *cache.LRU
	db       *store.Store
	opt      Options

	mu sync.Mutex // 同一时刻至多一次运行
}

func New(cfg Config) *Pipeline {
	opt := cfg.Options
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = time.Hour
	}
	p := &Pipeline{
		base:     cfg.Store,
		sources:  cfg.Sources,
		datasets: cfg.Datasets,
		rc:       cfg.Redis,
		db:       cfg.DB,
		opt:      opt,
	}
	if opt.GeohashPrecision > 0 {
		p.lru = cache.NewLRU(4096, opt.CacheTTL)
	}
	p.cur.Store(cfg.Store)
	return p
}

// Current：当前已发布的（可能已绑定的）仓库
func (p *Pipeline) Current() *geostore.Store { return p.cur.Load() }

// RunResult：一次运行的摘要
type RunResult struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total_events"`
	Valid     int           `json:"valid_points"`
	Matched   int           `json:"matched"`
	Unmatched int           `json:"unmatched"`
	Invalid   int           `json:"invalid"`
	Datasets  int           `json:"datasets_merged"`
	Duration  time.Duration `json:"-"`
}

// Bind：位置绑定器
// 背景：合并/聚合产物的行序无任何承诺，而渲染按位置取行；在每次合并或聚合之后、
// 属性挂回几何之前，这一步都是强制的。跳过它不会报错，只会把别的区域的数据
// 画到错误的区域上——这是全管线最该防的缺陷。
func Bind(s *geostore.Store, t table.Table) (*geostore.Store, error) {
	bound, err := s.BindAttributes(t)
	if err != nil {
		metrics.BindFailuresTotal.Inc()
		return nil, err
	}
	metrics.BindsTotal.Inc()
	return bound, nil
}

// Run：执行一次完整管线
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := logger.With("pipeline")
	t0 := time.Now()
	metrics.RunsTotal.Inc()
	res := &RunResult{RunID: uuid.NewString()}
	l.Info("run_start", "run_id", res.RunID)

	// 取数：各来源事件合并为一个固定快照
	var events []points.RawEvent
	for _, src := range p.sources {
		evs, err := src.Fetch(ctx)
		if err != nil {
			metrics.RunFailuresTotal.Inc()
			l.Error("run_fetch_error", "run_id", res.RunID, "source", src.Name(), "err", err)
			return nil, err
		}
		events = append(events, evs...)
	}
	res.Total = len(events)

	// 数值化：文本坐标到有限浮点；无效点按策略跳过或中止
	abort := p.opt.OnInvalid == resolve.AbortOnInvalid
	pts, invalid, err := points.CoerceBatch(events, abort)
	if err != nil {
		metrics.RunFailuresTotal.Inc()
		return nil, err
	}
	res.Invalid = invalid
	metrics.PointsInvalidTotal.Add(float64(invalid))

	// 解析：缓存命中的点直接复用归属，其余并行判定
	outcome, err := p.resolveAll(ctx, pts)
	if err != nil {
		metrics.RunFailuresTotal.Inc()
		return nil, err
	}
	res.Valid = outcome.Valid
	res.Matched = len(outcome.Matches)
	res.Unmatched = outcome.Unmatched
	metrics.PointsResolvedTotal.Add(float64(res.Matched))
	metrics.PointsUnmatchedTotal.Add(float64(res.Unmatched))

	// 聚合：全域计数（零事件区域保留）
	counts := aggregate.Counts(outcome, p.base)

	// 合并：计数表先上，再逐个外部数据集；任何一步键不唯一即整体失败
	merged, err := table.Merge(p.base.Attributes(), counts, geostore.KeyColumn)
	if err != nil {
		metrics.MergeFailuresTotal.Inc()
		metrics.RunFailuresTotal.Inc()
		return nil, err
	}
	metrics.MergesTotal.Inc()
	for _, ds := range p.datasets {
		merged, err = table.Merge(merged, ds.Table, ds.Table.Key)
		if err != nil {
			metrics.MergeFailuresTotal.Inc()
			metrics.RunFailuresTotal.Inc()
			l.Error("run_merge_error", "run_id", res.RunID, "dataset", ds.Name, "err", err)
			return nil, err
		}
		metrics.MergesTotal.Inc()
		res.Datasets++
	}

	// 绑定并发布：原子替换当前仓库
	bound, err := Bind(p.base, merged)
	if err != nil {
		metrics.RunFailuresTotal.Inc()
		l.Error("run_bind_error", "run_id", res.RunID, "err", err)
		return nil, err
	}
	p.cur.Store(bound)

	res.Duration = time.Since(t0)
	metrics.RunDurationMs.Observe(float64(res.Duration.Milliseconds()))
	l.Info("run_done",
		"run_id", res.RunID,
		"total", res.Total,
		"valid", res.Valid,
		"matched", res.Matched,
		"unmatched", res.Unmatched,
		"invalid", res.Invalid,
		"datasets", res.Datasets,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if p.db != nil {
		sum := store.RunSummary{
			ID:        res.RunID,
			StartedAt: t0,
			Duration:  res.Duration.Milliseconds(),
			Total:     res.Total,
			Valid:     res.Valid,
			Matched:   res.Matched,
			Unmatched: res.Unmatched,
			Invalid:   res.Invalid,
		}
		if err := p.db.SaveRun(ctx, sum, counts); err != nil {
			// 持久化失败不回滚已发布的绑定结果，仅记录
			l.Error("run_persist_error", "run_id", res.RunID, "err", err)
		}
	}
	return res, nil
}

// resolveAll：带缓存的批解析
// 背景：热点坐标先查进程内 LRU 再查 Redis，未命中的走并行几何判定并回填缓存。
// 约束：缓存键是 geohash 单元，边界附近存在近似；守恒式不受影响，
// 每个有效点仍恰好计入 Matches 或 Unmatched 之一。
func (p *Pipeline) resolveAll(ctx context.Context, pts []geostore.Point) (*resolve.Outcome, error) {
	if p.opt.GeohashPrecision <= 0 {
		return resolve.Batch(ctx, p.base, pts, resolve.Options{Workers: p.opt.Workers, OnInvalid: p.opt.OnInvalid})
	}

	out := &resolve.Outcome{}
	var miss []geostore.Point
	var missKeys []string
	for _, pt := range pts {
		key := "pt:" + cache.Geohash(pt.Lat, pt.Lon, p.opt.GeohashPrecision)
		if id, ok := p.cacheGet(ctx, key); ok {
			metrics.CacheHitsTotal.Inc()
			out.Valid++
			if id == unmatchedSentinel {
				out.Unmatched++
			} else {
				out.Matches = append(out.Matches, resolve.Match{Point: pt, RegionID: id})
			}
			continue
		}
		metrics.CacheMissesTotal.Inc()
		miss = append(miss, pt)
		missKeys = append(missKeys, key)
	}

	computed, err := resolve.Batch(ctx, p.base, miss, resolve.Options{Workers: p.opt.Workers, OnInvalid: p.opt.OnInvalid})
	if err != nil {
		return nil, err
	}
	out.Valid += computed.Valid
	out.Unmatched += computed.Unmatched
	out.Invalid += computed.Invalid
	out.Matches = append(out.Matches, computed.Matches...)

	// 回填：逐点重算归属的键值映射代价低（已知 match 集合），这里按点序对齐
	matched := make(map[geostore.Point]string, len(computed.Matches))
	for _, m := range computed.Matches {
		matched[m.Point] = m.RegionID
	}
	for i, pt := range miss {
		if err := resolve.Valid(pt); err != nil {
			continue
		}
		id, ok := matched[pt]
		if !ok {
			id = unmatchedSentinel
		}
		p.cacheSet(ctx, missKeys[i], id)
	}
	return out, nil
}

func (p *Pipeline) cacheGet(ctx context.Context, key string) (string, bool) {
	if p.lru != nil {
		if v, ok := p.lru.Get(key); ok {
			return v, true
		}
	}
	if p.rc != nil {
		if v, err := p.rc.Get(ctx, key).Result(); err == nil && v != "" {
			if p.lru != nil {
				p.lru.Set(key, v)
			}
			return v, true
		}
	}
	return "", false
}

func (p *Pipeline) cacheSet(ctx context.Context, key, v string) {
	if p.lru != nil {
		p.lru.Set(key, v)
	}
	if p.rc != nil {
		p.rc.Set(ctx, key, v, p.opt.CacheTTL)
	}
}
