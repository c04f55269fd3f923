// 包 ingest：调度周期性的管线重跑，运行在服务进程内的后台协程
package ingest

import (
	"context"
	"os"
	"strconv"
	"time"

	"region-api/internal/logger"
	"region-api/internal/pipeline"
)

// IntervalFromEnv：读取 REFRESH_INTERVAL_MIN，缺省 0 表示不调度
func IntervalFromEnv() time.Duration {
	if s := os.Getenv("REFRESH_INTERVAL_MIN"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return 0
}

// StartInterval：按固定间隔重跑管线
// 背景：事件快照随入库增长，定期重算保持绑定属性新鲜；运行本身由管线内部互斥串行化
// 约束：单次失败仅记录日志，调度继续；间隔 <=0 时不启动
func StartInterval(p *pipeline.Pipeline, every time.Duration) {
	if every <= 0 {
		return
	}
	l := logger.With("scheduler")
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for range t.C {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			res, err := p.Run(ctx)
			cancel()
			if err != nil {
				l.Error("scheduled_run_error", "err", err)
				continue
			}
			l.Info("scheduled_run_done", "run_id", res.RunID, "matched", res.Matched, "unmatched", res.Unmatched)
		}
	}()
	l.Info("scheduler_start", "interval", every.String())
}
