// 文档注释：入口限流中间件（按远端 IP 的令牌桶）
// 背景：批管线触发与快照导出都不便宜，流量峰值时对入口限速避免几何判定被打爆。
// 约束：超限直接 429 不排队；按环境变量开关与速率配置；限流器表只增不清，
// 适用于来源 IP 基数有限的内网/网关后场景。
package middleware

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

type limiterTable struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func (t *limiterTable) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.m[ip]; ok {
		return l
	}
	l := rate.NewLimiter(t.limit, t.burst)
	t.m[ip] = l
	return l
}

// Wrap：按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS / RATE_LIMIT_BURST 包装处理器
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 50
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			qps = n
		}
	}
	burst := qps * 2
	if s := os.Getenv("RATE_LIMIT_BURST"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			burst = n
		}
	}
	tab := &limiterTable{m: map[string]*rate.Limiter{}, limit: rate.Limit(qps), burst: burst}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !tab.get(host).Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
