// 文档注释：远端事件订阅源客户端
// 背景：对齐常见开放数据查询接口的分页返回，仅解析本方案需要的标识/坐标/时间字段；
// 用于离线拉取与入库。
// 约束：坐标字段按文本透传，数值化与校验在核心侧完成；错误直接返回不做重试（交由调度层）。
package points

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"region-api/internal/logger"
	"region-api/internal/metrics"
)

type FeedClient struct {
	base     string
	pageSize int
	hc       *http.Client
}

// NewFeedClient：构造订阅源客户端
func NewFeedClient(base string, pageSize int) *FeedClient {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &FeedClient{
		base:     base,
		pageSize: pageSize,
		hc:       &http.Client{Timeout: 10 * time.Second},
	}
}

// NewFeedClientFromEnv：从 EVENT_FEED_URL / EVENT_FEED_PAGE_SIZE 构造；未配置返回 nil
func NewFeedClientFromEnv() *FeedClient {
	base := os.Getenv("EVENT_FEED_URL")
	if base == "" {
		return nil
	}
	size := 0
	if s := os.Getenv("EVENT_FEED_PAGE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			size = n
		}
	}
	return NewFeedClient(base, size)
}

func (c *FeedClient) Name() string { return "feed" }

type feedEvent struct {
	ID  string `json:"id"`
	Lat string `json:"latitude"`
	Lon string `json:"longitude"`
	At  string `json:"occurred_at"`
}

type feedResponse struct {
	Events []feedEvent `json:"events"`
}

// Fetch：分页拉取全量事件
// 约束：limit/offset 翻页直至返回不足一页；单页失败使整次拉取失败
func (c *FeedClient) Fetch(ctx context.Context) ([]RawEvent, error) {
	var out []RawEvent
	for offset := 0; ; offset += c.pageSize {
		batch, err := c.page(ctx, offset)
		if err != nil {
			metrics.FeedFailuresTotal.Inc()
			return nil, err
		}
		for _, e := range batch {
			ev := RawEvent{ID: e.ID, Lat: e.Lat, Lon: e.Lon, Source: c.Name()}
			if e.At != "" {
				if t, err := time.Parse(time.RFC3339, e.At); err == nil {
					ev.At = t
				}
			}
			out = append(out, ev)
		}
		if len(batch) < c.pageSize {
			break
		}
	}
	logger.L().Info("feed_fetch_done", "events", len(out))
	return out, nil
}

func (c *FeedClient) page(ctx context.Context, offset int) ([]feedEvent, error) {
	t0 := time.Now()
	metrics.FeedRequestsTotal.Inc()

	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("feed bad status " + resp.Status)
	}
	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}
	metrics.FeedDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	return fr.Events, nil
}
