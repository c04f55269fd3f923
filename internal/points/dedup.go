// 文档注释：事件去重（Redis 布隆位图）
// 背景：订阅源按页全量拉取时可能与既有事件重叠，用短周期布隆位图挡掉重复标识，
// 降低入库与解析的重复压力。
// 返回 true 表示首次见到（已写入位图，可继续处理）；false 表示疑似已存在。
// 约束：布隆有误判率，仅作前置过滤；强一致去重由数据库主键兜底。
// 当 rc 为 nil 时视为“允许处理”，不阻断主流程。
package points

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bloomBits   = 1 << 20
	bloomHashes = 4
)

// bitStore：位图后端，生产路径是 Redis，测试注入内存实现
type bitStore interface {
	getBit(ctx context.Context, key string, pos int64) (int64, error)
	setBits(ctx context.Context, key string, pos []int64, ttl time.Duration) error
}

type redisBits struct {
	rc *redis.Client
}

func (r redisBits) getBit(ctx context.Context, key string, pos int64) (int64, error) {
	return r.rc.GetBit(ctx, key, pos).Result()
}

func (r redisBits) setBits(ctx context.Context, key string, pos []int64, ttl time.Duration) error {
	pipe := r.rc.Pipeline()
	for _, p := range pos {
		pipe.SetBit(ctx, key, p, 1)
	}
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

func FirstSeen(ctx context.Context, rc *redis.Client, key, eventID string, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	return firstSeen(ctx, redisBits{rc: rc}, key, eventID, ttl)
}

func firstSeen(ctx context.Context, bits bitStore, key, eventID string, ttl time.Duration) (bool, error) {
	positions := bloomPositions([]byte(eventID), bloomBits, bloomHashes)
	seen := true
	for _, p := range positions {
		b, err := bits.getBit(ctx, key, p)
		if err != nil {
			return true, err
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false, nil
	}
	return true, bits.setBits(ctx, key, positions, ttl)
}

// Dedup：过滤一批事件中的重复标识
func Dedup(ctx context.Context, rc *redis.Client, key string, evs []RawEvent, ttl time.Duration) ([]RawEvent, error) {
	if rc == nil {
		return evs, nil
	}
	return dedupBits(ctx, redisBits{rc: rc}, key, evs, ttl)
}

func dedupBits(ctx context.Context, bits bitStore, key string, evs []RawEvent, ttl time.Duration) ([]RawEvent, error) {
	out := make([]RawEvent, 0, len(evs))
	for _, ev := range evs {
		fresh, err := firstSeen(ctx, bits, key, ev.ID, ttl)
		if err != nil {
			return nil, err
		}
		if fresh {
			out = append(out, ev)
		}
	}
	return out, nil
}
