package points

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBits：内存位图，测试用
type memBits struct {
	bits map[string]map[int64]bool
}

func newMemBits() *memBits {
	return &memBits{bits: map[string]map[int64]bool{}}
}

func (m *memBits) getBit(ctx context.Context, key string, pos int64) (int64, error) {
	if m.bits[key][pos] {
		return 1, nil
	}
	return 0, nil
}

func (m *memBits) setBits(ctx context.Context, key string, pos []int64, ttl time.Duration) error {
	if m.bits[key] == nil {
		m.bits[key] = map[int64]bool{}
	}
	for _, p := range pos {
		m.bits[key][p] = true
	}
	return nil
}

func TestBloomPositions(t *testing.T) {
	pos := bloomPositions([]byte("e1"), bloomBits, bloomHashes)
	require.Len(t, pos, bloomHashes)
	for _, p := range pos {
		assert.GreaterOrEqual(t, p, int64(0))
		assert.Less(t, p, int64(bloomBits))
	}
	// 同一标识的位置确定，不同标识的位置集不同
	assert.Equal(t, pos, bloomPositions([]byte("e1"), bloomBits, bloomHashes))
	assert.NotEqual(t, pos, bloomPositions([]byte("e2"), bloomBits, bloomHashes))
}

// 首见/复见迁移：首次为 true 并写入位图，再次同标识为 false，异标识不受影响
func TestFirstSeenTransition(t *testing.T) {
	ctx := context.Background()
	bits := newMemBits()

	fresh, err := firstSeen(ctx, bits, "bloom", "e1", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = firstSeen(ctx, bits, "bloom", "e1", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = firstSeen(ctx, bits, "bloom", "e2", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestDedupFiltersRepeats(t *testing.T) {
	ctx := context.Background()
	bits := newMemBits()
	evs := []RawEvent{
		{ID: "a", Lat: "1", Lon: "1"},
		{ID: "b", Lat: "2", Lon: "2"},
		{ID: "a", Lat: "1", Lon: "1"},
	}

	out, err := dedupBits(ctx, bits, "bloom", evs, time.Hour)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)

	// 后续批次里已见过的标识也被挡掉
	out, err = dedupBits(ctx, bits, "bloom", evs[:2], time.Hour)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDedupNilClientPassesThrough(t *testing.T) {
	evs := []RawEvent{{ID: "a"}, {ID: "a"}}
	out, err := Dedup(context.Background(), nil, "bloom", evs, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, evs, out)
}
