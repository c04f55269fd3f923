package resolve

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"region-api/internal/geostore"
)

func square(minLon, minLat, maxLon, maxLat float64) geostore.Polygon {
	p := geostore.Polygon{Rings: [][]geostore.Point{{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}}}
	geostore.ComputeBBox(&p)
	return p
}

func twoRegions(t *testing.T) *geostore.Store {
	t.Helper()
	s, err := geostore.Load([]geostore.Region{
		{ID: "A", Polys: []geostore.Polygon{square(0, 0, 1, 1)}},
		{ID: "B", Polys: []geostore.Polygon{square(2, 0, 3, 1)}},
	})
	require.NoError(t, err)
	return s
}

func TestOneBasicContainment(t *testing.T) {
	s := twoRegions(t)

	id, ok := One(s, geostore.Point{Lat: 0.5, Lon: 0.5})
	require.True(t, ok)
	assert.Equal(t, "A", id)

	id, ok = One(s, geostore.Point{Lat: 0.5, Lon: 2.5})
	require.True(t, ok)
	assert.Equal(t, "B", id)

	// 边界之外是合法结果，不是错误
	_, ok = One(s, geostore.Point{Lat: 0.5, Lon: 1.5})
	assert.False(t, ok)
}

func TestOneRespectsHoles(t *testing.T) {
	outer := square(0, 0, 4, 4)
	hole := [][]geostore.Point{{
		{Lat: 1, Lon: 1}, {Lat: 1, Lon: 3}, {Lat: 3, Lon: 3}, {Lat: 3, Lon: 1}, {Lat: 1, Lon: 1},
	}}
	outer.Rings = append(outer.Rings, hole...)
	s, err := geostore.Load([]geostore.Region{{ID: "ring", Polys: []geostore.Polygon{outer}}})
	require.NoError(t, err)

	// 洞内不命中，环带上命中
	_, ok := One(s, geostore.Point{Lat: 2, Lon: 2})
	assert.False(t, ok)
	id, ok := One(s, geostore.Point{Lat: 0.5, Lon: 2})
	require.True(t, ok)
	assert.Equal(t, "ring", id)
}

func TestOneOverlapPicksFirstInCanonicalOrder(t *testing.T) {
	// 两个区域刻意重叠（畸形输入）：确定性命中规范顺序中的第一个
	s, err := geostore.Load([]geostore.Region{
		{ID: "first", Polys: []geostore.Polygon{square(0, 0, 2, 2)}},
		{ID: "second", Polys: []geostore.Polygon{square(1, 1, 3, 3)}},
	})
	require.NoError(t, err)
	id, ok := One(s, geostore.Point{Lat: 1.5, Lon: 1.5})
	require.True(t, ok)
	assert.Equal(t, "first", id)
}

func TestValid(t *testing.T) {
	assert.NoError(t, Valid(geostore.Point{Lat: 10, Lon: 20}))

	var inv *InvalidPointError
	err := Valid(geostore.Point{Lat: math.NaN(), Lon: 0})
	require.ErrorAs(t, err, &inv)
	err = Valid(geostore.Point{Lat: 0, Lon: math.Inf(1)})
	require.ErrorAs(t, err, &inv)
}

func TestBatchConservation(t *testing.T) {
	s := twoRegions(t)
	pts := []geostore.Point{
		{Lat: 0.2, Lon: 0.2},        // A
		{Lat: 0.8, Lon: 0.8},        // A
		{Lat: 0.5, Lon: 2.5},        // B
		{Lat: 9, Lon: 9},            // 无归属
		{Lat: math.NaN(), Lon: 0.5}, // 无效
	}
	out, err := Batch(context.Background(), s, pts, Options{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Valid)
	assert.Equal(t, 1, out.Invalid)
	assert.Equal(t, 1, out.Unmatched)
	// 守恒：匹配 + 未匹配 == 有效点数
	assert.Equal(t, out.Valid, len(out.Matches)+out.Unmatched)
}

func TestBatchAbortOnInvalid(t *testing.T) {
	s := twoRegions(t)
	pts := []geostore.Point{
		{Lat: 0.5, Lon: 0.5},
		{Lat: math.Inf(-1), Lon: 0},
	}
	_, err := Batch(context.Background(), s, pts, Options{OnInvalid: AbortOnInvalid})
	var inv *InvalidPointError
	require.ErrorAs(t, err, &inv)
}

func TestBatchManyPointsParallel(t *testing.T) {
	s := twoRegions(t)
	var pts []geostore.Point
	for i := 0; i < 5000; i++ {
		// 交替落入 A 与无归属
		if i%2 == 0 {
			pts = append(pts, geostore.Point{Lat: 0.5, Lon: 0.5})
		} else {
			pts = append(pts, geostore.Point{Lat: 50, Lon: 50})
		}
	}
	out, err := Batch(context.Background(), s, pts, Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, 5000, out.Valid)
	assert.Len(t, out.Matches, 2500)
	assert.Equal(t, 2500, out.Unmatched)
}

func TestBatchEmpty(t *testing.T) {
	s := twoRegions(t)
	out, err := Batch(context.Background(), s, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Valid)
	assert.Empty(t, out.Matches)
}
