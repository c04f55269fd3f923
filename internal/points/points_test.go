package points

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"region-api/internal/resolve"
)

func TestCoercePoint(t *testing.T) {
	p, err := CoercePoint("39.9", "116.4")
	require.NoError(t, err)
	assert.Equal(t, 39.9, p.Lat)
	assert.Equal(t, 116.4, p.Lon)

	cases := []struct{ lat, lon string }{
		{"abc", "116.4"},
		{"39.9", ""},
		{"NaN", "116.4"},
		{"+Inf", "116.4"},
	}
	for _, c := range cases {
		_, err := CoercePoint(c.lat, c.lon)
		var inv *resolve.InvalidPointError
		assert.ErrorAs(t, err, &inv, "lat=%q lon=%q", c.lat, c.lon)
	}
}

func TestCoerceBatch(t *testing.T) {
	evs := []RawEvent{
		{ID: "a", Lat: "1", Lon: "1"},
		{ID: "b", Lat: "oops", Lon: "1"},
		{ID: "c", Lat: "2", Lon: "2"},
	}

	pts, invalid, err := CoerceBatch(evs, false)
	require.NoError(t, err)
	assert.Len(t, pts, 2)
	assert.Equal(t, 1, invalid)

	_, _, err = CoerceBatch(evs, true)
	var inv *resolve.InvalidPointError
	require.ErrorAs(t, err, &inv)
}

// 订阅源分页：limit/offset 翻页直到不足一页
func TestFeedClientFetchPaging(t *testing.T) {
	total := 5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		require.Equal(t, 2, limit)

		var evs []map[string]string
		for i := offset; i < total && i < offset+limit; i++ {
			evs = append(evs, map[string]string{
				"id":          fmt.Sprintf("e%d", i),
				"latitude":    "39.9",
				"longitude":   "116.4",
				"occurred_at": "2024-03-01T10:00:00Z",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"events": evs})
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL, 2)
	evs, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, total)
	assert.Equal(t, "e0", evs[0].ID)
	assert.Equal(t, "e4", evs[4].ID)
	assert.Equal(t, "feed", evs[0].Source)
	assert.Equal(t, 2024, evs[0].At.Year())
	// 坐标按文本透传
	assert.Equal(t, "39.9", evs[0].Lat)
}

func TestFeedClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFeedClient(srv.URL, 10).Fetch(context.Background())
	require.Error(t, err)
}

func TestNewFeedClientFromEnvUnset(t *testing.T) {
	t.Setenv("EVENT_FEED_URL", "")
	assert.Nil(t, NewFeedClientFromEnv())
}
