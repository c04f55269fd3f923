package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"region-api/internal/dataset"
	"region-api/internal/geostore"
	"region-api/internal/pipeline"
	"region-api/internal/points"
	"region-api/internal/table"
)

type stubSource struct {
	evs []points.RawEvent
}

func (s stubSource) Name() string                                      { return "stub" }
func (s stubSource) Fetch(ctx context.Context) ([]points.RawEvent, error) { return s.evs, nil }

func newTestMux(t *testing.T, cfg pipeline.Config) *http.ServeMux {
	t.Helper()
	if cfg.Store == nil {
		poly := geostore.Polygon{Rings: [][]geostore.Point{{
			{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}, {Lat: 0, Lon: 0},
		}}}
		geostore.ComputeBBox(&poly)
		s, err := geostore.Load([]geostore.Region{
			{ID: "A", Name: "Alpha", Polys: []geostore.Polygon{poly}},
		})
		require.NoError(t, err)
		cfg.Store = s
	}
	mux := http.NewServeMux()
	NewHandler(pipeline.New(cfg), nil).Register(mux, "/api/v1")
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := doJSON(t, newTestMux(t, pipeline.Config{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRegions(t *testing.T) {
	code, body := doJSON(t, newTestMux(t, pipeline.Config{}), http.MethodGet, "/api/v1/regions")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	regions := body["regions"].([]any)
	require.Len(t, regions, 1)
	assert.Equal(t, "A", regions[0].(map[string]any)["region_id"])
}

func TestResolve(t *testing.T) {
	mux := newTestMux(t, pipeline.Config{})

	code, body := doJSON(t, mux, http.MethodGet, "/api/v1/resolve?lat=0.5&lon=0.5")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "A", body["region_id"])
	assert.Equal(t, true, body["matched"])

	code, body = doJSON(t, mux, http.MethodGet, "/api/v1/resolve?lat=50&lon=50")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["matched"])

	code, _ = doJSON(t, mux, http.MethodGet, "/api/v1/resolve?lat=abc&lon=0.5")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRunAndChoropleth(t *testing.T) {
	mux := newTestMux(t, pipeline.Config{
		Sources: []points.Source{stubSource{evs: []points.RawEvent{
			{ID: "p1", Lat: "0.5", Lon: "0.5"},
			{ID: "p2", Lat: "9", Lon: "9"},
		}}},
	})

	code, body := doJSON(t, mux, http.MethodPost, "/api/v1/run")
	require.Equal(t, http.StatusOK, code)
	run := body["run"].(map[string]any)
	assert.Equal(t, float64(1), run["matched"])
	assert.Equal(t, float64(1), run["unmatched"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/choropleth", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "FeatureCollection")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

// 结构性错误按 422 返回
func TestRunStructuralError(t *testing.T) {
	mux := newTestMux(t, pipeline.Config{
		Sources: []points.Source{stubSource{}},
		Datasets: []dataset.Dataset{{Name: "bad", Table: table.Table{Key: "region_id", Rows: []table.Row{
			{"region_id": "A", "v": 1},
			{"region_id": "A", "v": 2},
		}}}},
	})
	code, body := doJSON(t, mux, http.MethodPost, "/api/v1/run")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "region_id")
}

func TestRunsWithoutDB(t *testing.T) {
	code, body := doJSON(t, newTestMux(t, pipeline.Config{}), http.MethodGet, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["runs"])
}
