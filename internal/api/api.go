// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
// 背景：对外只暴露绑定后的快照与运行触发；核心变换不持有任何网络面，
// 这里是把内存结构编码为响应的薄壳。
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"region-api/internal/geostore"
	"region-api/internal/logger"
	"region-api/internal/pipeline"
	"region-api/internal/resolve"
	"region-api/internal/store"
	"region-api/internal/table"
)

type Handler struct {
	p  *pipeline.Pipeline
	db *store.Store
}

func NewHandler(p *pipeline.Pipeline, db *store.Store) *Handler {
	return &Handler{p: p, db: db}
}

func (h *Handler) Register(mux *http.ServeMux, base string) {
	mux.HandleFunc("GET "+base+"/choropleth", h.Choropleth)
	mux.HandleFunc("GET "+base+"/regions", h.Regions)
	mux.HandleFunc("GET "+base+"/resolve", h.Resolve)
	mux.HandleFunc("POST "+base+"/run", h.Run)
	mux.HandleFunc("GET "+base+"/runs", h.Runs)
	mux.HandleFunc("GET /healthz", h.Health)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Choropleth：导出渲染就绪的要素集合
// 约束：属性行与几何按规范位置逐一配对，消费方可直接按要素序着色
func (h *Handler) Choropleth(w http.ResponseWriter, r *http.Request) {
	fc := h.p.Current().FeatureCollection()
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		logger.L().Error("choropleth_encode_error", "err", err)
	}
}

// Regions：当前绑定的属性表（规范位置序）
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	cur := h.p.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   cur.Len(),
		"regions": cur.Attributes().Rows,
	})
}

// Resolve：单点归属查询（调试用）
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, errors.New("lat/lon must be numeric"))
		return
	}
	p := geostore.Point{Lat: lat, Lon: lon}
	if err := resolve.Valid(p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, ok := resolve.One(h.p.Current(), p)
	writeJSON(w, http.StatusOK, map[string]any{"region_id": id, "matched": ok})
}

// Run：触发一次管线运行
// 背景：运行由管线内部互斥串行化；结构性错误按 422 返回，调用方可据此修数据
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.p.Run(r.Context())
	if err != nil {
		var dup *geostore.DuplicateIDError
		var card *geostore.CardinalityError
		var key *table.NonUniqueJoinKeyError
		var inv *resolve.InvalidPointError
		if errors.As(err, &dup) || errors.As(err, &card) || errors.As(err, &key) || errors.As(err, &inv) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":         res,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// Runs：最近运行摘要
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []store.RunSummary{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.db.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
