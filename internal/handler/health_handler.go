package handler

import (
	"encoding/json"
	"net/http"
)

// HealthChecker はヘルスチェックに必要なDB疎通確認インターフェース。
type HealthChecker interface {
	Ping() error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health はアプリケーションとDBの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.checker != nil {
		if err := h.checker.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthResponse{Status: "unhealthy"})
			return
		}
	}

	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
