package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tourman/internal/middleware"
	"github.com/hitoshi/tourman/internal/model"
)

// PurchaseServiceInterface は購入トークンハンドラーが必要とするサービスインターフェース。
type PurchaseServiceInterface interface {
	// ListTokens はツーリストの全購入トークンを返す。
	ListTokens(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error)
}

// PurchaseHandler は購入トークン参照のHTTPハンドラー。
type PurchaseHandler struct {
	service PurchaseServiceInterface
}

// NewPurchaseHandler はPurchaseHandlerを生成する。
func NewPurchaseHandler(service PurchaseServiceInterface) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

// ListTokens はツーリストの購入トークン一覧を取得する。
// GET /api/purchase-tokens
func (h *PurchaseHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tokens, err := h.service.ListTokens(r.Context(), touristID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTokenResponses(tokens))
}
