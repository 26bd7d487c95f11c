package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// PurchaseChecker は内部所有権確認エンドポイントが必要とするインターフェース。
type PurchaseChecker interface {
	// HasPurchased は指定ツーリストが指定ツアーを購入済みかを返す。
	HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error)
}

// VerifyHandler はサービス間の所有権確認RPCのHTTPハンドラー。
// 内部ネットワーク専用で、認証ミドルウェアの外に配置する。
type VerifyHandler struct {
	checker PurchaseChecker
}

// NewVerifyHandler はVerifyHandlerを生成する。
func NewVerifyHandler(checker PurchaseChecker) *VerifyHandler {
	return &VerifyHandler{checker: checker}
}

type verifyRequest struct {
	TouristID int64  `json:"touristId"`
	TourID    string `json:"tourId"`
}

type verifyResponse struct {
	Purchased bool `json:"purchased"`
}

// Verify は所有権確認リクエストを処理する。
// POST /internal/purchases/verify
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TouristID <= 0 || req.TourID == "" {
		writeInvalidRequest(w)
		return
	}

	purchased, err := h.checker.HasPurchased(r.Context(), req.TouristID, req.TourID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verifyResponse{Purchased: purchased})
}
