package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/tourman/internal/middleware"
	"github.com/hitoshi/tourman/internal/model"
)

// PositionServiceInterface は位置ハンドラーが必要とするサービスインターフェース。
type PositionServiceInterface interface {
	// Report はツーリストの現在位置を記録する。
	Report(ctx context.Context, touristID int64, pos model.Position) (*model.TouristPosition, error)
	// Get はツーリストの最終既知位置を返す。未報告の場合はnil。
	Get(ctx context.Context, touristID int64) (*model.TouristPosition, error)
}

// PositionHandler はツーリスト位置のHTTPハンドラー。
type PositionHandler struct {
	service PositionServiceInterface
}

// NewPositionHandler はPositionHandlerを生成する。
func NewPositionHandler(service PositionServiceInterface) *PositionHandler {
	return &PositionHandler{service: service}
}

// touristPositionResponse はツーリスト位置のAPIレスポンス。
type touristPositionResponse struct {
	TouristID   int64     `json:"touristId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func toTouristPositionResponse(tp *model.TouristPosition) touristPositionResponse {
	return touristPositionResponse{
		TouristID:   tp.TouristID,
		Latitude:    tp.Latitude,
		Longitude:   tp.Longitude,
		LastUpdated: tp.LastUpdated,
	}
}

// Report はツーリストの現在位置を報告する。
// POST /api/position
func (h *PositionHandler) Report(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	tp, err := h.service.Report(r.Context(), touristID, model.Position{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTouristPositionResponse(tp))
}

// Get はツーリストの最終既知位置を取得する。
// GET /api/position
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tp, err := h.service.Get(r.Context(), touristID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tp == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "POSITION_NOT_FOUND",
			Message:  "位置がまだ報告されていません。",
			Category: "not_found",
			Action:   "位置を報告してから取得してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTouristPositionResponse(tp))
}
