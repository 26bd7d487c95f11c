package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tourman/internal/middleware"
	"github.com/hitoshi/tourman/internal/model"
)

// ExecutionServiceInterface はツアー実行ハンドラーが必要とするサービスインターフェース。
type ExecutionServiceInterface interface {
	// Start はツアー実行セッションを開始する（冪等）。
	Start(ctx context.Context, touristID int64, tourID string, pos model.Position) (*model.TourExecution, error)
	// UpdatePosition は現在位置を更新し、キーポイント到達を判定する。
	UpdatePosition(ctx context.Context, touristID int64, executionID string, pos model.Position) (*model.TourExecution, error)
	// Abandon はactiveなセッションを中断する。
	Abandon(ctx context.Context, touristID int64, executionID string) (*model.TourExecution, error)
	// Get はセッションを取得する。
	Get(ctx context.Context, touristID int64, executionID string) (*model.TourExecution, error)
}

// ExecutionHandler はツアー実行セッションのHTTPハンドラー。
type ExecutionHandler struct {
	service ExecutionServiceInterface
}

// NewExecutionHandler はExecutionHandlerを生成する。
func NewExecutionHandler(service ExecutionServiceInterface) *ExecutionHandler {
	return &ExecutionHandler{service: service}
}

// positionRequest は位置を含むリクエストのボディ。
type positionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// completedKeypointResponse は到達済みキーポイントのAPIレスポンス。
type completedKeypointResponse struct {
	KeypointID     string    `json:"keypointId"`
	Seq            int       `json:"seq"`
	CompletionTime time.Time `json:"completionTime"`
}

// executionResponse はツアー実行セッションのAPIレスポンス。
type executionResponse struct {
	ID                 string                      `json:"id"`
	TourID             string                      `json:"tourId"`
	Status             string                      `json:"status"`
	StartTime          time.Time                   `json:"startTime"`
	EndTime            *time.Time                  `json:"endTime,omitempty"`
	LastActivityTime   time.Time                   `json:"lastActivityTime"`
	CurrentPosition    positionRequest             `json:"currentPosition"`
	CompletedKeypoints []completedKeypointResponse `json:"completedKeypoints"`
}

func toExecutionResponse(exec *model.TourExecution) executionResponse {
	keypoints := make([]completedKeypointResponse, len(exec.CompletedKeypoints))
	for i, kp := range exec.CompletedKeypoints {
		keypoints[i] = completedKeypointResponse{
			KeypointID:     kp.KeypointID,
			Seq:            kp.Seq,
			CompletionTime: kp.CompletionTime,
		}
	}
	return executionResponse{
		ID:               exec.ID,
		TourID:           exec.TourID,
		Status:           string(exec.Status),
		StartTime:        exec.StartTime,
		EndTime:          exec.EndTime,
		LastActivityTime: exec.LastActivityTime,
		CurrentPosition: positionRequest{
			Latitude:  exec.CurrentPosition.Latitude,
			Longitude: exec.CurrentPosition.Longitude,
		},
		CompletedKeypoints: keypoints,
	}
}

// Start はツアー実行セッションを開始する。
// POST /api/tour-executions/{tourId}/start
func (h *ExecutionHandler) Start(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tourID := chi.URLParam(r, "tourId")

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	exec, err := h.service.Start(r.Context(), touristID, tourID, model.Position{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toExecutionResponse(exec))
}

// UpdatePosition はセッションの現在位置を更新する。
// PUT /api/tour-executions/{id}/position
func (h *ExecutionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	executionID := chi.URLParam(r, "id")

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	exec, err := h.service.UpdatePosition(r.Context(), touristID, executionID, model.Position{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toExecutionResponse(exec))
}

// Abandon はactiveなセッションを中断する。
// PATCH /api/tour-executions/{id}/abandon
func (h *ExecutionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	executionID := chi.URLParam(r, "id")

	exec, err := h.service.Abandon(r.Context(), touristID, executionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toExecutionResponse(exec))
}

// Get はセッションの現在状態を取得する。
// GET /api/tour-executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	executionID := chi.URLParam(r, "id")

	exec, err := h.service.Get(r.Context(), touristID, executionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toExecutionResponse(exec))
}
