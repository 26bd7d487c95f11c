// Package handler はHTTP APIハンドラーを提供する。
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

// CartServiceInterface はかごハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	// AddItem はツアーをかごに追加し、追加後のかごを返す。
	AddItem(ctx context.Context, touristID int64, tourID string) (*model.Cart, error)
	// RemoveItem はかごからツアーを削除し、削除後のかごを返す。
	RemoveItem(ctx context.Context, touristID int64, tourID string) (*model.Cart, error)
	// GetCart はかごの内容を返す。
	GetCart(ctx context.Context, touristID int64) (*model.Cart, error)
}

// CheckoutServiceInterface はチェックアウトハンドラーが必要とするサービスインターフェース。
type CheckoutServiceInterface interface {
	// Checkout はかご全体を購入し、作成された購入トークン群を返す。
	Checkout(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error)
}

// CartHandler は買い物かごとチェックアウトのHTTPハンドラー。
type CartHandler struct {
	cartService     CartServiceInterface
	checkoutService CheckoutServiceInterface
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(cartService CartServiceInterface, checkoutService CheckoutServiceInterface) *CartHandler {
	return &CartHandler{
		cartService:     cartService,
		checkoutService: checkoutService,
	}
}

// cartItemResponse はかごアイテムのAPIレスポンス。
type cartItemResponse struct {
	ID        string    `json:"id"`
	TourID    string    `json:"tourId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

// cartResponse はかごのAPIレスポンス。
type cartResponse struct {
	TouristID int64              `json:"touristId"`
	Items     []cartItemResponse `json:"items"`
	Total     float64            `json:"total"`
}

// addItemRequest はかご追加リクエストのボディ。
type addItemRequest struct {
	TourID string `json:"tourId"`
}

// tokenResponse は購入トークンのAPIレスポンス。
type tokenResponse struct {
	ID           string    `json:"id"`
	TourID       string    `json:"tourId"`
	PurchaseTime time.Time `json:"purchaseTime"`
}

func toCartResponse(cart *model.Cart) cartResponse {
	items := make([]cartItemResponse, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = cartItemResponse{
			ID:        item.ID,
			TourID:    item.TourID,
			Name:      item.Name,
			Price:     item.Price,
			CreatedAt: item.CreatedAt,
		}
	}
	return cartResponse{
		TouristID: cart.TouristID,
		Items:     items,
		Total:     cart.Total(),
	}
}

func toTokenResponses(tokens []*model.PurchaseToken) []tokenResponse {
	res := make([]tokenResponse, len(tokens))
	for i, token := range tokens {
		res[i] = tokenResponse{
			ID:           token.ID,
			TourID:       token.TourID,
			PurchaseTime: token.PurchaseTime,
		}
	}
	return res
}

// AddItem はツアーをかごに追加する。
// POST /api/cart/add
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TourID == "" {
		writeInvalidRequest(w)
		return
	}

	cart, err := h.cartService.AddItem(r.Context(), touristID, req.TourID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCartResponse(cart))
}

// RemoveItem はかごからツアーを削除する。
// DELETE /api/cart/items/{tourId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tourID := chi.URLParam(r, "tourId")

	cart, err := h.cartService.RemoveItem(r.Context(), touristID, tourID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCartResponse(cart))
}

// GetCart はかごの内容を取得する。
// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	cart, err := h.cartService.GetCart(r.Context(), touristID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCartResponse(cart))
}

// Checkout はかご全体を購入する。
// POST /api/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	touristID, err := middleware.TouristIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tokens, err := h.checkoutService.Checkout(r.Context(), touristID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTokenResponses(tokens))
}
