package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tourman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	JWTSecret         string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック
	HealthChecker HealthChecker

	// かご・チェックアウト
	CartService     CartServiceInterface
	CheckoutService CheckoutServiceInterface

	// 購入トークン
	PurchaseService PurchaseServiceInterface

	// ツアー実行
	ExecutionService ExecutionServiceInterface

	// 位置
	PositionService PositionServiceInterface

	// 内部所有権確認RPC
	PurchaseChecker PurchaseChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Recovery → Logging → Identity → RateLimit(General)
//
// /health と /internal/* は認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	healthHandler := NewHealthHandler(deps.HealthChecker)
	cartHandler := NewCartHandler(deps.CartService, deps.CheckoutService)
	purchaseHandler := NewPurchaseHandler(deps.PurchaseService)
	executionHandler := NewExecutionHandler(deps.ExecutionService)
	positionHandler := NewPositionHandler(deps.PositionService)
	verifyHandler := NewVerifyHandler(deps.PurchaseChecker)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)

	// サービス間RPC（内部ネットワーク専用）
	r.Route("/internal/purchases", func(r chi.Router) {
		r.Post("/verify", verifyHandler.Verify)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.JWTSecret))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 買い物かご
		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/add", cartHandler.AddItem)
			r.Delete("/items/{tourId}", cartHandler.RemoveItem)

			// POST /api/cart/checkout - チェックアウト（専用レート制限を追加）
			r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/checkout", cartHandler.Checkout)
		})

		// 購入トークン
		r.Get("/api/purchase-tokens", purchaseHandler.ListTokens)

		// ツアー実行セッション
		r.Route("/api/tour-executions", func(r chi.Router) {
			r.Post("/{tourId}/start", executionHandler.Start)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", executionHandler.Get)
				r.Put("/position", executionHandler.UpdatePosition)
				r.Patch("/abandon", executionHandler.Abandon)
			})
		})

		// ツーリスト位置
		r.Route("/api/position", func(r chi.Router) {
			r.Post("/", positionHandler.Report)
			r.Get("/", positionHandler.Get)
		})
	})

	return r
}
