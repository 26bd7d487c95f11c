package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	CheckoutRate    rate.Limit    // チェックアウトのレート（req/sec）。10/60
	CheckoutBurst   int           // チェックアウトのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/tourist、チェックアウト 10 req/min/tourist
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		CheckoutRate:    rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		CheckoutBurst:   10,
		CleanupInterval: 5 * time.Minute,
	}
}

// touristLimiter はツーリストごとのレートリミッターとアクセス時刻を保持する。
type touristLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はツーリストごとのレート制限を管理する。
// API全般のレート制限とチェックアウトのレート制限の2種類を提供する。
// チェックアウトは決済を伴うため、全般より厳しい独立した制限を持つ。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[int64]*touristLimiter

	checkoutMu       sync.RWMutex
	checkoutLimiters map[int64]*touristLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:           config,
		generalLimiters:  make(map[int64]*touristLimiter),
		checkoutLimiters: make(map[int64]*touristLimiter),
		stopCh:           make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにツーリストIDが含まれている必要がある（IdentityMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			touristID, err := TouristIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(touristID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.Int64("tourist_id", touristID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CheckoutMiddleware はチェックアウト専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) CheckoutMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			touristID, err := TouristIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateCheckoutLimiter(touristID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.CheckoutRate)
				slog.Warn("rate limit exceeded",
					slog.Int64("tourist_id", touristID),
					slog.String("limit_type", "checkout"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// CheckoutLimiterCount は現在管理されているチェックアウトリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) CheckoutLimiterCount() int {
	rl.checkoutMu.RLock()
	defer rl.checkoutMu.RUnlock()
	return len(rl.checkoutLimiters)
}

// getOrCreateGeneralLimiter はツーリストのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(touristID int64) *rate.Limiter {
	rl.generalMu.RLock()
	tl, exists := rl.generalLimiters[touristID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		tl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return tl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if tl, exists := rl.generalLimiters[touristID]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[touristID] = &touristLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateCheckoutLimiter はツーリストのチェックアウトリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateCheckoutLimiter(touristID int64) *rate.Limiter {
	rl.checkoutMu.RLock()
	tl, exists := rl.checkoutLimiters[touristID]
	rl.checkoutMu.RUnlock()

	if exists {
		rl.checkoutMu.Lock()
		tl.lastAccess = time.Now()
		rl.checkoutMu.Unlock()
		return tl.limiter
	}

	rl.checkoutMu.Lock()
	defer rl.checkoutMu.Unlock()

	// ダブルチェック
	if tl, exists := rl.checkoutLimiters[touristID]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(rl.config.CheckoutRate, rl.config.CheckoutBurst)
	rl.checkoutLimiters[touristID] = &touristLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for touristID, tl := range rl.generalLimiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.generalLimiters, touristID)
		}
	}
	rl.generalMu.Unlock()

	rl.checkoutMu.Lock()
	for touristID, tl := range rl.checkoutLimiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.checkoutLimiters, touristID)
		}
	}
	rl.checkoutMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
