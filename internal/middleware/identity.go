// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// roleTourist はツーリストAPIにアクセスできるロール。
const roleTourist = "tourist"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// touristIDContextKey はリクエストコンテキストにツーリストIDを格納するためのキー。
var touristIDContextKey = contextKey("tourist_id")

// identityClaims はアクセストークンのクレーム。
// idは認証基盤が発行するユーザーID、roleはアクセス権のロール。
type identityClaims struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewIdentityMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// ツーリストIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無効、期限切れ、またはroleがtourist以外の場合は401を返す。
func NewIdentityMiddleware(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &identityClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				slog.Warn("invalid access token",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if claims.Role != roleTourist {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if claims.ID <= 0 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), touristIDContextKey, claims.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TouristIDFromContext はリクエストコンテキストからツーリストIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func TouristIDFromContext(ctx context.Context) (int64, error) {
	touristID, ok := ctx.Value(touristIDContextKey).(int64)
	if !ok || touristID <= 0 {
		return 0, fmt.Errorf("tourist ID not found in context")
	}
	return touristID, nil
}

// ContextWithTouristID はコンテキストにツーリストIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithTouristID(ctx context.Context, touristID int64) context.Context {
	return context.WithValue(ctx, touristIDContextKey, touristID)
}
