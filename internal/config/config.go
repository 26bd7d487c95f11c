package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// 外部コラボレーター
	CatalogBaseURL  string        // ツアーカタログサービスのベースURL
	CatalogTimeout  time.Duration // カタログ呼び出しの上限時間
	VerifierBaseURL string        // 所有権確認RPCのベースURL（空ならインプロセス実装を使用）
	VerifierTimeout time.Duration // 所有権確認呼び出しの上限時間
	PaymentTimeout  time.Duration // 決済キャプチャ/返金の上限時間

	// 認証
	JWTSecret string // ゲートウェイが発行するJWTの署名検証用シークレット

	// Rate Limit（req/min/tourist）
	RateLimitGeneral  int
	RateLimitCheckout int

	// Server
	ServerPort  string
	MetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CatalogBaseURL = os.Getenv("CATALOG_BASE_URL")
	if cfg.CatalogBaseURL == "" {
		missing = append(missing, "CATALOG_BASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 5*time.Second)
	cfg.VerifierBaseURL = getEnvString("VERIFIER_BASE_URL", "")
	cfg.VerifierTimeout = getEnvDuration("VERIFIER_TIMEOUT", 3*time.Second)
	cfg.PaymentTimeout = getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCheckout = getEnvInt("RATE_LIMIT_CHECKOUT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
