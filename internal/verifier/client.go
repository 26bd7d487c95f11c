// Package verifier は購入サービスへの所有権確認RPCクライアントを提供する。
// ツアー実行を別プロセスに切り出した構成で、インプロセスの
// purchase.Serviceの代わりにこのクライアントを配線する。
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client は所有権確認RPCのHTTPクライアント。
// 呼び出しが失敗した場合はエラーを返し、呼び出し側が
// フェイルクローズ（購入なし扱い）で処理する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    baseURL,
	}
}

type verifyRequest struct {
	TouristID int64  `json:"touristId"`
	TourID    string `json:"tourId"`
}

type verifyResponse struct {
	Purchased bool `json:"purchased"`
}

// HasPurchased は購入サービスに所有権を問い合わせる。
func (c *Client) HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error) {
	payload, err := json.Marshal(verifyRequest{TouristID: touristID, TourID: tourID})
	if err != nil {
		return false, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	reqURL := c.baseURL + "/internal/purchases/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("所有権確認RPCの呼び出しに失敗しました",
			slog.Int64("tourist_id", touristID),
			slog.String("tour_id", tourID),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("所有権確認RPCがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return vr.Purchased, nil
}
