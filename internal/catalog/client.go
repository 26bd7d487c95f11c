// Package catalog はツアーカタログサービスとの連携機能を提供する。
// ツアー定義（公開状態・価格・キーポイント）はこのサービスだけが正本を持つ。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tourman/internal/model"
)

const (
	// maxAttempts はネットワークエラー・5xx時の最大試行回数。
	maxAttempts = 2
	// retryDelay はリトライ前の待機時間。
	retryDelay = 200 * time.Millisecond
)

// ErrTourNotFound はカタログに該当ツアーが存在しない場合に返される。
var ErrTourNotFound = errors.New("tour not found in catalog")

// ErrUnavailable はカタログサービスに到達できない、または
// 期限内に応答が得られない場合に返される。
var ErrUnavailable = errors.New("catalog service unavailable")

// Client はツアーカタログサービスのHTTPクライアント。
// 呼び出しはタイムアウトで必ず打ち切られ、無期限に待つことはない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// timeoutは1回の試行に対する上限で、httpClient側に設定する。
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    baseURL,
	}
}

// tourResponse はカタログサービスの購入用ツアー詳細レスポンス。
type tourResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	Keypoints []struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"keypoints"`
}

// GetTour は指定IDのツアー詳細（公開状態・価格・キーポイント）を取得する。
// 404はErrTourNotFound、ネットワークエラー・5xx・タイムアウトは
// 最大2回試行したうえでErrUnavailableを返す。
func (c *Client) GetTour(ctx context.Context, tourID string) (*model.TourInfo, error) {
	reqURL := fmt.Sprintf("%s/tours/details-for-purchase/%s", c.baseURL, tourID)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(retryDelay):
			}
		}

		tour, retryable, err := c.fetchTour(ctx, reqURL)
		if err == nil {
			return tour, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		c.logger.Warn("カタログサービスの呼び出しに失敗しました",
			slog.String("tour_id", tourID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return nil, lastErr
}

// fetchTour は1回のHTTP試行を行う。retryableはリトライに値する失敗かどうかを示す。
func (c *Client) fetchTour(ctx context.Context, reqURL string) (tour *model.TourInfo, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrTourNotFound
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: ステータス %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("カタログサービスがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: レスポンスの読み取りに失敗: %v", ErrUnavailable, err)
	}

	var tr tourResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	info := &model.TourInfo{
		ID:     tr.ID,
		Name:   tr.Name,
		Price:  tr.Price,
		Status: model.TourStatus(tr.Status),
	}
	for _, kp := range tr.Keypoints {
		info.Keypoints = append(info.Keypoints, model.Keypoint{
			ID:        kp.ID,
			Name:      kp.Name,
			Latitude:  kp.Latitude,
			Longitude: kp.Longitude,
		})
	}

	return info, false, nil
}
