// Package payment は決済ゲートウェイとの連携機能を提供する。
package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Gateway は決済ゲートウェイのインターフェース。
// Captureで請求し、補償が必要になった場合はRefundで返金する。
type Gateway interface {
	// Capture は指定金額を請求し、トランザクションIDを返す。
	Capture(ctx context.Context, touristID int64, amount float64) (string, error)

	// Refund は指定トランザクションを全額返金する。
	Refund(ctx context.Context, transactionID string) error
}

// SimulatedGateway は外部決済プロバイダを模した実装。
// 金額の検証以外は常に成功する。本番では実プロバイダのクライアントに差し替える。
type SimulatedGateway struct {
	logger *slog.Logger
}

// NewSimulatedGateway はSimulatedGatewayを生成する。
func NewSimulatedGateway(logger *slog.Logger) *SimulatedGateway {
	return &SimulatedGateway{logger: logger}
}

// Capture は指定金額を請求する。負の金額は拒否する。
func (g *SimulatedGateway) Capture(ctx context.Context, touristID int64, amount float64) (string, error) {
	if amount < 0 {
		return "", fmt.Errorf("請求金額が不正です: %v", amount)
	}

	txID := uuid.NewString()
	g.logger.Info("payment captured",
		slog.Int64("tourist_id", touristID),
		slog.Float64("amount", amount),
		slog.String("transaction_id", txID),
	)
	return txID, nil
}

// Refund は指定トランザクションを全額返金する。
func (g *SimulatedGateway) Refund(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return fmt.Errorf("トランザクションIDが空です")
	}

	g.logger.Info("payment refunded",
		slog.String("transaction_id", transactionID),
	)
	return nil
}

// compile-time interface check
var _ Gateway = (*SimulatedGateway)(nil)
