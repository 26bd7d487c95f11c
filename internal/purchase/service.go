// Package purchase は購入トークンの参照と所有権確認を提供する。
package purchase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tourman/internal/model"
	"github.com/hitoshi/tourman/internal/repository"
)

// Service は購入トークンのサービス層。
// ツアー実行側の所有権確認（HasPurchased）もこのサービスが担う。
type Service struct {
	purchaseRepo repository.PurchaseRepository
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(purchaseRepo repository.PurchaseRepository, logger *slog.Logger) *Service {
	return &Service{
		purchaseRepo: purchaseRepo,
		logger:       logger,
	}
}

// ListTokens はツーリストの全購入トークンを購入日時降順で返す。
func (s *Service) ListTokens(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error) {
	tokens, err := s.purchaseRepo.ListByTourist(ctx, touristID)
	if err != nil {
		return nil, fmt.Errorf("購入トークン一覧の取得に失敗しました: %w", err)
	}
	return tokens, nil
}

// HasPurchased は指定ツーリストが指定ツアーの購入トークンを保有するかを返す。
func (s *Service) HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error) {
	owned, err := s.purchaseRepo.HasPurchased(ctx, touristID, tourID)
	if err != nil {
		return false, fmt.Errorf("所有権の確認に失敗しました: %w", err)
	}
	return owned, nil
}
