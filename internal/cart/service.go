// Package cart は買い物かご管理のドメインロジックを提供する。
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tourman/internal/catalog"
	"github.com/hitoshi/tourman/internal/model"
	"github.com/hitoshi/tourman/internal/repository"
)

// TourCatalog はツアー定義の取得インターフェース。
type TourCatalog interface {
	// GetTour は指定IDのツアー詳細を取得する。
	GetTour(ctx context.Context, tourID string) (*model.TourInfo, error)
}

// Service は買い物かご管理のサービス層。
// 追加時のツアー検証、削除、一覧取得のビジネスロジックを提供する。
type Service struct {
	cartRepo repository.CartRepository
	catalog  TourCatalog
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(cartRepo repository.CartRepository, tourCatalog TourCatalog, logger *slog.Logger) *Service {
	return &Service{
		cartRepo: cartRepo,
		catalog:  tourCatalog,
		logger:   logger,
	}
}

// AddItem はツアーをかごに追加する。
// カタログで実在と公開状態を検証し、名前と価格はかご追加時点の
// スナップショットとして保存する。追加後のかご全体を返す。
func (s *Service) AddItem(ctx context.Context, touristID int64, tourID string) (*model.Cart, error) {
	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		if errors.Is(err, catalog.ErrTourNotFound) {
			return nil, model.NewTourNotFoundError(tourID)
		}
		if errors.Is(err, catalog.ErrUnavailable) {
			return nil, model.NewCatalogUnavailableError(err.Error())
		}
		return nil, fmt.Errorf("ツアー情報の取得に失敗しました: %w", err)
	}

	if !tour.Purchasable() {
		return nil, model.NewTourNotPurchasableError(tourID)
	}

	item := &model.CartItem{
		ID:        uuid.NewString(),
		TourID:    tour.ID,
		Name:      tour.Name,
		Price:     tour.Price,
		CreatedAt: time.Now(),
	}

	if err := s.cartRepo.AddItem(ctx, touristID, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateItem) {
			return nil, model.NewAlreadyInCartError(tourID)
		}
		return nil, fmt.Errorf("かごへの追加に失敗しました: %w", err)
	}

	s.logger.Info("cart item added",
		slog.Int64("tourist_id", touristID),
		slog.String("tour_id", tourID),
	)

	return s.cartRepo.FindByTouristID(ctx, touristID)
}

// RemoveItem はかごから指定ツアーを削除し、削除後のかご全体を返す。
func (s *Service) RemoveItem(ctx context.Context, touristID int64, tourID string) (*model.Cart, error) {
	if err := s.cartRepo.RemoveItem(ctx, touristID, tourID); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, model.NewCartItemNotFoundError(tourID)
		}
		return nil, fmt.Errorf("かごからの削除に失敗しました: %w", err)
	}

	s.logger.Info("cart item removed",
		slog.Int64("tourist_id", touristID),
		slog.String("tour_id", tourID),
	)

	return s.cartRepo.FindByTouristID(ctx, touristID)
}

// GetCart はかごの内容を返す。かごが存在しない場合も空のかごを返す。
func (s *Service) GetCart(ctx context.Context, touristID int64) (*model.Cart, error) {
	cart, err := s.cartRepo.FindByTouristID(ctx, touristID)
	if err != nil {
		return nil, fmt.Errorf("かごの取得に失敗しました: %w", err)
	}
	return cart, nil
}
