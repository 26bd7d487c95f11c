// Package position はツーリストの最終既知位置の管理を提供する。
// 実行セッションとは独立した、端末からの生の位置レポートを保持する。
package position

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tourman/internal/model"
	"github.com/hitoshi/tourman/internal/repository"
)

// Service はツーリスト位置のサービス層。
type Service struct {
	posRepo repository.PositionRepository
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(posRepo repository.PositionRepository, logger *slog.Logger) *Service {
	return &Service{
		posRepo: posRepo,
		logger:  logger,
	}
}

// Report はツーリストの現在位置を記録する。同一ツーリストの再報告は上書きになる。
func (s *Service) Report(ctx context.Context, touristID int64, pos model.Position) (*model.TouristPosition, error) {
	if !pos.Valid() {
		return nil, model.NewInvalidPositionError()
	}

	tp := &model.TouristPosition{
		TouristID:   touristID,
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		LastUpdated: time.Now(),
	}

	if err := s.posRepo.Upsert(ctx, tp); err != nil {
		return nil, fmt.Errorf("位置の保存に失敗しました: %w", err)
	}

	return tp, nil
}

// Get はツーリストの最終既知位置を返す。未報告の場合はnilを返す。
func (s *Service) Get(ctx context.Context, touristID int64) (*model.TouristPosition, error) {
	tp, err := s.posRepo.FindByTouristID(ctx, touristID)
	if err != nil {
		return nil, fmt.Errorf("位置の取得に失敗しました: %w", err)
	}
	return tp, nil
}
