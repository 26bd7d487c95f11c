// Package execution はGPS位置に基づくツアー実行セッションのドメインロジックを提供する。
//
// セッションは (touristID, tourID) につきactiveなものが常に最大1つ存在し、
// 位置更新のたびにツアー定義順で次のキーポイントへの近接が判定される。
// 全キーポイントへの到達でセッションは自動的にcompletedへ遷移する。
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tourman/internal/catalog"
	"github.com/hitoshi/tourman/internal/metrics"
	"github.com/hitoshi/tourman/internal/model"
	"github.com/hitoshi/tourman/internal/repository"
)

// OwnershipVerifier はツアー所有権の確認インターフェース。
// 確認できない場合（エラー含む）は購入なしとして扱う（フェイルクローズ）。
type OwnershipVerifier interface {
	HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error)
}

// TourCatalog はツアー定義（キーポイント含む）の取得インターフェース。
type TourCatalog interface {
	GetTour(ctx context.Context, tourID string) (*model.TourInfo, error)
}

// Service はツアー実行セッションのサービス層。
type Service struct {
	execRepo repository.ExecutionRepository
	verifier OwnershipVerifier
	catalog  TourCatalog
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	execRepo repository.ExecutionRepository,
	verifier OwnershipVerifier,
	tourCatalog TourCatalog,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		execRepo: execRepo,
		verifier: verifier,
		catalog:  tourCatalog,
		metrics:  collector,
		logger:   logger,
	}
}

// Start はツアー実行セッションを開始する。
// 所有権が確認できない場合はNOT_PURCHASEDで拒否する（フェイルクローズ）。
// 同一(touristID, tourID)のactiveセッションが既に存在する場合は
// 新規作成せず既存セッションを返す（冪等）。
func (s *Service) Start(ctx context.Context, touristID int64, tourID string, pos model.Position) (*model.TourExecution, error) {
	if !pos.Valid() {
		return nil, model.NewInvalidPositionError()
	}

	owned, err := s.verifier.HasPurchased(ctx, touristID, tourID)
	if err != nil {
		// 確認自体の失敗も購入なしとして扱う
		s.logger.Warn("ownership verification failed",
			slog.Int64("tourist_id", touristID),
			slog.String("tour_id", tourID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNotPurchasedError(tourID)
	}
	if !owned {
		return nil, model.NewNotPurchasedError(tourID)
	}

	if _, err := s.getTour(ctx, tourID); err != nil {
		return nil, err
	}

	now := time.Now()
	exec := &model.TourExecution{
		ID:                 uuid.NewString(),
		TourID:             tourID,
		TouristID:          touristID,
		Status:             model.ExecutionStatusActive,
		StartTime:          now,
		LastActivityTime:   now,
		CurrentPosition:    pos,
		CompletedKeypoints: []model.CompletedKeypoint{},
	}

	result, created, err := s.execRepo.InsertActive(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("実行セッションの開始に失敗しました: %w", err)
	}

	if created {
		s.metrics.RecordExecutionStarted()
		s.logger.Info("tour execution started",
			slog.Int64("tourist_id", touristID),
			slog.String("tour_id", tourID),
			slog.String("execution_id", result.ID),
		)
	}

	return result, nil
}

// UpdatePosition はセッションの現在位置を更新し、キーポイント到達を判定する。
// 到達判定はツアー定義順で次に期待されるキーポイントに対してのみ行われる。
// 後方のキーポイントに物理的に近くても、順序を飛ばして到達扱いにはならない。
// 最後のキーポイントへの到達でセッションはcompletedへ遷移する。
func (s *Service) UpdatePosition(ctx context.Context, touristID int64, executionID string, pos model.Position) (*model.TourExecution, error) {
	if !pos.Valid() {
		return nil, model.NewInvalidPositionError()
	}

	exec, err := s.findActiveForTourist(ctx, touristID, executionID)
	if err != nil {
		return nil, err
	}

	// キーポイント判定に必要なツアー定義を先に取得し、
	// カタログに到達できない場合はセッションを変更せず中断する
	tour, err := s.getTour(ctx, exec.TourID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.execRepo.UpdatePosition(ctx, executionID, pos, now); err != nil {
		return nil, fmt.Errorf("現在位置の更新に失敗しました: %w", err)
	}

	// 次に期待されるキーポイント（到達済み集合は常に先頭からの連続）
	nextSeq := len(exec.CompletedKeypoints)
	if nextSeq < len(tour.Keypoints) {
		next := tour.Keypoints[nextSeq]
		if withinProximity(pos.Latitude, pos.Longitude, next.Latitude, next.Longitude) {
			inserted, err := s.execRepo.AppendCompletedKeypoint(ctx, executionID, &model.CompletedKeypoint{
				KeypointID:     next.ID,
				Seq:            nextSeq,
				CompletionTime: now,
			})
			if err != nil {
				return nil, fmt.Errorf("到達記録の保存に失敗しました: %w", err)
			}
			if inserted {
				s.metrics.RecordKeypointReached()
				s.logger.Info("keypoint reached",
					slog.String("execution_id", executionID),
					slog.String("keypoint_id", next.ID),
					slog.Int("seq", nextSeq),
				)

				// 最後のキーポイントなら完了へ遷移
				if nextSeq == len(tour.Keypoints)-1 {
					if _, err := s.execRepo.CompleteActive(ctx, executionID, now); err != nil {
						return nil, fmt.Errorf("セッション完了への遷移に失敗しました: %w", err)
					}
					s.metrics.RecordExecutionCompleted()
					s.logger.Info("tour execution completed",
						slog.Int64("tourist_id", touristID),
						slog.String("execution_id", executionID),
					)
				}
			}
		}
	}

	updated, err := s.execRepo.FindByIDForTourist(ctx, executionID, touristID)
	if err != nil {
		return nil, fmt.Errorf("実行セッションの再取得に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewExecutionNotFoundError(executionID)
	}
	return updated, nil
}

// Abandon はactiveなセッションを中断する。
// 終端状態のセッションは変更できず、completedがabandonedに
// 上書きされることはない。
func (s *Service) Abandon(ctx context.Context, touristID int64, executionID string) (*model.TourExecution, error) {
	if _, err := s.findActiveForTourist(ctx, touristID, executionID); err != nil {
		return nil, err
	}

	ok, err := s.execRepo.AbandonActive(ctx, executionID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("セッションの中断に失敗しました: %w", err)
	}
	if !ok {
		// 読み取りと更新の間に別の要求が終端状態へ遷移させたケース
		return nil, model.NewExecutionNotFoundError(executionID)
	}

	s.metrics.RecordExecutionAbandoned()
	s.logger.Info("tour execution abandoned",
		slog.Int64("tourist_id", touristID),
		slog.String("execution_id", executionID),
	)

	updated, err := s.execRepo.FindByIDForTourist(ctx, executionID, touristID)
	if err != nil {
		return nil, fmt.Errorf("実行セッションの再取得に失敗しました: %w", err)
	}
	return updated, nil
}

// Get は指定IDのセッションを返す。終端状態のセッションも参照できる。
// 存在しない、または他のツーリストのセッションはEXECUTION_NOT_FOUNDになる。
func (s *Service) Get(ctx context.Context, touristID int64, executionID string) (*model.TourExecution, error) {
	exec, err := s.execRepo.FindByIDForTourist(ctx, executionID, touristID)
	if err != nil {
		return nil, fmt.Errorf("実行セッションの取得に失敗しました: %w", err)
	}
	if exec == nil {
		return nil, model.NewExecutionNotFoundError(executionID)
	}
	return exec, nil
}

// findActiveForTourist は所有者が一致するactiveなセッションを取得する。
// 存在しない・他人のもの・終端状態のいずれもEXECUTION_NOT_FOUNDになる。
func (s *Service) findActiveForTourist(ctx context.Context, touristID int64, executionID string) (*model.TourExecution, error) {
	exec, err := s.execRepo.FindByIDForTourist(ctx, executionID, touristID)
	if err != nil {
		return nil, fmt.Errorf("実行セッションの取得に失敗しました: %w", err)
	}
	if exec == nil || exec.Status.Terminal() {
		return nil, model.NewExecutionNotFoundError(executionID)
	}
	return exec, nil
}

// getTour はカタログからツアー定義を取得し、エラーをAPIErrorへ変換する。
func (s *Service) getTour(ctx context.Context, tourID string) (*model.TourInfo, error) {
	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		if errors.Is(err, catalog.ErrTourNotFound) {
			return nil, model.NewTourNotFoundError(tourID)
		}
		if errors.Is(err, catalog.ErrUnavailable) {
			return nil, model.NewCatalogUnavailableError(err.Error())
		}
		return nil, fmt.Errorf("ツアー定義の取得に失敗しました: %w", err)
	}
	return tour, nil
}
