// Package checkout はチェックアウトのサーガ（補償付き多段トランザクション）を提供する。
//
// チェックアウトは「検証 → 決済 → 永続化」の3ステップで進行する。
// 決済より前のステップの失敗は副作用ゼロで中断でき、
// 決済後の永続化失敗は返金という補償アクションで巻き戻す。
// 唯一の原子的コミット点はトークン作成とかご全削除の単一DBトランザクションである。
package checkout

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
	"github.com/hitoshi/tourman/internal/payment"
	"github.com/hitoshi/tourman/internal/repository"
)

// ステップ名。メトリクスのラベルとログに使用する。
const (
	stepValidate = "validate"
	stepPayment  = "payment"
	stepPersist  = "persist"
)

// TourCatalog はツアー定義の取得インターフェース。
type TourCatalog interface {
	GetTour(ctx context.Context, tourID string) (*model.TourInfo, error)
}

// Service はチェックアウトのサービス層。
// 同一ツーリストのチェックアウトはツーリスト単位のロックで直列化される。
type Service struct {
	cartRepo       repository.CartRepository
	purchaseRepo   repository.PurchaseRepository
	catalog        TourCatalog
	gateway        payment.Gateway
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	locker         *touristLocker
	paymentTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	cartRepo repository.CartRepository,
	purchaseRepo repository.PurchaseRepository,
	tourCatalog TourCatalog,
	gateway payment.Gateway,
	collector metrics.MetricsCollector,
	paymentTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		cartRepo:       cartRepo,
		purchaseRepo:   purchaseRepo,
		catalog:        tourCatalog,
		gateway:        gateway,
		metrics:        collector,
		logger:         logger,
		locker:         newTouristLocker(),
		paymentTimeout: paymentTimeout,
	}
}

// sagaState はサーガの実行中状態。ステップ間の受け渡しに使用する。
type sagaState struct {
	touristID     int64
	cart          *model.Cart
	transactionID string
	tokens        []*model.PurchaseToken
	refunded      bool
}

// sagaStep はサーガの1ステップ。compensateがnilのステップは補償を持たない。
type sagaStep struct {
	name       string
	run        func(ctx context.Context, st *sagaState) error
	compensate func(ctx context.Context, st *sagaState) error
}

// Checkout はかご全体を単一の販売として購入する。
// 成功時は作成された購入トークン群を返し、かごは空になっている。
// 失敗時はステップに応じたエラーを返す。決済前の失敗に副作用はなく、
// 決済後の永続化失敗は返金を試みたうえでCONSISTENCY_ERRORを返す。
func (s *Service) Checkout(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error) {
	s.locker.Lock(touristID)
	defer s.locker.Unlock(touristID)

	start := time.Now()
	defer func() {
		s.metrics.RecordCheckoutLatency(time.Since(start))
	}()

	st := &sagaState{touristID: touristID}

	steps := []sagaStep{
		{name: stepValidate, run: s.runValidate},
		{name: stepPayment, run: s.runPayment, compensate: s.compensatePayment},
		{name: stepPersist, run: s.runPersist},
	}

	for i, step := range steps {
		if err := step.run(ctx, st); err != nil {
			s.metrics.RecordCheckoutFailure(step.name)
			s.logger.Warn("checkout step failed",
				slog.Int64("tourist_id", touristID),
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)

			// 完了済みステップを逆順に補償する
			s.compensate(ctx, st, steps[:i])

			// 永続化失敗は補償の結果（返金の成否）を含むエラーに変換する
			if step.name == stepPersist {
				return nil, model.NewConsistencyError(st.refunded)
			}
			return nil, err
		}
	}

	s.metrics.RecordCheckoutSuccess()
	s.logger.Info("checkout completed",
		slog.Int64("tourist_id", touristID),
		slog.Int("token_count", len(st.tokens)),
		slog.Float64("total", st.cart.Total()),
	)

	return st.tokens, nil
}

// compensate は完了済みステップの補償アクションを逆順に実行する。
func (s *Service) compensate(ctx context.Context, st *sagaState, completed []sagaStep) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx, st); err != nil {
			s.logger.Error("checkout compensation failed",
				slog.Int64("tourist_id", st.touristID),
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runValidate はかごを読み込み、全ツアーをカタログで再検証する。
// かご追加時点の検証は古くなっている可能性があるため、
// 決済前に必ず最新の公開状態を確認する。このステップに副作用はない。
func (s *Service) runValidate(ctx context.Context, st *sagaState) error {
	cart, err := s.cartRepo.FindByTouristID(ctx, st.touristID)
	if err != nil {
		return fmt.Errorf("かごの取得に失敗しました: %w", err)
	}
	if len(cart.Items) == 0 {
		// 直前のチェックアウトが成功していればかごは空になっており、
		// 再送されたリクエストはここで二重決済に至らず終了する
		return model.NewCartEmptyError()
	}
	st.cart = cart

	for _, item := range cart.Items {
		tour, err := s.catalog.GetTour(ctx, item.TourID)
		if err != nil {
			if errors.Is(err, catalog.ErrTourNotFound) {
				return model.NewTourUnavailableError(item.Name)
			}
			if errors.Is(err, catalog.ErrUnavailable) {
				return model.NewCatalogUnavailableError(err.Error())
			}
			return fmt.Errorf("ツアー再検証に失敗しました: %w", err)
		}
		if !tour.Purchasable() {
			return model.NewTourUnavailableError(item.Name)
		}
	}

	return nil
}

// runPayment はかごの合計金額を1回の決済として請求する。
func (s *Service) runPayment(ctx context.Context, st *sagaState) error {
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	txID, err := s.gateway.Capture(payCtx, st.touristID, st.cart.Total())
	if err != nil {
		return model.NewPaymentFailedError(err.Error())
	}
	st.transactionID = txID
	return nil
}

// compensatePayment は確定済みの決済を返金する。
// 返金の成否はsagaStateに記録され、最終エラーのメッセージに反映される。
func (s *Service) compensatePayment(ctx context.Context, st *sagaState) error {
	err := s.gateway.Refund(ctx, st.transactionID)
	st.refunded = err == nil
	s.metrics.RecordCheckoutCompensation(st.refunded)
	if err != nil {
		return fmt.Errorf("返金に失敗しました: %w", err)
	}
	return nil
}

// runPersist はかごの全アイテムのトークンを作成し、かごを空にする。
// 両方が単一DBトランザクションで行われるサーガの原子的コミット点。
func (s *Service) runPersist(ctx context.Context, st *sagaState) error {
	now := time.Now()
	tokens := make([]*model.PurchaseToken, len(st.cart.Items))
	for i, item := range st.cart.Items {
		tokens[i] = &model.PurchaseToken{
			ID:           uuid.NewString(),
			TouristID:    st.touristID,
			TourID:       item.TourID,
			PurchaseTime: now,
		}
	}

	if err := s.purchaseRepo.CreateTokensAndClearCart(ctx, st.touristID, tokens); err != nil {
		return fmt.Errorf("購入記録の保存に失敗しました: %w", err)
	}
	st.tokens = tokens
	return nil
}
