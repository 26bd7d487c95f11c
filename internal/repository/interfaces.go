// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/tourman/internal/model"
)

// CartRepository は買い物かごデータの永続化インターフェース。
type CartRepository interface {
	// FindByTouristID は指定ツーリストのかごを取得する。
	// かごが存在しない場合は空のかごを返す（エラーにしない）。
	FindByTouristID(ctx context.Context, touristID int64) (*model.Cart, error)

	// AddItem はかごにツアーを追加する。かごが未作成なら同時に作成する。
	// 同一ツアーがすでに存在する場合はErrDuplicateItemを返す。
	AddItem(ctx context.Context, touristID int64, item *model.CartItem) error

	// RemoveItem はかごから指定ツアーを削除する。
	// 該当アイテムが存在しない場合はErrItemNotFoundを返す。
	RemoveItem(ctx context.Context, touristID int64, tourID string) error
}

// PurchaseRepository は購入トークンの永続化インターフェース。
type PurchaseRepository interface {
	// CreateTokensAndClearCart はトークン群の作成とかごの全削除を
	// 同一トランザクションで実行する。チェックアウトの原子的コミット点。
	CreateTokensAndClearCart(ctx context.Context, touristID int64, tokens []*model.PurchaseToken) error

	// ListByTourist は指定ツーリストの全トークンを購入日時降順で返す。
	ListByTourist(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error)

	// HasPurchased は指定ツーリストが指定ツアーのトークンを保有するかを返す。
	HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error)
}

// ExecutionRepository はツアー実行セッションの永続化インターフェース。
// 並行安全性はアプリ層のcheck-then-actではなくストア層の
// 条件付き挿入・条件付き更新で保証する。
type ExecutionRepository interface {
	// InsertActive はactiveセッションの条件付き挿入を行う。
	// (tourist_id, tour_id) にactiveなセッションが既に存在する場合は
	// 挿入せず既存セッションを返す（created=false）。
	InsertActive(ctx context.Context, exec *model.TourExecution) (result *model.TourExecution, created bool, err error)

	// FindByIDForTourist は指定IDのセッションを到達済みキーポイント付きで取得する。
	// 見つからない場合、または所有者が一致しない場合はnilを返す。
	FindByIDForTourist(ctx context.Context, executionID string, touristID int64) (*model.TourExecution, error)

	// AppendCompletedKeypoint は到達記録を条件付きで追記する。
	// 既に記録済みの場合は何もせずinserted=falseを返す。
	AppendCompletedKeypoint(ctx context.Context, executionID string, kp *model.CompletedKeypoint) (inserted bool, err error)

	// UpdatePosition はactiveなセッションの現在位置と最終活動時刻を更新する。
	UpdatePosition(ctx context.Context, executionID string, pos model.Position, at time.Time) error

	// CompleteActive はactiveなセッションをcompletedに遷移させる。
	// 既に終端状態の場合は更新せずfalseを返す。
	CompleteActive(ctx context.Context, executionID string, at time.Time) (bool, error)

	// AbandonActive はactiveなセッションをabandonedに遷移させる。
	// 既に終端状態の場合は更新せずfalseを返す。
	AbandonActive(ctx context.Context, executionID string, at time.Time) (bool, error)
}

// PositionRepository はツーリスト最終既知位置の永続化インターフェース。
type PositionRepository interface {
	// FindByTouristID は指定ツーリストの位置を取得する。見つからない場合はnilを返す。
	FindByTouristID(ctx context.Context, touristID int64) (*model.TouristPosition, error)

	// Upsert は位置を冪等にUPSERTする。
	Upsert(ctx context.Context, pos *model.TouristPosition) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
