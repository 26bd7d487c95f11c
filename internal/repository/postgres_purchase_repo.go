package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tourman/internal/model"
)

// PostgresPurchaseRepo はPostgreSQLを使用した購入トークンリポジトリ。
type PostgresPurchaseRepo struct {
	db *sql.DB
}

// NewPostgresPurchaseRepo はPostgresPurchaseRepoを生成する。
func NewPostgresPurchaseRepo(db *sql.DB) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// CreateTokensAndClearCart はトークン群の作成とかごの全削除を
// 同一トランザクションで実行する。どちらか一方だけが成立することはない。
func (r *PostgresPurchaseRepo) CreateTokensAndClearCart(ctx context.Context, touristID int64, tokens []*model.PurchaseToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, token := range tokens {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO purchase_tokens (id, tourist_id, tour_id, purchase_time)
			 VALUES ($1, $2, $3, $4)`,
			token.ID, token.TouristID, token.TourID, token.PurchaseTime,
		)
		if err != nil {
			return fmt.Errorf("購入トークンの作成に失敗しました: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE tourist_id = $1`,
		touristID,
	)
	if err != nil {
		return fmt.Errorf("かごの全削除に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE carts SET updated_at = now() WHERE tourist_id = $1`,
		touristID,
	)
	if err != nil {
		return fmt.Errorf("かごの更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByTourist は指定ツーリストの全トークンを購入日時降順で返す。
func (r *PostgresPurchaseRepo) ListByTourist(ctx context.Context, touristID int64) ([]*model.PurchaseToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tourist_id, tour_id, purchase_time
		 FROM purchase_tokens
		 WHERE tourist_id = $1
		 ORDER BY purchase_time DESC`,
		touristID,
	)
	if err != nil {
		return nil, fmt.Errorf("購入トークン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tokens := []*model.PurchaseToken{}
	for rows.Next() {
		token := &model.PurchaseToken{}
		if err := rows.Scan(&token.ID, &token.TouristID, &token.TourID, &token.PurchaseTime); err != nil {
			return nil, fmt.Errorf("購入トークンの読み取りに失敗しました: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購入トークンの走査に失敗しました: %w", err)
	}

	return tokens, nil
}

// HasPurchased は指定ツーリストが指定ツアーのトークンを保有するかを返す。
func (r *PostgresPurchaseRepo) HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM purchase_tokens WHERE tourist_id = $1 AND tour_id = $2
		 )`,
		touristID, tourID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("購入トークンの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ PurchaseRepository = (*PostgresPurchaseRepo)(nil)
