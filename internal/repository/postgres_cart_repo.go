package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/tourman/internal/model"
)

// PostgresCartRepo はPostgreSQLを使用した買い物かごリポジトリ。
type PostgresCartRepo struct {
	db *sql.DB
}

// NewPostgresCartRepo はPostgresCartRepoを生成する。
func NewPostgresCartRepo(db *sql.DB) *PostgresCartRepo {
	return &PostgresCartRepo{db: db}
}

// FindByTouristID は指定ツーリストのかごを取得する。
// かごが存在しない場合は空のかごを返す。
func (r *PostgresCartRepo) FindByTouristID(ctx context.Context, touristID int64) (*model.Cart, error) {
	cart := &model.Cart{TouristID: touristID, Items: []model.CartItem{}}

	err := r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM carts WHERE tourist_id = $1`,
		touristID,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)

	if err == sql.ErrNoRows {
		return model.EmptyCart(touristID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("かごの取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tour_id, name, price, created_at
		 FROM cart_items
		 WHERE tourist_id = $1
		 ORDER BY created_at ASC`,
		touristID,
	)
	if err != nil {
		return nil, fmt.Errorf("かごアイテムの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.TourID, &item.Name, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("かごアイテムの読み取りに失敗しました: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("かごアイテムの走査に失敗しました: %w", err)
	}

	return cart, nil
}

// AddItem はかごにツアーを追加する。かごが未作成なら同時に作成する。
// cart_itemsの(tourist_id, tour_id)ユニーク制約違反はErrDuplicateItemに変換する。
func (r *PostgresCartRepo) AddItem(ctx context.Context, touristID int64, item *model.CartItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO carts (tourist_id, created_at, updated_at)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (tourist_id) DO UPDATE SET updated_at = $2`,
		touristID, now,
	)
	if err != nil {
		return fmt.Errorf("かごの作成に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_items (id, tourist_id, tour_id, name, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, touristID, item.TourID, item.Name, item.Price, item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateItem
		}
		return fmt.Errorf("かごアイテムの追加に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// RemoveItem はかごから指定ツアーを削除する。
func (r *PostgresCartRepo) RemoveItem(ctx context.Context, touristID int64, tourID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE tourist_id = $1 AND tour_id = $2`,
		touristID, tourID,
	)
	if err != nil {
		return fmt.Errorf("かごアイテムの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE carts SET updated_at = now() WHERE tourist_id = $1`,
		touristID,
	)
	if err != nil {
		return fmt.Errorf("かごの更新に失敗しました: %w", err)
	}
	return nil
}

// isUniqueViolation はPostgreSQLのユニーク制約違反（SQLSTATE 23505）かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// compile-time interface check
var _ CartRepository = (*PostgresCartRepo)(nil)
