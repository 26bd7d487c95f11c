package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tourman/internal/model"
)

// PostgresPositionRepo はPostgreSQLを使用したツーリスト位置リポジトリ。
type PostgresPositionRepo struct {
	db *sql.DB
}

// NewPostgresPositionRepo はPostgresPositionRepoを生成する。
func NewPostgresPositionRepo(db *sql.DB) *PostgresPositionRepo {
	return &PostgresPositionRepo{db: db}
}

// FindByTouristID は指定ツーリストの位置を取得する。見つからない場合はnilを返す。
func (r *PostgresPositionRepo) FindByTouristID(ctx context.Context, touristID int64) (*model.TouristPosition, error) {
	pos := &model.TouristPosition{}

	err := r.db.QueryRowContext(ctx,
		`SELECT tourist_id, latitude, longitude, last_updated
		 FROM tourist_positions
		 WHERE tourist_id = $1`,
		touristID,
	).Scan(&pos.TouristID, &pos.Latitude, &pos.Longitude, &pos.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ツーリスト位置の取得に失敗しました: %w", err)
	}

	return pos, nil
}

// Upsert は位置を冪等にUPSERTする。
func (r *PostgresPositionRepo) Upsert(ctx context.Context, pos *model.TouristPosition) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tourist_positions (tourist_id, latitude, longitude, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tourist_id) DO UPDATE
		 SET latitude = $2, longitude = $3, last_updated = $4`,
		pos.TouristID, pos.Latitude, pos.Longitude, pos.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("ツーリスト位置の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PositionRepository = (*PostgresPositionRepo)(nil)
