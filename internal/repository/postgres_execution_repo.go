package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tourman/internal/model"
)

// PostgresExecutionRepo はPostgreSQLを使用したツアー実行セッションリポジトリ。
// activeセッションの一意性はtour_executionsの部分ユニークインデックス
// （(tourist_id, tour_id) WHERE status = 'active'）に依存する。
type PostgresExecutionRepo struct {
	db *sql.DB
}

// NewPostgresExecutionRepo はPostgresExecutionRepoを生成する。
func NewPostgresExecutionRepo(db *sql.DB) *PostgresExecutionRepo {
	return &PostgresExecutionRepo{db: db}
}

// InsertActive はactiveセッションの条件付き挿入を行う。
// 同一(tourist_id, tour_id)のactiveセッションが既に存在する場合は
// ON CONFLICT DO NOTHINGにより挿入されず、既存セッションを取得して返す。
// 並行する2つの開始要求が両方成功することはない。
func (r *PostgresExecutionRepo) InsertActive(ctx context.Context, exec *model.TourExecution) (*model.TourExecution, bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tour_executions
		    (id, tour_id, tourist_id, status, start_time, last_activity_time, current_lat, current_lng)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tourist_id, tour_id) WHERE status = 'active' DO NOTHING`,
		exec.ID, exec.TourID, exec.TouristID, exec.Status,
		exec.StartTime, exec.LastActivityTime,
		exec.CurrentPosition.Latitude, exec.CurrentPosition.Longitude,
	)
	if err != nil {
		return nil, false, fmt.Errorf("実行セッションの作成に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("挿入結果の確認に失敗しました: %w", err)
	}
	if affected > 0 {
		return exec, true, nil
	}

	// 挿入されなかった場合は既存のactiveセッションを返す
	existing, err := r.findActiveByTouristAndTour(ctx, exec.TouristID, exec.TourID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// 競合相手が直後に完了/中断した稀なケース。呼び出し側でリトライさせる。
		return nil, false, fmt.Errorf("実行セッションの作成が競合しました")
	}
	return existing, false, nil
}

// FindByIDForTourist は指定IDのセッションを到達済みキーポイント付きで取得する。
// 所有者の一致をWHERE句で強制するため、他人のセッションは存在しないのと同じ扱いになる。
func (r *PostgresExecutionRepo) FindByIDForTourist(ctx context.Context, executionID string, touristID int64) (*model.TourExecution, error) {
	exec := &model.TourExecution{}
	var endTime sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tour_id, tourist_id, status, start_time, end_time,
		        last_activity_time, current_lat, current_lng
		 FROM tour_executions
		 WHERE id = $1 AND tourist_id = $2`,
		executionID, touristID,
	).Scan(
		&exec.ID, &exec.TourID, &exec.TouristID, &exec.Status,
		&exec.StartTime, &endTime, &exec.LastActivityTime,
		&exec.CurrentPosition.Latitude, &exec.CurrentPosition.Longitude,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("実行セッションの取得に失敗しました: %w", err)
	}

	if endTime.Valid {
		exec.EndTime = &endTime.Time
	}

	keypoints, err := r.listCompletedKeypoints(ctx, executionID)
	if err != nil {
		return nil, err
	}
	exec.CompletedKeypoints = keypoints

	return exec, nil
}

// AppendCompletedKeypoint は到達記録を条件付きで追記する。
// 複合PK (execution_id, keypoint_id) によりON CONFLICT DO NOTHINGが
// 「未登録の場合のみ追記」を1文で表現する。
func (r *PostgresExecutionRepo) AppendCompletedKeypoint(ctx context.Context, executionID string, kp *model.CompletedKeypoint) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO completed_keypoints (execution_id, keypoint_id, seq, completion_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (execution_id, keypoint_id) DO NOTHING`,
		executionID, kp.KeypointID, kp.Seq, kp.CompletionTime,
	)
	if err != nil {
		return false, fmt.Errorf("到達記録の追記に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("追記結果の確認に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// UpdatePosition はactiveなセッションの現在位置と最終活動時刻を更新する。
func (r *PostgresExecutionRepo) UpdatePosition(ctx context.Context, executionID string, pos model.Position, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tour_executions
		 SET current_lat = $2, current_lng = $3, last_activity_time = $4
		 WHERE id = $1 AND status = 'active'`,
		executionID, pos.Latitude, pos.Longitude, at,
	)
	if err != nil {
		return fmt.Errorf("現在位置の更新に失敗しました: %w", err)
	}
	return nil
}

// CompleteActive はactiveなセッションをcompletedに遷移させる。
func (r *PostgresExecutionRepo) CompleteActive(ctx context.Context, executionID string, at time.Time) (bool, error) {
	return r.transitionActive(ctx, executionID, model.ExecutionStatusCompleted, at)
}

// AbandonActive はactiveなセッションをabandonedに遷移させる。
// WHERE status = 'active' により、completedなセッションを上書きすることはできない。
func (r *PostgresExecutionRepo) AbandonActive(ctx context.Context, executionID string, at time.Time) (bool, error) {
	return r.transitionActive(ctx, executionID, model.ExecutionStatusAbandoned, at)
}

// transitionActive はactiveなセッションを終端状態に遷移させる。
// 条件付きUPDATEにより、状態遷移は一方向（active → 終端）に限定される。
func (r *PostgresExecutionRepo) transitionActive(ctx context.Context, executionID string, status model.ExecutionStatus, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tour_executions
		 SET status = $2, end_time = $3, last_activity_time = $3
		 WHERE id = $1 AND status = 'active'`,
		executionID, status, at,
	)
	if err != nil {
		return false, fmt.Errorf("セッション状態の遷移に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("遷移結果の確認に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// findActiveByTouristAndTour は(tourist_id, tour_id)のactiveセッションを取得する。
func (r *PostgresExecutionRepo) findActiveByTouristAndTour(ctx context.Context, touristID int64, tourID string) (*model.TourExecution, error) {
	exec := &model.TourExecution{}
	var endTime sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tour_id, tourist_id, status, start_time, end_time,
		        last_activity_time, current_lat, current_lng
		 FROM tour_executions
		 WHERE tourist_id = $1 AND tour_id = $2 AND status = 'active'`,
		touristID, tourID,
	).Scan(
		&exec.ID, &exec.TourID, &exec.TouristID, &exec.Status,
		&exec.StartTime, &endTime, &exec.LastActivityTime,
		&exec.CurrentPosition.Latitude, &exec.CurrentPosition.Longitude,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("activeセッションの取得に失敗しました: %w", err)
	}

	if endTime.Valid {
		exec.EndTime = &endTime.Time
	}

	keypoints, err := r.listCompletedKeypoints(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	exec.CompletedKeypoints = keypoints

	return exec, nil
}

// listCompletedKeypoints はセッションの到達済みキーポイントをツアー定義順で返す。
func (r *PostgresExecutionRepo) listCompletedKeypoints(ctx context.Context, executionID string) ([]model.CompletedKeypoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT keypoint_id, seq, completion_time
		 FROM completed_keypoints
		 WHERE execution_id = $1
		 ORDER BY seq ASC`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("到達記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	keypoints := []model.CompletedKeypoint{}
	for rows.Next() {
		var kp model.CompletedKeypoint
		if err := rows.Scan(&kp.KeypointID, &kp.Seq, &kp.CompletionTime); err != nil {
			return nil, fmt.Errorf("到達記録の読み取りに失敗しました: %w", err)
		}
		keypoints = append(keypoints, kp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("到達記録の走査に失敗しました: %w", err)
	}

	return keypoints, nil
}

// compile-time interface check
var _ ExecutionRepository = (*PostgresExecutionRepo)(nil)
