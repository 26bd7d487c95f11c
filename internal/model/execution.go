// Package model はドメインモデルを定義する。
package model

import "time"

// ExecutionStatus はツアー実行セッションの状態を表す。
// 遷移は一方向のみ: active → completed、active → abandoned。
// 終端状態のセッションは以後一切変更されない。
type ExecutionStatus string

const (
	// ExecutionStatusActive は実行中のセッション。
	ExecutionStatusActive ExecutionStatus = "active"
	// ExecutionStatusCompleted は全キーポイント到達により完了したセッション。
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusAbandoned はツーリストが中断したセッション。
	ExecutionStatusAbandoned ExecutionStatus = "abandoned"
)

// Terminal は終端状態（completed / abandoned）かどうかを返す。
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusAbandoned
}

// Position はWGS-84度単位の位置を表す。
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid は緯度経度が有効範囲内かどうかを返す。
func (p Position) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// CompletedKeypoint は到達済みキーポイントの記録を表す。
// セッションごとに追記専用で、その集合は常にツアー定義順の先頭からの
// 連続した並び（プレフィックス）になる。
type CompletedKeypoint struct {
	KeypointID     string
	Seq            int // ツアー定義順の位置（0始まり）
	CompletionTime time.Time
}

// TourExecution は1人のツーリストが1つのツアーを歩いている
// ライブ状態（実行セッション）を表す。
// (touristID, tourID) の組につきactiveなセッションは常に最大1つ。
type TourExecution struct {
	ID                 string
	TourID             string
	TouristID          int64
	Status             ExecutionStatus
	StartTime          time.Time
	EndTime            *time.Time
	LastActivityTime   time.Time
	CurrentPosition    Position
	CompletedKeypoints []CompletedKeypoint
}

// TouristPosition はツーリストの最終既知位置を表す。
type TouristPosition struct {
	TouristID   int64
	Latitude    float64
	Longitude   float64
	LastUpdated time.Time
}
