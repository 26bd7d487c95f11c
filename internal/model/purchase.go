// Package model はドメインモデルを定義する。
package model

import "time"

// PurchaseToken はツーリストがツアーを所有する唯一の証明を表す。
// チェックアウト成功の原子的な副作用としてのみ作成され、以後不変。
type PurchaseToken struct {
	ID           string
	TouristID    int64
	TourID       string
	PurchaseTime time.Time
}
