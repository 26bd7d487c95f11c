// Package model はドメインモデルを定義する。
package model

// TourStatus はカタログ上のツアーの公開状態を表す。
type TourStatus string

const (
	// TourStatusDraft は下書き状態。購入不可。
	TourStatusDraft TourStatus = "draft"
	// TourStatusPublished は公開状態。購入可能な唯一の状態。
	TourStatusPublished TourStatus = "published"
	// TourStatusArchived はアーカイブ済み状態。購入不可。
	TourStatusArchived TourStatus = "archived"
)

// TourInfo はカタログコラボレーターから取得するツアー情報を表す。
// カタログは読み取り専用の外部サービスであり、本サービスはツアーを所有しない。
type TourInfo struct {
	ID        string
	Name      string
	Price     float64
	Status    TourStatus
	Keypoints []Keypoint // ツアー定義順
}

// Keypoint はツアーに属する地理的な経由地点を表す。
// ツアー定義順に訪問される。
type Keypoint struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
}

// Purchasable はツアーが購入可能かどうかを返す。
func (t *TourInfo) Purchasable() bool {
	return t.Status == TourStatusPublished
}
