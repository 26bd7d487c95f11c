// Package model はドメインモデルを定義する。
package model

import "time"

// Cart は1人のツーリストの買い物かごを表す。
// ツーリストごとに最大1つ存在し、最初の追加時に遅延作成される。
// チェックアウト成功時に空になる。
type Cart struct {
	TouristID int64
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem はかご内の1ツアーを表す。
// 同一ツアーはかごに1つまで（DBのユニーク制約で保証される）。
type CartItem struct {
	ID        string
	TourID    string
	Name      string
	Price     float64
	CreatedAt time.Time
}

// Total はかご内の合計金額を返す。
func (c *Cart) Total() float64 {
	var sum float64
	for _, item := range c.Items {
		sum += item.Price
	}
	return sum
}

// EmptyCart は空のかご構造を返す。
// GetCartはかごが存在しない場合でもエラーではなくこれを返す。
func EmptyCart(touristID int64) *Cart {
	return &Cart{TouristID: touristID, Items: []CartItem{}}
}
