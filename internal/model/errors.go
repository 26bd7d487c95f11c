// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, conflict, auth, not_found, dependency, consistency, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTourNotPurchasable = "TOUR_NOT_PURCHASABLE"
	ErrCodeAlreadyInCart      = "ALREADY_IN_CART"
	ErrCodeCartItemNotFound   = "CART_ITEM_NOT_FOUND"
	ErrCodeCartEmpty          = "CART_EMPTY"
	ErrCodeTourUnavailable    = "TOUR_UNAVAILABLE"
	ErrCodePaymentFailed      = "PAYMENT_FAILED"
	ErrCodeConsistencyError   = "CONSISTENCY_ERROR"
	ErrCodeNotPurchased       = "NOT_PURCHASED"
	ErrCodeExecutionNotFound  = "EXECUTION_NOT_FOUND"
	ErrCodeCatalogUnavailable = "CATALOG_UNAVAILABLE"
	ErrCodeTourNotFound       = "TOUR_NOT_FOUND"
	ErrCodeInvalidPosition    = "INVALID_POSITION"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
)

// NewTourNotPurchasableError は非公開ツアーをかごに追加しようとした場合のエラーを生成する。
func NewTourNotPurchasableError(tourID string) *APIError {
	return &APIError{
		Code:     ErrCodeTourNotPurchasable,
		Message:  fmt.Sprintf("このツアーは購入できません: %s", tourID),
		Category: "validation",
		Action:   "公開中（published）のツアーのみ購入できます。",
	}
}

// NewAlreadyInCartError は同一ツアーの二重追加エラーを生成する。
func NewAlreadyInCartError(tourID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInCart,
		Message:  fmt.Sprintf("このツアーは既にかごに入っています: %s", tourID),
		Category: "conflict",
		Action:   "かごの内容を確認してください。",
	}
}

// NewCartItemNotFoundError はかごに存在しないツアーの削除エラーを生成する。
func NewCartItemNotFoundError(tourID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartItemNotFound,
		Message:  fmt.Sprintf("このツアーはかごに入っていません: %s", tourID),
		Category: "validation",
		Action:   "かごの内容を確認してください。",
	}
}

// NewCartEmptyError は空のかごに対するチェックアウトエラーを生成する。
func NewCartEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeCartEmpty,
		Message:  "かごが空です。",
		Category: "validation",
		Action:   "ツアーをかごに追加してからチェックアウトしてください。",
	}
}

// NewTourUnavailableError はチェックアウト時の再検証で非公開になっていた
// ツアーのエラーを生成する。決済前に検出されるため副作用はない。
func NewTourUnavailableError(tourName string) *APIError {
	return &APIError{
		Code:     ErrCodeTourUnavailable,
		Message:  fmt.Sprintf("ツアー「%s」は現在購入できなくなっています。", tourName),
		Category: "validation",
		Action:   "該当ツアーをかごから削除して再度チェックアウトしてください。",
	}
}

// NewPaymentFailedError は決済失敗エラーを生成する。
func NewPaymentFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentFailed,
		Message:  fmt.Sprintf("決済処理に失敗しました: %s", reason),
		Category: "dependency",
		Action:   "しばらく待ってから再度お試しください。請求は発生していません。",
	}
}

// NewConsistencyError は決済確定後のローカル永続化失敗エラーを生成する。
// refundedは補償アクション（返金）が成功したかどうかを示す。
// 返金も失敗した場合のみ手動での照合が必要になるため、メッセージで区別する。
func NewConsistencyError(refunded bool) *APIError {
	msg := "決済は完了しましたが購入記録の保存に失敗したため、返金を実施しました。"
	action := "請求は取り消されています。再度チェックアウトしてください。"
	if !refunded {
		msg = "決済は完了しましたが購入記録の保存に失敗し、返金の試行も失敗しました。"
		action = "サポートに連絡してください。手動での照合が必要です。"
	}
	return &APIError{
		Code:     ErrCodeConsistencyError,
		Message:  msg,
		Category: "consistency",
		Action:   action,
	}
}

// NewNotPurchasedError は所有権確認に失敗した場合のエラーを生成する。
// 確認自体が失敗した場合もフェイルクローズで同じエラーになる。
func NewNotPurchasedError(tourID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotPurchased,
		Message:  fmt.Sprintf("このツアーの購入が確認できませんでした: %s", tourID),
		Category: "auth",
		Action:   "ツアーを購入してから開始してください。",
	}
}

// NewExecutionNotFoundError は実行セッションが存在しない、終端状態、
// または他のツーリストが所有している場合のエラーを生成する。
func NewExecutionNotFoundError(executionID string) *APIError {
	return &APIError{
		Code:     ErrCodeExecutionNotFound,
		Message:  fmt.Sprintf("アクティブなツアー実行セッションが見つかりません: %s", executionID),
		Category: "not_found",
		Action:   "セッションIDを確認してください。",
	}
}

// NewCatalogUnavailableError はカタログサービスへの到達失敗エラーを生成する。
func NewCatalogUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  fmt.Sprintf("ツアーカタログサービスに接続できませんでした: %s", reason),
		Category: "dependency",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewTourNotFoundError はカタログにツアーが存在しない場合のエラーを生成する。
func NewTourNotFoundError(tourID string) *APIError {
	return &APIError{
		Code:     ErrCodeTourNotFound,
		Message:  fmt.Sprintf("指定されたツアーが見つかりません: %s", tourID),
		Category: "validation",
		Action:   "ツアーIDを確認してください。",
	}
}

// NewInvalidPositionError は緯度経度が範囲外の場合のエラーを生成する。
func NewInvalidPositionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPosition,
		Message:  "位置情報が不正です。",
		Category: "validation",
		Action:   "緯度は-90〜90、経度は-180〜180の範囲で指定してください。",
	}
}

// NewUnauthorizedError は認証されていない呼び出しのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
