// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// HTTP層ではCodeからステータスコードを決定し、Messageをレスポンスのmessageに設定する。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeMemberNotFound = "MEMBER_NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: fmt.Sprintf("リクエストが不正です: %s", reason),
	}
}

// NewMemberNotFoundError はメンバーが見つからない場合のエラーを生成する。
func NewMemberNotFoundError(memberID int64) *APIError {
	return &APIError{
		Code:    ErrCodeMemberNotFound,
		Message: fmt.Sprintf("指定されたメンバーが見つかりません: %d", memberID),
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "認証が必要です。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "リクエストが多すぎます。しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "内部エラーが発生しました。",
	}
}
