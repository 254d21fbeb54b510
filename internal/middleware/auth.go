// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/socialfeed/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// memberIDContextKey はリクエストコンテキストにメンバーIDを格納するためのキー。
var memberIDContextKey = contextKey("member_id")

var memberHolderContextKey = contextKey("member_holder")

// memberHolder は外側のミドルウェアへ認証結果を返すための入れ物。
// 1リクエスト内でのみ使われる。
type memberHolder struct {
	memberID int64
}

func withMemberHolder(ctx context.Context, h *memberHolder) context.Context {
	return context.WithValue(ctx, memberHolderContextKey, h)
}

func memberHolderFromContext(ctx context.Context) *memberHolder {
	h, _ := ctx.Value(memberHolderContextKey).(*memberHolder)
	return h
}

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// auth.HMACTokenServiceが満たす。
type TokenVerifier interface {
	Verify(tokenString string) (int64, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みメンバーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または不正な場合は401 Unauthorizedを返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			memberID, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("bearer token rejected",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if holder := memberHolderFromContext(r.Context()); holder != nil {
				holder.memberID = memberID
			}

			next.ServeHTTP(w, r.WithContext(ContextWithMemberID(r.Context(), memberID)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MemberIDFromContext はリクエストコンテキストからメンバーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func MemberIDFromContext(ctx context.Context) (int64, error) {
	memberID, ok := ctx.Value(memberIDContextKey).(int64)
	if !ok || memberID <= 0 {
		return 0, fmt.Errorf("member ID not found in context")
	}
	return memberID, nil
}

// ContextWithMemberID はコンテキストにメンバーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithMemberID(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, memberIDContextKey, memberID)
}
