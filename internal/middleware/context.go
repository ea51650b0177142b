// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/souvenir/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// requestIDContextKey はリクエストIDを格納するためのキー。
	requestIDContextKey = contextKey("request_id")
)

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ゲートでトークン検証を通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// CredentialFromRequest はCookieからセッション資格情報を読み取る。
// Cookieが無い場合はゼロ値を返す。
func CredentialFromRequest(r *http.Request) model.Credential {
	var cred model.Credential
	if c, err := r.Cookie(model.CookieIDToken); err == nil {
		cred.IDToken = c.Value
	}
	if c, err := r.Cookie(model.CookieUserID); err == nil {
		cred.UserID = c.Value
	}
	return cred
}
