// Package auth はIDトークンの検証を提供する。
// 署名鍵でローカルに検証するTokenVerifierと、検証エンドポイントへ問い合わせる
// RemoteVerifierを同じVerifierインターフェースの実装として切り替えられる。
package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/souvenir/internal/model"
)

// Reason は検証失敗の分類。ログとメトリクスにのみ使用し、利用者には表示しない。
type Reason string

const (
	// ReasonNetworkError は検証先への通信に失敗したことを示す。
	ReasonNetworkError Reason = "network_error"
	// ReasonInvalidResponse は検証先の応答が想定外の形式だったことを示す。
	ReasonInvalidResponse Reason = "invalid_response"
	// ReasonUnauthorized はトークンが無効・期限切れであることを示す。
	ReasonUnauthorized Reason = "unauthorized"
)

// VerifyError はトークン検証の失敗を表す。
type VerifyError struct {
	Reason Reason
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *VerifyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("token verification failed: %s: %v", e.Reason, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Verifier はIDトークンを検証し、デコード済みクレームを返すインターフェース。
// 失敗時は *VerifyError を返す。
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.Claims, error)
}

func newVerifyError(reason Reason, format string, args ...any) *VerifyError {
	return &VerifyError{Reason: reason, Err: fmt.Errorf(format, args...)}
}
