// Package catalog はドメインAPI（マーケット、販売者、商品、カート、レビュー）の
// クライアントを提供する。
//
// 応答はエンベロープ {success, data} で受け取り、失敗は *Error に型付けして返す。
package catalog

import (
	"errors"
	"fmt"
)

// Reason はドメインAPI呼び出しの失敗理由。
type Reason int

const (
	// ReasonNetworkError は通信エラー。
	ReasonNetworkError Reason = iota
	// ReasonInvalidResponse は応答の形式不正。
	ReasonInvalidResponse
	// ReasonUnauthorized は資格情報の拒否（401/403）。
	ReasonUnauthorized
	// ReasonNotFound はリソース未検出（404）。
	ReasonNotFound
	// ReasonUpstream はその他の非2xx応答。
	ReasonUpstream
)

// String はメトリクスのラベルに使う名前を返す。
func (r Reason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network_error"
	case ReasonInvalidResponse:
		return "invalid_response"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonNotFound:
		return "not_found"
	case ReasonUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error はドメインAPI呼び出しの失敗を表す。
// 詳細はログ用であり、利用者には汎用メッセージを返す。
type Error struct {
	Resource   string
	Reason     Reason
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("catalog %s: %s", e.Resource, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf はerrが *Error の場合にその理由を返す。
func ReasonOf(err error) (Reason, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Reason, true
	}
	return 0, false
}

// ErrUnknownResource は扱えないリソース名が指定された場合のエラー。
var ErrUnknownResource = errors.New("unknown catalog resource")

// Resources は管理画面で扱えるリソース名の一覧。
var Resources = []string{"markets", "merchants", "products", "categories", "users", "reviews"}

// IsResource はnameが扱えるリソースかを返す。
func IsResource(name string) bool {
	for _, r := range Resources {
		if r == name {
			return true
		}
	}
	return false
}

// cacheable は一覧をキャッシュしてよいリソース。
// キーはリソース名とクエリだけで、呼び出し元のIDトークンを含まない。
// ドメインAPIが利用者によらず同じ内容を返す参照データに限り、
// users, reviews のように利用者ごとに内容や権限が変わり得るものは含めない。
func cacheable(resource string) bool {
	switch resource {
	case "markets", "merchants", "products", "categories":
		return true
	}
	return false
}
