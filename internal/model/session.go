package model

import "time"

const (
	// CookieIDToken はIDトークンを保持するCookieの名前。
	CookieIDToken = "idToken"
	// CookieUserID はユーザーIDを保持するCookieの名前。
	CookieUserID = "userId"

	// CredentialMaxAge はセッションCookieの既定の有効期間（7日）。
	CredentialMaxAge = 7 * 24 * time.Hour
)

// Credential はCookieに保持されるセッション資格情報（idToken, userId）を表す。
type Credential struct {
	IDToken string
	UserID  string
}

// Present はIDトークンが存在するかを返す。
func (c Credential) Present() bool {
	return c.IDToken != ""
}

// Claims はIDトークン検証で得られるデコード済みクレーム。
type Claims struct {
	UID       string `json:"uid"`
	Email     string `json:"email,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Expired は指定時刻時点でクレームが期限切れかを返す。
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() >= c.ExpiresAt
}
