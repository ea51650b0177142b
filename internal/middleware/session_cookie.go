package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/souvenir/internal/model"
)

// SessionCookies はセッションCookie（idToken, userId）の共通属性。
// 失効させる側も同じDomain・Pathで上書きしないとブラウザに残るため、
// 発行と失効の両方でこの型を使う。
type SessionCookies struct {
	Domain string
	Secure bool
}

// New はセッションCookieを生成する。maxAgeが負の場合は失効用のCookieになる。
func (c SessionCookies) New(name, value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	} else if maxAge < 0 {
		cookie.Expires = time.Unix(0, 0)
	}
	return cookie
}

// Expire は資格情報の両Cookieを失効させる。
func (c SessionCookies) Expire(w http.ResponseWriter) {
	for _, name := range []string{model.CookieIDToken, model.CookieUserID} {
		http.SetCookie(w, c.New(name, "", -1))
	}
}
