package tokenwatch

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// JarStore はCookieをcookiejarに保存するCookieStore。
// 保存したCookieは対象URLへのリクエストで送信される。
type JarStore struct {
	jar *cookiejar.Jar
	url *url.URL
}

// NewJarStore はtargetURLをスコープとするJarStoreを生成する。
func NewJarStore(targetURL string) (*JarStore, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cookie URL: %q", targetURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &JarStore{jar: jar, url: u}, nil
}

// SetCookie はCookieを保存する。MaxAgeが負のCookieは削除として扱われる。
func (s *JarStore) SetCookie(c *http.Cookie) {
	s.jar.SetCookies(s.url, []*http.Cookie{c})
}

// Value は保存されているCookieの値を返す。
func (s *JarStore) Value(name string) (string, bool) {
	for _, c := range s.jar.Cookies(s.url) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Jar はhttp.Clientに設定するためのcookiejarを返す。
func (s *JarStore) Jar() http.CookieJar {
	return s.jar
}

var _ CookieStore = (*JarStore)(nil)
