package security

import (
	"html"
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はドメインAPIから受け取ったテキストを表示前に無害化する。
type Sanitizer interface {
	// Text はすべてのタグを除去したプレーンテキストを返す。
	// JSONの値として返すため、文字参照には変換しない（"Tea & Cakes" はそのまま）。
	// 商品名やレビューコメントに使用する。
	Text(s string) string
	// HTML は許可リストのタグだけを残したHTMLを返す。
	// 商品・マーケットの説明文に使用する。
	HTML(s string) string
}

type contentSanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はbluemondayポリシーを使うSanitizerを生成する。
// 説明文で許可するのは段落・改行・リスト・強調・リンク・httpsの画像のみ。
// リンクには target="_blank" と rel="noopener noreferrer" を付与する。
func NewSanitizer() Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	rich.AllowAttrs("href").OnElements("a")
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	rich.AllowAttrs("src", "alt").OnElements("img")
	rich.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })

	return &contentSanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// Text はStrictPolicyでタグを除去し、その際にエスケープされた文字参照を元に戻す。
func (s *contentSanitizer) Text(in string) string {
	return html.UnescapeString(s.strict.Sanitize(in))
}

func (s *contentSanitizer) HTML(in string) string {
	return s.rich.Sanitize(in)
}
