// Package gate はリクエストパスと資格情報の有無からアクセス可否を決定する
// ルーティングポリシーを提供する。
// ネットワークに依存しない純粋関数として実装し、トークン検証はmiddleware側で行う。
package gate

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// HomePath はログイン済みユーザーをauth-onlyページから戻す先。
	HomePath = "/"
	// LoginPath は未認証ユーザーのリダイレクト先。
	LoginPath = "/auth/login"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Decision はゲートの判定結果を表す。
type Decision int

const (
	// Allow はリクエストをそのまま通す。
	Allow Decision = iota
	// RedirectLogin はログインページへリダイレクトする。
	RedirectLogin
	// RedirectHome はトップページへリダイレクトする。
	RedirectHome
	// Verify は資格情報を検証器で確認してから通す。
	Verify
)

// String は判定結果のラベルを返す。ログとメトリクスのラベルに使用する。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case Verify:
		return "verify"
	default:
		return "unknown"
	}
}

// Class はルートの分類を表す。
type Class string

const (
	// ClassPublic は資格情報不要のパス。
	ClassPublic Class = "public"
	// ClassAuthOnly は資格情報を持っていてはならないパス（ログイン・登録）。
	ClassAuthOnly Class = "auth-only"
	// ClassProtectedListing は資格情報が必要なパス。
	// 一覧表に載っていない捕捉パス（/auth/ 配下の未知のパス等）もここに含める。
	ClassProtectedListing Class = "protected-listing"
	// ClassDashboard は管理画面のパス。
	ClassDashboard Class = "dashboard"
	// ClassUnmatched はゲートが捕捉しないパス。
	ClassUnmatched Class = "unmatched"
)

// Table はポリシーファイルの構造。
type Table struct {
	Matcher       []string `yaml:"matcher"`
	Public        []string `yaml:"public"`
	AuthOnly      []string `yaml:"auth_only"`
	RequiresLogin []string `yaml:"requires_login"`
	Dashboard     []string `yaml:"dashboard"`
}

// Policy はルート分類表に基づくアクセスポリシー。
// 生成後はイミュータブルで、複数goroutineから同時に使用できる。
type Policy struct {
	table Table
}

// DefaultPolicy は組み込みの分類表からPolicyを生成する。
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded route policy: %v", err))
	}
	return p
}

// LoadPolicy はYAMLファイルからPolicyを読み込む。
// pathが空の場合は組み込みの分類表を使用する。
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy はYAMLの分類表をパースし、パターンの妥当性を検証する。
func ParsePolicy(data []byte) (*Policy, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse route policy: %w", err)
	}
	if len(t.Matcher) == 0 {
		return nil, fmt.Errorf("route policy must define at least one matcher pattern")
	}

	groups := map[string][]string{
		"matcher":        t.Matcher,
		"public":         t.Public,
		"auth_only":      t.AuthOnly,
		"requires_login": t.RequiresLogin,
		"dashboard":      t.Dashboard,
	}
	for name, patterns := range groups {
		for _, p := range patterns {
			if !strings.HasPrefix(p, "/") {
				return nil, fmt.Errorf("invalid pattern %q in %s: must start with /", p, name)
			}
		}
	}

	return &Policy{table: t}, nil
}

// Table は分類表のコピーを返す。
func (p *Policy) Table() Table {
	return Table{
		Matcher:       append([]string(nil), p.table.Matcher...),
		Public:        append([]string(nil), p.table.Public...),
		AuthOnly:      append([]string(nil), p.table.AuthOnly...),
		RequiresLogin: append([]string(nil), p.table.RequiresLogin...),
		Dashboard:     append([]string(nil), p.table.Dashboard...),
	}
}

// Intercepts はゲートがこのパスを捕捉するかを返す。
func (p *Policy) Intercepts(path string) bool {
	return matchAny(p.table.Matcher, normalize(path))
}

// Classify はパスと資格情報の有無から判定結果を返す。
// 規則は以下の順に評価し、最初に一致したものを採用する。
//  1. 資格情報あり かつ auth_only → RedirectHome
//  2. 資格情報なし かつ requires_login → RedirectLogin
//  3. public → Allow
//  4. 資格情報なし → RedirectLogin
//  5. それ以外 → Verify
func (p *Policy) Classify(path string, hasCredential bool) Decision {
	path = normalize(path)

	if hasCredential && matchAny(p.table.AuthOnly, path) {
		return RedirectHome
	}
	if !hasCredential && matchAny(p.table.RequiresLogin, path) {
		return RedirectLogin
	}
	if matchAny(p.table.Public, path) {
		return Allow
	}
	if !hasCredential {
		return RedirectLogin
	}
	return Verify
}

// Class はパスのルート分類を返す。
func (p *Policy) Class(path string) Class {
	path = normalize(path)

	switch {
	case !matchAny(p.table.Matcher, path) && !matchAny(p.table.Public, path):
		return ClassUnmatched
	case matchAny(p.table.Dashboard, path):
		return ClassDashboard
	case matchAny(p.table.AuthOnly, path):
		return ClassAuthOnly
	case matchAny(p.table.RequiresLogin, path):
		return ClassProtectedListing
	case matchAny(p.table.Public, path):
		return ClassPublic
	default:
		return ClassProtectedListing
	}
}

// normalize は末尾スラッシュを取り除く。空パスは "/" とみなす。
func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if match(pattern, path) {
			return true
		}
	}
	return false
}

// match は単一パターンとの一致を判定する。
// "/x/*" は "/x" と "/x/..." に一致する。
func match(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if prefix == "" {
			return true
		}
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == normalize(pattern)
}
