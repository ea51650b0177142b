package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify_PublicPathsWithoutCredential_Allow(t *testing.T) {
	p := DefaultPolicy()

	for _, path := range []string{"/", "/auth/login", "/auth/register", "/auth/login/"} {
		t.Run(path, func(t *testing.T) {
			if got := p.Classify(path, false); got != Allow {
				t.Errorf("Classify(%q, false) = %v, want %v", path, got, Allow)
			}
		})
	}
}

func TestClassify_ProtectedPathsWithoutCredential_RedirectLogin(t *testing.T) {
	p := DefaultPolicy()

	paths := []string{
		"/dashboard",
		"/dashboard/products",
		"/dashboard/markets/42",
		"/markets",
		"/merchants",
		"/products",
		"/predict",
		"/cart/items",
		"/auth/settings",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			if got := p.Classify(path, false); got != RedirectLogin {
				t.Errorf("Classify(%q, false) = %v, want %v", path, got, RedirectLogin)
			}
		})
	}
}

func TestClassify_AuthOnlyWithCredential_RedirectHome(t *testing.T) {
	p := DefaultPolicy()

	for _, path := range []string{"/auth/login", "/auth/register"} {
		t.Run(path, func(t *testing.T) {
			if got := p.Classify(path, true); got != RedirectHome {
				t.Errorf("Classify(%q, true) = %v, want %v", path, got, RedirectHome)
			}
		})
	}
}

func TestClassify_ProtectedWithCredential_Verify(t *testing.T) {
	p := DefaultPolicy()

	for _, path := range []string{"/dashboard/users", "/markets", "/predict", "/auth/settings"} {
		t.Run(path, func(t *testing.T) {
			if got := p.Classify(path, true); got != Verify {
				t.Errorf("Classify(%q, true) = %v, want %v", path, got, Verify)
			}
		})
	}
}

func TestClassify_LogoutIsNeverVerified(t *testing.T) {
	p := DefaultPolicy()

	// 期限切れトークンを持ったままでもログアウトできること
	for _, hasCredential := range []bool{false, true} {
		if got := p.Classify("/auth/logout", hasCredential); got != Allow {
			t.Errorf("Classify(/auth/logout, %v) = %v, want %v", hasCredential, got, Allow)
		}
	}
}

func TestClassify_HomeWithCredential_Allow(t *testing.T) {
	p := DefaultPolicy()

	// "/" はpublicなので資格情報があっても検証せずに通す
	if got := p.Classify("/", true); got != Allow {
		t.Errorf("Classify(\"/\", true) = %v, want %v", got, Allow)
	}
}

func TestClassify_RuleOrder_AuthOnlyBeforePublic(t *testing.T) {
	// /auth/login は public にも auth_only にも含まれる。
	// 資格情報ありの場合は規則1が規則3より優先される。
	p := DefaultPolicy()

	if got := p.Classify("/auth/login", true); got != RedirectHome {
		t.Errorf("Classify(/auth/login, true) = %v, want %v", got, RedirectHome)
	}
	if got := p.Classify("/auth/login", false); got != Allow {
		t.Errorf("Classify(/auth/login, false) = %v, want %v", got, Allow)
	}
}

func TestIntercepts(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		path string
		want bool
	}{
		{"/dashboard", true},
		{"/dashboard/products/1", true},
		{"/auth/login", true},
		{"/markets", true},
		{"/markets/", true},
		{"/predict", true},
		{"/cart/checkout", true},
		{"/", false},
		{"/products/123", false},
		{"/dashboards", false},
		{"/health", false},
		{"/api/validate-token", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := p.Intercepts(tt.path); got != tt.want {
				t.Errorf("Intercepts(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestClass(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		path string
		want Class
	}{
		{"/", ClassPublic},
		{"/auth/login", ClassAuthOnly},
		{"/auth/register", ClassAuthOnly},
		{"/auth/logout", ClassPublic},
		{"/auth/settings", ClassProtectedListing},
		{"/markets", ClassProtectedListing},
		{"/predict", ClassProtectedListing},
		{"/dashboard/markets", ClassDashboard},
		{"/health", ClassUnmatched},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := p.Class(tt.path); got != tt.want {
				t.Errorf("Class(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestDecision_String(t *testing.T) {
	tests := map[Decision]string{
		Allow:         "allow",
		RedirectLogin: "redirect_login",
		RedirectHome:  "redirect_home",
		Verify:        "verify",
		Decision(99):  "unknown",
	}
	for d, want := range tests {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", int(d), got, want)
		}
	}
}

func TestParsePolicy_RejectsInvalidPattern(t *testing.T) {
	_, err := ParsePolicy([]byte("matcher:\n  - markets\n"))
	if err == nil {
		t.Fatal("expected error for pattern without leading slash")
	}
}

func TestParsePolicy_RejectsEmptyMatcher(t *testing.T) {
	_, err := ParsePolicy([]byte("public:\n  - /\n"))
	if err == nil {
		t.Fatal("expected error for empty matcher")
	}
}

func TestLoadPolicy_FromFile(t *testing.T) {
	// /predict を捕捉しない運用向けの分類表
	data := []byte(`matcher:
  - /dashboard/*
  - /markets
public:
  - /
requires_login:
  - /markets
dashboard:
  - /dashboard/*
`)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy returned error: %v", err)
	}

	if p.Intercepts("/predict") {
		t.Error("/predict should not be intercepted by the custom policy")
	}
	if got := p.Classify("/markets", false); got != RedirectLogin {
		t.Errorf("Classify(/markets, false) = %v, want %v", got, RedirectLogin)
	}
}

func TestLoadPolicy_EmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy returned error: %v", err)
	}
	if len(p.Table().Matcher) != len(DefaultPolicy().Table().Matcher) {
		t.Error("empty path should return the embedded policy")
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
