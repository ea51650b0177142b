package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/souvenir/internal/auth"
	"github.com/hitoshi/souvenir/internal/gate"
)

// UserIDHeader は検証済みのユーザーIDを下流のハンドラーへ伝えるヘッダー名。
const UserIDHeader = "X-User-Id"

// GateMetrics はゲートが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type GateMetrics interface {
	RecordGateDecision(class, decision string)
	RecordVerifyFailure(reason string)
}

// NewGateMiddleware はルーティングポリシーに従ってアクセスを制御するミドルウェアを返す。
// 分類表のmatcherに一致しないパスはそのまま通す。
// 検証が必要な場合はverifierを同期的に呼び出し、成功時はユーザーIDを
// X-User-Idヘッダーとリクエストコンテキストに設定する。
// 検証に失敗した場合は理由を問わずログインページへリダイレクトする。
// トークン自体が拒否された場合（期限切れ・署名不正など）はセッションCookieも失効させる。
// 残したままだとauth-onlyの規則でログインページからも追い返されるため。
// 検証先の障害（NetworkError, InvalidResponse）ではCookieを残す。
func NewGateMiddleware(policy *gate.Policy, verifier auth.Verifier, metrics GateMetrics, cookies SessionCookies, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// クライアントが送ったX-User-Idは信用しない
			r.Header.Del(UserIDHeader)

			path := r.URL.Path
			if !policy.Intercepts(path) {
				next.ServeHTTP(w, r)
				return
			}

			cred := CredentialFromRequest(r)
			class := policy.Class(path)
			decision := policy.Classify(path, cred.Present())

			switch decision {
			case gate.Allow:
				metrics.RecordGateDecision(string(class), decision.String())
				next.ServeHTTP(w, r)
				return
			case gate.RedirectHome:
				metrics.RecordGateDecision(string(class), decision.String())
				http.Redirect(w, r, gate.HomePath, http.StatusFound)
				return
			case gate.RedirectLogin:
				metrics.RecordGateDecision(string(class), decision.String())
				http.Redirect(w, r, gate.LoginPath, http.StatusFound)
				return
			}

			claims, err := verifier.Verify(r.Context(), cred.IDToken)
			if err != nil {
				reason := string(auth.ReasonUnauthorized)
				var verr *auth.VerifyError
				if errors.As(err, &verr) {
					reason = string(verr.Reason)
				}
				metrics.RecordVerifyFailure(reason)
				metrics.RecordGateDecision(string(class), gate.RedirectLogin.String())

				level := slog.LevelInfo
				if reason != string(auth.ReasonUnauthorized) {
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "token verification failed",
					slog.String("path", path),
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				if reason == string(auth.ReasonUnauthorized) {
					cookies.Expire(w)
				}
				http.Redirect(w, r, gate.LoginPath, http.StatusFound)
				return
			}

			metrics.RecordGateDecision(string(class), decision.String())
			r.Header.Set(UserIDHeader, claims.UID)
			ctx := ContextWithUserID(r.Context(), claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
