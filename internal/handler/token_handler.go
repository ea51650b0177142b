package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/souvenir/internal/auth"
)

// maxValidateBodySize は検証リクエストボディの上限。
const maxValidateBodySize = 16 * 1024

// ValidateTokenHandler はIDトークンの検証エンドポイント。
// RemoteVerifierの問い合わせ先として使う。
type ValidateTokenHandler struct {
	verifier auth.Verifier
	logger   *slog.Logger
}

// NewValidateTokenHandler はValidateTokenHandlerを生成する。
func NewValidateTokenHandler(verifier auth.Verifier, logger *slog.Logger) *ValidateTokenHandler {
	return &ValidateTokenHandler{verifier: verifier, logger: logger}
}

type validateTokenBody struct {
	Token string `json:"token"`
}

// ServeHTTP はトークンを検証し、成功時はデコード済みクレームを返す。
// POST /api/validate-token
//
//	200 クレーム / 400 トークンなし / 401 検証失敗
func (h *ValidateTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body validateTokenBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValidateBodySize)).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Token is required"})
		return
	}

	claims, err := h.verifier.Verify(r.Context(), body.Token)
	if err != nil {
		reason := "unknown"
		var verr *auth.VerifyError
		if errors.As(err, &verr) {
			reason = string(verr.Reason)
		}
		h.logger.Info("token validation failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}

	writeJSON(w, http.StatusOK, claims)
}

// Health はヘルスチェック用のハンドラー。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
