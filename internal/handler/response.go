package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/souvenir/internal/catalog"
	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData は成功エンベロープ {success, data} でレスポンスを書き込む。
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

// writeCatalogError はドメインAPIのエラーをHTTPステータスと統一エラーフォーマットに変換する。
// 詳細はドメインAPIクライアント側でログに記録済み。
func writeCatalogError(w http.ResponseWriter, err error, resource, id string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownResource):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownResourceError(resource))
	case catalog.IsNotFound(err):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewResourceNotFoundError(resource, id))
	case catalog.IsUnauthorized(err):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	default:
		var cerr *catalog.Error
		if !errors.As(err, &cerr) {
			slog.Error("unexpected catalog error", slog.String("error", err.Error()))
		}
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError())
	}
}

// idTokenFromRequest はCookieのIDトークンを返す。
func idTokenFromRequest(r *http.Request) string {
	return middleware.CredentialFromRequest(r).IDToken
}
