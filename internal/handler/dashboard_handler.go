package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/souvenir/internal/catalog"
	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
)

// maxDashboardBodySize は管理画面から転送するリクエストボディの上限（画像を含む）。
const maxDashboardBodySize = 10 << 20

// DashboardService は管理画面が必要とするドメインAPIの操作。
type DashboardService interface {
	List(ctx context.Context, idToken, resource string, query url.Values) (json.RawMessage, error)
	Get(ctx context.Context, idToken, resource, id string) (json.RawMessage, error)
	Create(ctx context.Context, idToken, resource, contentType string, body io.Reader) (json.RawMessage, error)
	Update(ctx context.Context, idToken, resource, id, contentType string, body io.Reader) (json.RawMessage, error)
	Delete(ctx context.Context, idToken, resource, id string) error
}

// DashboardHandler は管理画面のCRUDハンドラー。
// リクエストボディ（JSONまたはmultipart）は解釈せずにドメインAPIへ転送する。
type DashboardHandler struct {
	service DashboardService
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Index は管理できるリソースの一覧を返す。
// GET /dashboard
func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"resources": catalog.Resources})
}

// List はリソースの一覧を返す。
// GET /dashboard/{resource}
func (h *DashboardHandler) List(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resource(w, r)
	if !ok {
		return
	}
	data, err := h.service.List(r.Context(), idTokenFromRequest(r), resource, r.URL.Query())
	if err != nil {
		writeCatalogError(w, err, resource, "")
		return
	}
	writeData(w, http.StatusOK, data)
}

// Get はリソースを1件返す。
// GET /dashboard/{resource}/{id}
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resource(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	data, err := h.service.Get(r.Context(), idTokenFromRequest(r), resource, id)
	if err != nil {
		writeCatalogError(w, err, resource, id)
		return
	}
	writeData(w, http.StatusOK, data)
}

// Create はリソースを作成する。
// POST /dashboard/{resource}
func (h *DashboardHandler) Create(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resource(w, r)
	if !ok {
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxDashboardBodySize)
	data, err := h.service.Create(r.Context(), idTokenFromRequest(r), resource, r.Header.Get("Content-Type"), body)
	if err != nil {
		writeCatalogError(w, err, resource, "")
		return
	}
	writeData(w, http.StatusCreated, data)
}

// Update はリソースを更新する。
// PUT /dashboard/{resource}/{id}
func (h *DashboardHandler) Update(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resource(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	body := http.MaxBytesReader(w, r.Body, maxDashboardBodySize)
	data, err := h.service.Update(r.Context(), idTokenFromRequest(r), resource, id, r.Header.Get("Content-Type"), body)
	if err != nil {
		writeCatalogError(w, err, resource, id)
		return
	}
	writeData(w, http.StatusOK, data)
}

// Delete はリソースを削除する。
// DELETE /dashboard/{resource}/{id}
func (h *DashboardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resource(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), idTokenFromRequest(r), resource, id); err != nil {
		writeCatalogError(w, err, resource, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) resource(w http.ResponseWriter, r *http.Request) (string, bool) {
	resource := chi.URLParam(r, "resource")
	if !catalog.IsResource(resource) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownResourceError(resource))
		return "", false
	}
	return resource, true
}
