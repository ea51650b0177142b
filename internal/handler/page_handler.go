package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
)

// featuredMarkets はトップページに表示するマーケットの件数。
const featuredMarkets = 6

// PageCatalog はストアフロントのページが必要とするドメインAPIの操作。
type PageCatalog interface {
	ListMarkets(ctx context.Context, idToken string) ([]model.Market, error)
	ListMerchants(ctx context.Context, idToken string) ([]model.Merchant, error)
	ListCategories(ctx context.Context, idToken string) ([]model.Category, error)
	ListProducts(ctx context.Context, idToken string, query url.Values) ([]model.Product, error)
	GetProduct(ctx context.Context, idToken, id string) (*model.Product, error)
	Reviews(ctx context.Context, idToken, productID string) ([]model.Review, error)
}

// PageHandler はストアフロントのページデータを返すHTTPハンドラー。
type PageHandler struct {
	catalog PageCatalog
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(catalog PageCatalog) *PageHandler {
	return &PageHandler{catalog: catalog}
}

type homePage struct {
	Markets    []model.Market   `json:"markets"`
	Categories []model.Category `json:"categories"`
	SignedIn   bool             `json:"signed_in"`
}

// Home はトップページのデータ（注目マーケットとカテゴリ）を返す。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	idToken := idTokenFromRequest(r)

	markets, err := h.catalog.ListMarkets(r.Context(), idToken)
	if err != nil {
		writeCatalogError(w, err, "markets", "")
		return
	}
	categories, err := h.catalog.ListCategories(r.Context(), idToken)
	if err != nil {
		writeCatalogError(w, err, "categories", "")
		return
	}

	if len(markets) > featuredMarkets {
		markets = markets[:featuredMarkets]
	}
	writeData(w, http.StatusOK, homePage{
		Markets:    markets,
		Categories: categories,
		SignedIn:   idToken != "",
	})
}

// Markets はマーケット一覧を返す。
// GET /markets
func (h *PageHandler) Markets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.catalog.ListMarkets(r.Context(), idTokenFromRequest(r))
	if err != nil {
		writeCatalogError(w, err, "markets", "")
		return
	}
	writeData(w, http.StatusOK, markets)
}

// Merchants は販売者一覧を返す。
// GET /merchants
func (h *PageHandler) Merchants(w http.ResponseWriter, r *http.Request) {
	merchants, err := h.catalog.ListMerchants(r.Context(), idTokenFromRequest(r))
	if err != nil {
		writeCatalogError(w, err, "merchants", "")
		return
	}
	writeData(w, http.StatusOK, merchants)
}

// Products は商品一覧を返す。category, merchantで絞り込める。
// GET /products
func (h *PageHandler) Products(w http.ResponseWriter, r *http.Request) {
	query := url.Values{}
	for _, key := range []string{"category", "merchant"} {
		if v := r.URL.Query().Get(key); v != "" {
			query.Set(key, v)
		}
	}

	products, err := h.catalog.ListProducts(r.Context(), idTokenFromRequest(r), query)
	if err != nil {
		writeCatalogError(w, err, "products", "")
		return
	}
	writeData(w, http.StatusOK, products)
}

type productPage struct {
	Product *model.Product `json:"product"`
	Reviews []model.Review `json:"reviews"`
}

// Product は商品詳細とレビューを返す。
// GET /products/{id}
func (h *PageHandler) Product(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("product id is required"))
		return
	}
	idToken := idTokenFromRequest(r)

	product, err := h.catalog.GetProduct(r.Context(), idToken, id)
	if err != nil {
		writeCatalogError(w, err, "products", id)
		return
	}
	reviews, err := h.catalog.Reviews(r.Context(), idToken, id)
	if err != nil {
		writeCatalogError(w, err, "reviews", id)
		return
	}
	if reviews == nil {
		reviews = []model.Review{}
	}

	writeData(w, http.StatusOK, productPage{Product: product, Reviews: reviews})
}
