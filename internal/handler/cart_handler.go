package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
)

// maxCartQuantity は1回に追加できる数量の上限。
const maxCartQuantity = 99

// CartService はカートハンドラーが必要とするドメインAPIの操作。
type CartService interface {
	Cart(ctx context.Context, idToken string) (*model.Cart, error)
	AddToCart(ctx context.Context, idToken, productID string, quantity int) (*model.Cart, error)
	Checkout(ctx context.Context, idToken string) (*model.Order, error)
}

// CartHandler はカートのHTTPハンドラー。
type CartHandler struct {
	service CartService
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartService) *CartHandler {
	return &CartHandler{service: service}
}

// Items はカートの内容を返す。
// GET /cart/items
func (h *CartHandler) Items(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Cart(r.Context(), idTokenFromRequest(r))
	if err != nil {
		writeCatalogError(w, err, "carts", "")
		return
	}
	writeData(w, http.StatusOK, cart)
}

type addToCartBody struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Add は商品をカートに追加する。JSONまたはフォーム（product_id, quantity）を受け付ける。
// POST /cart/items
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	body, err := decodeAddToCart(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("failed to parse request body"))
		return
	}
	if body.ProductID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("product_id is required"))
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	if body.Quantity < 1 || body.Quantity > maxCartQuantity {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("quantity must be between 1 and 99"))
		return
	}

	cart, err := h.service.AddToCart(r.Context(), idTokenFromRequest(r), body.ProductID, body.Quantity)
	if err != nil {
		writeCatalogError(w, err, "products", body.ProductID)
		return
	}
	writeData(w, http.StatusOK, cart)
}

// Checkout はカートの内容で注文を確定する。
// POST /cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Checkout(r.Context(), idTokenFromRequest(r))
	if err != nil {
		writeCatalogError(w, err, "carts", "")
		return
	}
	writeData(w, http.StatusCreated, order)
}

func decodeAddToCart(r *http.Request) (addToCartBody, error) {
	var body addToCartBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&body)
		return body, err
	}

	if err := r.ParseForm(); err != nil {
		return body, err
	}
	body.ProductID = strings.TrimSpace(r.PostFormValue("product_id"))
	if q := strings.TrimSpace(r.PostFormValue("quantity")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return body, err
		}
		body.Quantity = n
	}
	return body, nil
}
