package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/url"

	"github.com/hitoshi/souvenir/internal/identity"
	"github.com/hitoshi/souvenir/internal/model"
	"github.com/hitoshi/souvenir/internal/predict"
)

// --- モック定義 ---

type mockCatalog struct {
	listMarketsFn    func(ctx context.Context, idToken string) ([]model.Market, error)
	listMerchantsFn  func(ctx context.Context, idToken string) ([]model.Merchant, error)
	listCategoriesFn func(ctx context.Context, idToken string) ([]model.Category, error)
	listProductsFn   func(ctx context.Context, idToken string, query url.Values) ([]model.Product, error)
	getProductFn     func(ctx context.Context, idToken, id string) (*model.Product, error)
	reviewsFn        func(ctx context.Context, idToken, productID string) ([]model.Review, error)
	cartFn           func(ctx context.Context, idToken string) (*model.Cart, error)
	addToCartFn      func(ctx context.Context, idToken, productID string, quantity int) (*model.Cart, error)
	checkoutFn       func(ctx context.Context, idToken string) (*model.Order, error)
	listFn           func(ctx context.Context, idToken, resource string, query url.Values) (json.RawMessage, error)
	getFn            func(ctx context.Context, idToken, resource, id string) (json.RawMessage, error)
	createFn         func(ctx context.Context, idToken, resource, contentType string, body io.Reader) (json.RawMessage, error)
	updateFn         func(ctx context.Context, idToken, resource, id, contentType string, body io.Reader) (json.RawMessage, error)
	deleteFn         func(ctx context.Context, idToken, resource, id string) error
	createUserFn     func(ctx context.Context, idToken string, user model.User) (*model.User, error)
}

func (m *mockCatalog) ListMarkets(ctx context.Context, idToken string) ([]model.Market, error) {
	if m.listMarketsFn != nil {
		return m.listMarketsFn(ctx, idToken)
	}
	return []model.Market{}, nil
}

func (m *mockCatalog) ListMerchants(ctx context.Context, idToken string) ([]model.Merchant, error) {
	if m.listMerchantsFn != nil {
		return m.listMerchantsFn(ctx, idToken)
	}
	return []model.Merchant{}, nil
}

func (m *mockCatalog) ListCategories(ctx context.Context, idToken string) ([]model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx, idToken)
	}
	return []model.Category{}, nil
}

func (m *mockCatalog) ListProducts(ctx context.Context, idToken string, query url.Values) ([]model.Product, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, idToken, query)
	}
	return []model.Product{}, nil
}

func (m *mockCatalog) GetProduct(ctx context.Context, idToken, id string) (*model.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, idToken, id)
	}
	return &model.Product{ID: id}, nil
}

func (m *mockCatalog) Reviews(ctx context.Context, idToken, productID string) ([]model.Review, error) {
	if m.reviewsFn != nil {
		return m.reviewsFn(ctx, idToken, productID)
	}
	return nil, nil
}

func (m *mockCatalog) Cart(ctx context.Context, idToken string) (*model.Cart, error) {
	if m.cartFn != nil {
		return m.cartFn(ctx, idToken)
	}
	return &model.Cart{}, nil
}

func (m *mockCatalog) AddToCart(ctx context.Context, idToken, productID string, quantity int) (*model.Cart, error) {
	if m.addToCartFn != nil {
		return m.addToCartFn(ctx, idToken, productID, quantity)
	}
	return &model.Cart{}, nil
}

func (m *mockCatalog) Checkout(ctx context.Context, idToken string) (*model.Order, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, idToken)
	}
	return &model.Order{}, nil
}

func (m *mockCatalog) List(ctx context.Context, idToken, resource string, query url.Values) (json.RawMessage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, idToken, resource, query)
	}
	return json.RawMessage(`[]`), nil
}

func (m *mockCatalog) Get(ctx context.Context, idToken, resource, id string) (json.RawMessage, error) {
	if m.getFn != nil {
		return m.getFn(ctx, idToken, resource, id)
	}
	return json.RawMessage(`{}`), nil
}

func (m *mockCatalog) Create(ctx context.Context, idToken, resource, contentType string, body io.Reader) (json.RawMessage, error) {
	if m.createFn != nil {
		return m.createFn(ctx, idToken, resource, contentType, body)
	}
	return json.RawMessage(`{}`), nil
}

func (m *mockCatalog) Update(ctx context.Context, idToken, resource, id, contentType string, body io.Reader) (json.RawMessage, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, idToken, resource, id, contentType, body)
	}
	return json.RawMessage(`{}`), nil
}

func (m *mockCatalog) Delete(ctx context.Context, idToken, resource, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, idToken, resource, id)
	}
	return nil
}

func (m *mockCatalog) CreateUser(ctx context.Context, idToken string, user model.User) (*model.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, idToken, user)
	}
	return &user, nil
}

type mockIdentity struct {
	signInFn func(ctx context.Context, email, password string) (*identity.Tokens, error)
	signUpFn func(ctx context.Context, email, password string) (*identity.Tokens, error)
}

func (m *mockIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Tokens, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return &identity.Tokens{UserID: "uid-1", IDToken: "id-token", RefreshToken: "rt"}, nil
}

func (m *mockIdentity) SignUp(ctx context.Context, email, password string) (*identity.Tokens, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return &identity.Tokens{UserID: "uid-new", IDToken: "id-token", RefreshToken: "rt"}, nil
}

type mockFlow struct {
	submitFn    func(ctx context.Context, idToken string, up predict.Upload) (predict.Outcome, error)
	submitURLFn func(ctx context.Context, idToken, rawURL string) (predict.Outcome, error)
	maxBytes    int64
}

func (m *mockFlow) Submit(ctx context.Context, idToken string, up predict.Upload) (predict.Outcome, error) {
	return m.submitFn(ctx, idToken, up)
}

func (m *mockFlow) SubmitURL(ctx context.Context, idToken, rawURL string) (predict.Outcome, error) {
	return m.submitURLFn(ctx, idToken, rawURL)
}

func (m *mockFlow) MaxBytes() int64 {
	if m.maxBytes == 0 {
		return predict.DefaultMaxBytes
	}
	return m.maxBytes
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// decodeErrorCode は統一エラーフォーマットのコードを取り出す。
func decodeErrorCode(body io.Reader) string {
	var e struct {
		Code string `json:"code"`
	}
	json.NewDecoder(body).Decode(&e)
	return e.Code
}
