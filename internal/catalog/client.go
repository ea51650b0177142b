package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/souvenir/internal/model"
	"github.com/hitoshi/souvenir/internal/security"
)

// maxResponseSize は応答として読み込む最大バイト数。
const maxResponseSize = 4 << 20

// Metrics はクライアントが記録するメトリクス。
type Metrics interface {
	RecordUpstreamFailure(resource, reason string)
}

// Config はClientの設定。
type Config struct {
	HTTPClient *http.Client
	BaseURL    string
	Cache      Cache // nilの場合はキャッシュしない
	CacheTTL   time.Duration
	Sanitizer  security.Sanitizer
	Metrics    Metrics
	Logger     *slog.Logger
}

// Client はドメインAPIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      Cache
	cacheTTL   time.Duration
	sanitizer  security.Sanitizer
	metrics    Metrics
	logger     *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		sanitizer:  cfg.Sanitizer,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// List はリソースの一覧を返す。dataは配列でなければならない。
//
// 管理画面の編集でそのまま書き戻されるため、dataは無害化せずに返す。
// キャッシュにも加工前のdataを置き、表示用の一覧（ListMarkets等）が取り出す時に無害化する。
func (c *Client) List(ctx context.Context, idToken, resource string, query url.Values) (json.RawMessage, error) {
	if !IsResource(resource) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	key := resource + ":" + query.Encode()
	useCache := c.cache != nil && cacheable(resource)
	if useCache {
		if cached, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn("catalog cache read failed",
				slog.String("resource", resource),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return cached, nil
		}
	}

	data, err := c.do(ctx, idToken, resource, http.MethodGet, c.path(resource, "", query), "", nil)
	if err != nil {
		return nil, err
	}
	if !isJSONArray(data) {
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, Message: "list data is not an array"})
	}

	if useCache {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn("catalog cache write failed",
				slog.String("resource", resource),
				slog.String("error", err.Error()),
			)
		}
	}
	return data, nil
}

// Get はIDで1件取得する。Listと同じ理由でdataは加工しない。
func (c *Client) Get(ctx context.Context, idToken, resource, id string) (json.RawMessage, error) {
	if !IsResource(resource) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	data, err := c.do(ctx, idToken, resource, http.MethodGet, c.path(resource, id, nil), "", nil)
	if err != nil {
		return nil, err
	}
	if !isJSONObject(data) {
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, Message: "data is not an object"})
	}
	return data, nil
}

// Create はリソースを作成する。bodyはcontentType（JSONまたはmultipart）のままドメインAPIへ転送する。
func (c *Client) Create(ctx context.Context, idToken, resource, contentType string, body io.Reader) (json.RawMessage, error) {
	if !IsResource(resource) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	data, err := c.do(ctx, idToken, resource, http.MethodPost, c.path(resource, "", nil), contentType, body)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, resource)
	return data, nil
}

// Update はリソースを更新する。bodyはそのまま転送する。
func (c *Client) Update(ctx context.Context, idToken, resource, id, contentType string, body io.Reader) (json.RawMessage, error) {
	if !IsResource(resource) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	data, err := c.do(ctx, idToken, resource, http.MethodPut, c.path(resource, id, nil), contentType, body)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, resource)
	return data, nil
}

// Delete はリソースを削除する。
func (c *Client) Delete(ctx context.Context, idToken, resource, id string) error {
	if !IsResource(resource) {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	if _, err := c.do(ctx, idToken, resource, http.MethodDelete, c.path(resource, id, nil), "", nil); err != nil {
		return err
	}
	c.invalidate(ctx, resource)
	return nil
}

// Cart はログインユーザーのカートを返す。
func (c *Client) Cart(ctx context.Context, idToken string) (*model.Cart, error) {
	var cart model.Cart
	if err := c.call(ctx, idToken, "carts", http.MethodGet, "/api/carts", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddToCart は商品をカートに追加し、更新後のカートを返す。
func (c *Client) AddToCart(ctx context.Context, idToken, productID string, quantity int) (*model.Cart, error) {
	var cart model.Cart
	req := addToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.call(ctx, idToken, "carts", http.MethodPost, "/api/carts", req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Checkout はカートの内容で注文を確定する。
func (c *Client) Checkout(ctx context.Context, idToken string) (*model.Order, error) {
	var order model.Order
	if err := c.call(ctx, idToken, "carts", http.MethodPost, "/api/carts/checkout", struct{}{}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Reviews は商品のレビュー一覧を返す。コメントはタグを除去済み。
func (c *Client) Reviews(ctx context.Context, idToken, productID string) ([]model.Review, error) {
	data, err := c.List(ctx, idToken, "reviews", url.Values{"product_id": {productID}})
	if err != nil {
		return nil, err
	}
	var reviews []model.Review
	if err := json.Unmarshal(c.sanitize(data), &reviews); err != nil {
		return nil, c.fail(&Error{Resource: "reviews", Reason: ReasonInvalidResponse, Err: err})
	}
	return reviews, nil
}

// CreateUser は登録直後の利用者プロフィールを作成する。
func (c *Client) CreateUser(ctx context.Context, idToken string, user model.User) (*model.User, error) {
	var created model.User
	if err := c.call(ctx, idToken, "users", http.MethodPost, "/api/users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListMarkets はマーケット一覧を返す。
func (c *Client) ListMarkets(ctx context.Context, idToken string) ([]model.Market, error) {
	var out []model.Market
	return out, c.listInto(ctx, idToken, "markets", nil, &out)
}

// ListMerchants は販売者一覧を返す。
func (c *Client) ListMerchants(ctx context.Context, idToken string) ([]model.Merchant, error) {
	var out []model.Merchant
	return out, c.listInto(ctx, idToken, "merchants", nil, &out)
}

// ListCategories はカテゴリ一覧を返す。
func (c *Client) ListCategories(ctx context.Context, idToken string) ([]model.Category, error) {
	var out []model.Category
	return out, c.listInto(ctx, idToken, "categories", nil, &out)
}

// ListProducts は商品一覧を返す。queryにはcategory, merchantなどの絞り込み条件を渡す。
func (c *Client) ListProducts(ctx context.Context, idToken string, query url.Values) ([]model.Product, error) {
	var out []model.Product
	return out, c.listInto(ctx, idToken, "products", query, &out)
}

// GetProduct は商品を1件返す。
func (c *Client) GetProduct(ctx context.Context, idToken, id string) (*model.Product, error) {
	data, err := c.Get(ctx, idToken, "products", id)
	if err != nil {
		return nil, err
	}
	var p model.Product
	if err := json.Unmarshal(c.sanitize(data), &p); err != nil {
		return nil, c.fail(&Error{Resource: "products", Reason: ReasonInvalidResponse, Err: err})
	}
	return &p, nil
}

func (c *Client) listInto(ctx context.Context, idToken, resource string, query url.Values, out any) error {
	data, err := c.List(ctx, idToken, resource, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(c.sanitize(data), out); err != nil {
		return c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, Err: err})
	}
	return nil
}

// call はJSONリクエストを送り、dataをoutにデコードする。
func (c *Client) call(ctx context.Context, idToken, resource, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	data, err := c.do(ctx, idToken, resource, method, c.baseURL+path, contentType, body)
	if err != nil {
		return err
	}
	if !isJSONObject(data) {
		return c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, Message: "data is not an object"})
	}
	if err := json.Unmarshal(c.sanitize(data), out); err != nil {
		return c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, Err: err})
	}
	return nil
}

// do は1回のHTTP呼び出しを行い、成功エンベロープのdataを返す。
func (c *Client) do(ctx context.Context, idToken, resource, method, endpoint, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if idToken != "" {
		req.Header.Set("Authorization", "Bearer "+idToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonNetworkError, Err: err})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonNetworkError, Err: err})
	}

	var env envelope
	parseErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := ReasonUpstream
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			reason = ReasonUnauthorized
		case http.StatusNotFound:
			reason = ReasonNotFound
		}
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return nil, c.fail(&Error{Resource: resource, Reason: reason, StatusCode: resp.StatusCode, Message: msg})
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if parseErr != nil {
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonInvalidResponse, StatusCode: resp.StatusCode, Err: parseErr})
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return nil, c.fail(&Error{Resource: resource, Reason: ReasonUpstream, StatusCode: resp.StatusCode, Message: msg})
	}
	return env.Data, nil
}

// fail は失敗をログとメトリクスに記録してそのまま返す。
func (c *Client) fail(err *Error) error {
	attrs := []any{
		slog.String("resource", err.Resource),
		slog.String("reason", err.Reason.String()),
		slog.String("error", err.Error()),
	}
	if err.StatusCode != 0 {
		attrs = append(attrs, slog.Int("http_status", err.StatusCode))
	}
	if err.Reason == ReasonNotFound || err.Reason == ReasonUnauthorized {
		c.logger.Info("catalog request rejected", attrs...)
	} else {
		c.logger.Error("catalog request failed", attrs...)
	}
	if c.metrics != nil {
		c.metrics.RecordUpstreamFailure(err.Resource, err.Reason.String())
	}
	return err
}

func (c *Client) invalidate(ctx context.Context, resource string) {
	if c.cache == nil || !cacheable(resource) {
		return
	}
	if err := c.cache.Invalidate(ctx, resource); err != nil {
		c.logger.Warn("catalog cache invalidation failed",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) path(resource, id string, query url.Values) string {
	p := c.baseURL + "/api/" + resource
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	return p
}

// IsNotFound はerrがリソース未検出かを返す。
func IsNotFound(err error) bool {
	reason, ok := ReasonOf(err)
	return ok && reason == ReasonNotFound
}

// IsUnauthorized はerrが資格情報の拒否かを返す。
func IsUnauthorized(err error) bool {
	reason, ok := ReasonOf(err)
	return ok && reason == ReasonUnauthorized
}

func isJSONArray(data json.RawMessage) bool {
	t := bytes.TrimSpace(data)
	return len(t) > 0 && t[0] == '['
}

func isJSONObject(data json.RawMessage) bool {
	t := bytes.TrimSpace(data)
	return len(t) > 0 && t[0] == '{'
}
