package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/souvenir/internal/model"
)

// maxVerifyResponseSize は検証レスポンスとして読み込む最大バイト数。
const maxVerifyResponseSize = 64 * 1024

// RemoteVerifier は検証エンドポイント（POST /api/validate-token）へ
// HTTPで問い合わせてIDトークンを検証する。
type RemoteVerifier struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewRemoteVerifier はRemoteVerifierを生成する。
func NewRemoteVerifier(httpClient *http.Client, endpoint string, logger *slog.Logger) *RemoteVerifier {
	return &RemoteVerifier{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger,
	}
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

// Verify は検証エンドポイントにトークンを送信し、200応答のクレームを返す。
// 400/401はUnauthorized、その他のステータスや不正なボディはInvalidResponse、
// 通信エラーはNetworkErrorとして *VerifyError を返す。
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	if token == "" {
		return nil, newVerifyError(ReasonUnauthorized, "empty token")
	}

	body, err := json.Marshal(validateTokenRequest{Token: token})
	if err != nil {
		return nil, newVerifyError(ReasonInvalidResponse, "failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newVerifyError(ReasonNetworkError, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("token verification request failed",
			slog.String("error", err.Error()),
		)
		return nil, &VerifyError{Reason: ReasonNetworkError, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseSize))
	if err != nil {
		return nil, &VerifyError{Reason: ReasonNetworkError, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, newVerifyError(ReasonUnauthorized, "verification endpoint returned %d", resp.StatusCode)
	default:
		v.logger.Warn("token verification endpoint returned unexpected status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, newVerifyError(ReasonInvalidResponse, "verification endpoint returned %d", resp.StatusCode)
	}

	var claims model.Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, newVerifyError(ReasonInvalidResponse, "failed to parse claims: %v", err)
	}
	if claims.UID == "" {
		return nil, newVerifyError(ReasonInvalidResponse, "claims have no uid")
	}

	return &claims, nil
}

// compile-time interface check
var _ Verifier = (*RemoteVerifier)(nil)
