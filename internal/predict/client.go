package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/souvenir/internal/model"
)

const (
	// predictPath はドメインAPIの画像分類エンドポイント。
	predictPath = "/api/predict"
	// imageField はmultipartの画像フィールド名。
	imageField = "image"
	// maxResponseSize は応答として読み込む最大バイト数。
	maxResponseSize = 1 << 20
)

// Upload は分類対象の画像。
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Client はドメインAPIの画像分類エンドポイントを呼び出す。
type Client struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient はClientを生成する。timeoutはリクエスト全体（送信から応答本文の読み込みまで）に適用する。
func NewClient(httpClient *http.Client, apiBaseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(apiBaseURL, "/") + predictPath,
		timeout:    timeout,
		logger:     logger,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Predict は画像を1回だけ送信し、応答とタイマーの競合結果を返す。
// タイマーが先に満了した場合はcontextのキャンセルで送信中のリクエストも中断する。
func (c *Client) Predict(ctx context.Context, idToken string, up Upload) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeMultipart(up)
	if err != nil {
		return applicationErrorOutcome(err.Error(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return applicationErrorOutcome(err.Error(), err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if idToken != "" {
		req.Header.Set("Authorization", "Bearer "+idToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return c.transportFailure(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("prediction API returned status %d", resp.StatusCode)
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			if env.Message != "" {
				msg = env.Message
			} else if env.Error != "" {
				msg = env.Error
			}
		}
		c.logger.Warn("prediction API returned non-2xx status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return applicationErrorOutcome(msg, fmt.Errorf("status %d", resp.StatusCode))
	}

	result, err := decodeResult(raw)
	if err != nil {
		c.logger.Warn("prediction API returned invalid response",
			slog.String("error", err.Error()),
		)
		return applicationErrorOutcome(MessageInvalidResponse, err)
	}
	return successOutcome(result)
}

// transportFailure は通信エラーをTimeoutまたはApplicationErrorに振り分ける。
func (c *Client) transportFailure(ctx context.Context, err error) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("prediction request timed out",
			slog.Duration("timeout", c.timeout),
		)
		return timeoutOutcome(err)
	}

	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) {
		msg = uerr.Err.Error()
	}
	c.logger.Error("prediction request failed",
		slog.String("error", err.Error()),
	)
	return applicationErrorOutcome(msg, err)
}

// decodeResult は成功エンベロープから結果を取り出す。
// data に prediction, category, related_products のいずれかが欠けていればエラーを返す。
func decodeResult(raw []byte) (*model.PredictionResult, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("data is not an object")
	}
	for _, key := range []string{"prediction", "category", "related_products"} {
		v, ok := fields[key]
		if !ok || len(v) == 0 || string(v) == "null" {
			return nil, fmt.Errorf("data has no %s", key)
		}
	}

	var result model.PredictionResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse prediction: %w", err)
	}
	return &result, nil
}

// encodeMultipart は画像をフィールド "image" のmultipartボディに詰める。
func encodeMultipart(up Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := up.Filename
	if filename == "" {
		filename = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, filename))
	h.Set("Content-Type", up.ContentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
