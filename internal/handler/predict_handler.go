package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
	"github.com/hitoshi/souvenir/internal/predict"
)

// multipartOverhead はmultipartの境界やフィールドに見込むバイト数。
const multipartOverhead = 1 << 20

// PredictFlow は画像分類ハンドラーが必要とする予測フローの操作。
type PredictFlow interface {
	Submit(ctx context.Context, idToken string, up predict.Upload) (predict.Outcome, error)
	SubmitURL(ctx context.Context, idToken, rawURL string) (predict.Outcome, error)
	MaxBytes() int64
}

// PredictHandler は画像分類のHTTPハンドラー。
type PredictHandler struct {
	flow   PredictFlow
	logger *slog.Logger
}

// NewPredictHandler はPredictHandlerを生成する。
func NewPredictHandler(flow PredictFlow, logger *slog.Logger) *PredictHandler {
	return &PredictHandler{flow: flow, logger: logger}
}

type predictPage struct {
	MaxBytes int64  `json:"max_bytes"`
	Accept   string `json:"accept"`
	Field    string `json:"field"`
}

// Page はアップロードページのデータを返す。
// GET /predict
func (h *PredictHandler) Page(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, predictPage{
		MaxBytes: h.flow.MaxBytes(),
		Accept:   "image/*",
		Field:    "image",
	})
}

// Submit は画像（フィールドimage）または画像URL（フィールドimage_url）を受け取り、分類結果を返す。
// POST /predict
//
//	200 成功 / 400, 413 入力不備 / 502 アプリケーションエラー / 504 タイムアウト
func (h *PredictHandler) Submit(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.flow.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(maxBytes))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("multipart/form-data body is required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	idToken := idTokenFromRequest(r)

	var (
		outcome predict.Outcome
		err     error
	)
	file, header, ferr := r.FormFile("image")
	switch {
	case ferr == nil:
		defer file.Close()
		outcome, err = h.flow.Submit(r.Context(), idToken, predict.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		})
	case strings.TrimSpace(r.FormValue("image_url")) != "":
		outcome, err = h.flow.SubmitURL(r.Context(), idToken, strings.TrimSpace(r.FormValue("image_url")))
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewImageRequiredError())
		return
	}

	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = model.NewInvalidRequestError(err.Error())
		}
		status := http.StatusBadRequest
		if apiErr.Code == model.ErrCodeImageTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	switch outcome.Kind {
	case predict.Success:
		writeData(w, http.StatusOK, outcome.Result)
	case predict.Timeout:
		middleware.WriteErrorResponse(w, http.StatusGatewayTimeout, model.NewPredictionTimeoutError())
	default:
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewPredictionFailedError(outcome.Message))
	}
}
