package predict

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/souvenir/internal/model"
	"github.com/hitoshi/souvenir/internal/security"
)

// Predictor は画像分類の送信を行うインターフェース。
type Predictor interface {
	Predict(ctx context.Context, idToken string, up Upload) Outcome
}

// ImageFetcher は画像URLから画像を取得するインターフェース。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

// Metrics は予測フローが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type Metrics interface {
	PredictStarted()
	PredictFinished()
	RecordPredictOutcome(outcome string)
	RecordPredictLatency(duration time.Duration)
}

// Flow は検証、送信、後片付けをまとめた画像分類フロー。
// 処理中フラグ（InFlight）は結果の種類にかかわらず必ず解除される。
type Flow struct {
	predictor Predictor
	fetcher   ImageFetcher
	maxBytes  int64
	metrics   Metrics
	logger    *slog.Logger

	inFlight atomic.Int64
}

// NewFlow はFlowを生成する。fetcherがnilの場合、画像URLでの送信は受け付けない。
func NewFlow(predictor Predictor, fetcher ImageFetcher, maxBytes int64, metrics Metrics, logger *slog.Logger) *Flow {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Flow{
		predictor: predictor,
		fetcher:   fetcher,
		maxBytes:  maxBytes,
		metrics:   metrics,
		logger:    logger,
	}
}

// MaxBytes はアップロード画像の上限を返す。
func (f *Flow) MaxBytes() int64 {
	return f.maxBytes
}

// InFlight は処理中の送信数を返す。
func (f *Flow) InFlight() int64 {
	return f.inFlight.Load()
}

// Submit は画像を検証してから送信する。
// 検証に失敗した場合は *model.APIError を返し、ネットワーク呼び出しは行わない。
func (f *Flow) Submit(ctx context.Context, idToken string, up Upload) (Outcome, error) {
	if err := ValidateUpload(up.ContentType, up.Size, f.maxBytes); err != nil {
		return Outcome{}, err
	}
	return f.run(ctx, idToken, up), nil
}

// SubmitURL は画像URLから画像を取得し、Submitと同じ検証と送信を行う。
func (f *Flow) SubmitURL(ctx context.Context, idToken, rawURL string) (Outcome, error) {
	if f.fetcher == nil {
		return Outcome{}, model.NewImageRequiredError()
	}

	img, err := f.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		f.logger.Warn("failed to fetch image URL",
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, security.ErrBlockedURL):
			return Outcome{}, model.NewImageURLBlockedError()
		case errors.Is(err, security.ErrImageTooLarge):
			return Outcome{}, model.NewImageTooLargeError(f.maxBytes)
		default:
			return Outcome{}, model.NewInvalidRequestError("the image URL could not be downloaded")
		}
	}

	return f.Submit(ctx, idToken, Upload{
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Size:        int64(len(img.Data)),
		Body:        bytes.NewReader(img.Data),
	})
}

func (f *Flow) run(ctx context.Context, idToken string, up Upload) (outcome Outcome) {
	f.inFlight.Add(1)
	f.metrics.PredictStarted()
	start := time.Now()

	defer func() {
		f.inFlight.Add(-1)
		f.metrics.PredictFinished()
		f.metrics.RecordPredictLatency(time.Since(start))
		f.metrics.RecordPredictOutcome(outcome.Kind.String())

		attrs := []any{
			slog.String("outcome", outcome.Kind.String()),
			slog.Int64("size", up.Size),
			slog.Duration("elapsed", time.Since(start)),
		}
		if outcome.Err != nil {
			attrs = append(attrs, slog.String("error", outcome.Err.Error()))
		}
		f.logger.Info("prediction settled", attrs...)
	}()

	return f.predictor.Predict(ctx, idToken, up)
}
