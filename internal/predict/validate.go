package predict

import (
	"strings"

	"github.com/hitoshi/souvenir/internal/model"
)

// DefaultMaxBytes はアップロード画像の既定の上限（3MiB）。
const DefaultMaxBytes int64 = 3 * 1024 * 1024

// ValidateUpload は送信前に画像のContent-Typeとサイズを検証する。
// Content-Typeは "image/" で始まり、サイズはmaxBytes以下でなければならない。
// maxBytesが0以下の場合は DefaultMaxBytes を使う。
func ValidateUpload(contentType string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return model.NewInvalidImageTypeError(contentType)
	}
	if size <= 0 {
		return model.NewImageRequiredError()
	}
	if size > maxBytes {
		return model.NewImageTooLargeError(maxBytes)
	}
	return nil
}
