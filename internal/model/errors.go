package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, predict, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidImageType   = "INVALID_IMAGE_TYPE"
	ErrCodeImageTooLarge      = "IMAGE_TOO_LARGE"
	ErrCodeImageRequired      = "IMAGE_REQUIRED"
	ErrCodeImageURLBlocked    = "IMAGE_URL_BLOCKED"
	ErrCodePredictionFailed   = "PREDICTION_FAILED"
	ErrCodePredictionTimeout  = "PREDICTION_TIMEOUT"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	ErrCodeUnknownResource    = "UNKNOWN_RESOURCE"
	ErrCodeCSRFFailed         = "CSRF_FAILED"
)

// NewUnauthorizedError は認証が必要な操作に対するエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Please log in and try again.",
	}
}

// NewInvalidCredentialsError はログイン・登録失敗時のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email or password is incorrect.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewInvalidRequestError はリクエスト形式の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Fix the request and submit it again.",
	}
}

// NewInvalidImageTypeError は画像以外のファイルが指定された場合のエラーを生成する。
func NewInvalidImageTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageType,
		Message:  fmt.Sprintf("Only image files are allowed (got %q).", contentType),
		Category: "validation",
		Action:   "Choose a JPEG, PNG or other image file.",
	}
}

// NewImageTooLargeError は画像サイズの上限超過エラーを生成する。
func NewImageTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("Image size must not exceed %d MB.", maxBytes/(1024*1024)),
		Category: "validation",
		Action:   "Resize or compress the image and upload it again.",
	}
}

// NewImageRequiredError は画像が添付されていない場合のエラーを生成する。
func NewImageRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeImageRequired,
		Message:  "Please select an image to upload.",
		Category: "validation",
		Action:   "Attach an image file or provide an image URL.",
	}
}

// NewImageURLBlockedError は画像URLがセキュリティポリシーで拒否された場合のエラーを生成する。
func NewImageURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeImageURLBlocked,
		Message:  "The image URL is not allowed by the security policy.",
		Category: "validation",
		Action:   "Use a publicly reachable http(s) image URL.",
	}
}

// NewPredictionFailedError は画像分類のアプリケーションエラーを生成する。
func NewPredictionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePredictionFailed,
		Message:  reason,
		Category: "predict",
		Action:   "Please upload the image again.",
	}
}

// NewPredictionTimeoutError は画像分類のタイムアウトエラーを生成する。
func NewPredictionTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodePredictionTimeout,
		Message:  "Request timeout. Please upload the image again.",
		Category: "predict",
		Action:   "Please upload the image again.",
	}
}

// NewUpstreamFailedError はドメインAPI呼び出し失敗時の汎用エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "Something went wrong while contacting the marketplace.",
		Category: "catalog",
		Action:   "Please try again in a moment.",
	}
}

// NewResourceNotFoundError はリソース未検出エラーを生成する。
func NewResourceNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Category: "catalog",
		Action:   "Check the identifier and try again.",
	}
}

// NewUnknownResourceError は管理画面で扱えないリソース名が指定された場合のエラーを生成する。
func NewUnknownResourceError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownResource,
		Message:  fmt.Sprintf("Unknown resource: %s", resource),
		Category: "validation",
		Action:   "Choose one of the dashboard resources.",
	}
}

// NewCSRFFailedError は状態変更リクエストのCSRFトークン不一致を表すエラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "The form has expired or was submitted from another site.",
		Category: "auth",
		Action:   "Reload the page and submit again.",
	}
}
