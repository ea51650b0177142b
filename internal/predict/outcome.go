// Package predict は画像分類リクエストの送信と、タイムアウトとの競合結果の
// 調停を提供する。
//
// 1回の送信は必ず Success / ApplicationError / Timeout のいずれか1つの結果に
// 確定する。自動リトライは行わない。
package predict

import "github.com/hitoshi/souvenir/internal/model"

// Kind は画像分類の結果の種類。
type Kind int

const (
	// Success は期待した形式の応答を受け取ったことを示す。
	Success Kind = iota
	// ApplicationError は応答形式の不備、非2xx応答、通信エラーを示す。
	ApplicationError
	// Timeout は応答より先にタイマーが満了したことを示す。
	Timeout
)

// String はメトリクスのラベルに使う名前を返す。
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ApplicationError:
		return "application_error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

const (
	// MessageInvalidResponse は応答形式が不正な場合のメッセージ。
	MessageInvalidResponse = "Invalid response"
	// MessageTimeout はタイムアウト時のメッセージ。
	MessageTimeout = "Request timeout. Please upload the image again."
)

// Outcome は1回の画像分類リクエストの確定結果。
// Successの場合のみResultが設定される。
type Outcome struct {
	Kind    Kind
	Result  *model.PredictionResult
	Message string
	Err     error
}

func successOutcome(result *model.PredictionResult) Outcome {
	return Outcome{Kind: Success, Result: result}
}

func applicationErrorOutcome(message string, err error) Outcome {
	return Outcome{Kind: ApplicationError, Message: message, Err: err}
}

func timeoutOutcome(err error) Outcome {
	return Outcome{Kind: Timeout, Message: MessageTimeout, Err: err}
}
