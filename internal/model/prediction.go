package model

import "encoding/json"

// Prediction は画像分類の推定値を表す。
// Accuration はドメインAPIのフィールド名をそのまま受け取る。
type Prediction struct {
	Accuration float64 `json:"accuration"`
	Result     string  `json:"result"`
}

// PredictionResult は画像分類APIの成功レスポンスを表す。
type PredictionResult struct {
	Prediction      Prediction      `json:"prediction"`
	Category        json.RawMessage `json:"category"`
	RelatedProducts json.RawMessage `json:"related_products"`
}
