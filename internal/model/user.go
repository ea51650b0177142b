// Package model はドメインモデルを定義する。
package model

import "time"

// User はマーケットプレイスの利用者プロフィールを表す。
// 実体はドメインAPIの /api/users が保持する。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
