package model

import "time"

// Member はサービス利用メンバーを表す。
type Member struct {
	ID        int64
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
