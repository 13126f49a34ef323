package db

// Restriction records who restricted a member and until when. Until is a
// unix timestamp, 0 means indefinitely.
type Restriction struct {
	ChatID       int64 `db:"chat_id" json:"-"`
	UserID       int64 `db:"user_id" json:"-"`
	RestrictedBy int64 `db:"restricted_by" json:"restricted_by"`
	Until        int64 `db:"until" json:"until"`
}

type ChatLanguage struct {
	ChatID   int64  `db:"chat_id"`
	Language string `db:"language"`
}
