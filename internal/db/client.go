// Package db defines the durable state of the bot: the restriction ledger
// and per-chat languages. Implementations live in subpackages.
package db

import "context"

type Client interface {
	// GetRestriction returns nil without error when there is no record.
	GetRestriction(ctx context.Context, chatID, userID int64) (*Restriction, error)
	SetRestriction(ctx context.Context, restriction *Restriction) error
	// DeleteRestriction is a no-op for a missing record.
	DeleteRestriction(ctx context.Context, chatID, userID int64) error
	GetRestrictions(ctx context.Context, chatID int64) ([]*Restriction, error)

	// GetLanguage returns an empty string when the chat has no language set.
	GetLanguage(ctx context.Context, chatID int64) (string, error)
	SetLanguage(ctx context.Context, chatID int64, language string) error

	Close() error
}
