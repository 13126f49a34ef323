// Package ledger remembers who restricted whom, so lifting a verification
// restriction restores any restriction a moderator imposed on their own.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
)

// LiftFunc applies a lift target on the platform. An until equal to the
// current time means the restriction is removed completely.
type LiftFunc func(ctx context.Context, until int64) error

type Ledger struct {
	mu    sync.Mutex
	store db.Client
}

func New(store db.Client) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) RecordRestriction(ctx context.Context, chatID, userID, restrictedBy, until int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.SetRestriction(ctx, &db.Restriction{
		ChatID:       chatID,
		UserID:       userID,
		RestrictedBy: restrictedBy,
		Until:        until,
	})
	return errors.WithMessage(err, "record restriction")
}

func (l *Ledger) ClearRestriction(ctx context.Context, chatID, userID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return errors.WithMessage(l.store.DeleteRestriction(ctx, chatID, userID), "clear restriction")
}

// ApplyStatus records a restriction status transition made by actorID.
// Changes made by the bot itself or by the member are not restrictions to
// preserve and are ignored.
func (l *Ledger) ApplyStatus(ctx context.Context, chatID, userID, actorID, selfID int64, restricted bool, until int64) error {
	if actorID == selfID || actorID == userID {
		return nil
	}
	log.WithFields(log.Fields{
		"context":    "ledger",
		"chat_id":    chatID,
		"user_id":    userID,
		"actor_id":   actorID,
		"restricted": restricted,
	}).Debug("restriction status changed")

	if restricted {
		return l.RecordRestriction(ctx, chatID, userID, actorID, until)
	}
	return l.ClearRestriction(ctx, chatID, userID)
}

// ResolveLiftTarget returns the stored until of a restriction imposed by
// someone other than selfID, and now otherwise.
func (l *Ledger) ResolveLiftTarget(ctx context.Context, chatID, userID, selfID int64, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolve(ctx, chatID, userID, selfID, now)
}

// Lift resolves the target and applies it while holding the ledger, so a
// concurrent status change cannot slip in between.
func (l *Ledger) Lift(ctx context.Context, chatID, userID, selfID int64, now time.Time, lift LiftFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, err := l.resolve(ctx, chatID, userID, selfID, now)
	if err != nil {
		return err
	}
	return lift(ctx, until)
}

func (l *Ledger) resolve(ctx context.Context, chatID, userID, selfID int64, now time.Time) (int64, error) {
	r, err := l.store.GetRestriction(ctx, chatID, userID)
	if err != nil {
		return 0, errors.WithMessage(err, "resolve lift target")
	}
	if r != nil && r.RestrictedBy != selfID {
		return r.Until, nil
	}
	return now.Unix(), nil
}
