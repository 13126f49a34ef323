// Package pending tracks the verification prompts that are waiting for an
// answer, one per (chat, prompt message).
package pending

import (
	"time"

	"github.com/pkg/errors"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/challenge"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/timers"
)

type PromptKey struct {
	ChatID    int64
	MessageID int
}

// Challenge is a challenge issued to one user in one chat.
type Challenge struct {
	ChatID          int64               `json:"chat_id"`
	UserID          int64               `json:"user_id"`
	PromptMessageID int                 `json:"prompt_message_id"`
	Locale          string              `json:"locale"`
	Kind            challenge.Kind      `json:"kind"`
	Flooding        bool                `json:"flooding"`
	CreatedAt       time.Time           `json:"created_at"`
	Timeout         time.Duration       `json:"timeout"`
	Status          string              `json:"status"`
	Challenge       challenge.Challenge `json:"-"`
}

func (c Challenge) Key() PromptKey {
	return PromptKey{ChatID: c.ChatID, MessageID: c.PromptMessageID}
}

// FailureFunc is called once for every challenge that runs out of time.
type FailureFunc func(chatID, userID int64, promptMessageID int, wasFlooding bool)

// Observer sees every challenge once when it is registered and once when it
// leaves the pending state, with Status set accordingly.
type Observer func(c Challenge)

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observe = o
	}
}

type Registry struct {
	timers    *timers.Registry[PromptKey, Challenge]
	onFailure FailureFunc
	observe   Observer
}

func NewRegistry(onFailure FailureFunc, opts ...Option) *Registry {
	r := &Registry{
		timers:    timers.New[PromptKey, Challenge](),
		onFailure: onFailure,
		observe:   func(Challenge) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register starts the countdown for c.
func (r *Registry) Register(c Challenge, timeout time.Duration) (PromptKey, error) {
	if c.Challenge != nil {
		c.Kind = c.Challenge.Kind()
	}
	key := c.Key()
	err := r.timers.Register(key, c, timeout, func(_ PromptKey, expired Challenge) {
		expired.Status = timers.Expired.String()
		r.observe(expired)
		if r.onFailure != nil {
			r.onFailure(expired.ChatID, expired.UserID, expired.PromptMessageID, expired.Flooding)
		}
	})
	if err != nil {
		return PromptKey{}, errors.WithMessagef(err, "register challenge for user %d in chat %d", c.UserID, c.ChatID)
	}
	c.Status = timers.Pending.String()
	r.observe(c)
	return key, nil
}

// ByPrompt looks up the pending challenge attached to a prompt message.
func (r *Registry) ByPrompt(chatID int64, messageID int) (Challenge, bool) {
	entry, ok := r.timers.Get(PromptKey{ChatID: chatID, MessageID: messageID})
	if !ok {
		return Challenge{}, false
	}
	return fromEntry(entry), true
}

// ByUser returns every pending challenge of a user in a chat.
func (r *Registry) ByUser(chatID, userID int64) []Challenge {
	entries := r.timers.Find(func(e timers.Entry[PromptKey, Challenge]) bool {
		return e.Key.ChatID == chatID && e.Value.UserID == userID
	})
	return fromEntries(entries)
}

// TryResolve reports whether the caller won the challenge against its timer
// and any concurrent cancellation.
func (r *Registry) TryResolve(key PromptKey) (Challenge, bool) {
	entry, ok := r.timers.Take(key)
	if !ok {
		return Challenge{}, false
	}
	c := fromEntry(entry)
	r.observe(c)
	return c, true
}

// Cancel tears the challenge down without calling the failure callback.
func (r *Registry) Cancel(key PromptKey) (Challenge, bool) {
	entry, ok := r.timers.Withdraw(key)
	if !ok {
		return Challenge{}, false
	}
	c := fromEntry(entry)
	r.observe(c)
	return c, true
}

// CancelUser cancels every pending challenge of a user in a chat and
// returns the ones this call cancelled.
func (r *Registry) CancelUser(chatID, userID int64) []Challenge {
	var cancelled []Challenge
	for _, c := range r.ByUser(chatID, userID) {
		if c, ok := r.Cancel(c.Key()); ok {
			cancelled = append(cancelled, c)
		}
	}
	return cancelled
}

// ListActive returns a consistent snapshot of pending challenges.
func (r *Registry) ListActive() []Challenge {
	return fromEntries(r.timers.List())
}

func (r *Registry) Len() int {
	return r.timers.Len()
}

// Close cancels everything still pending and refuses new registrations.
func (r *Registry) Close() []Challenge {
	cancelled := fromEntries(r.timers.Close())
	for _, c := range cancelled {
		r.observe(c)
	}
	return cancelled
}

func fromEntry(e timers.Entry[PromptKey, Challenge]) Challenge {
	c := e.Value
	c.CreatedAt = e.CreatedAt
	c.Timeout = e.Timeout
	c.Status = e.State.String()
	return c
}

func fromEntries(entries []timers.Entry[PromptKey, Challenge]) []Challenge {
	res := make([]Challenge, 0, len(entries))
	for _, e := range entries {
		res = append(res, fromEntry(e))
	}
	return res
}
