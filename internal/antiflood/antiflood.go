// Package antiflood detects join bursts and keeps the per-chat aggregation
// mode that folds repeated verification notices into one counter message.
package antiflood

import (
	"sync"
	"time"
)

// State is a snapshot of a chat's aggregation mode.
type State struct {
	Enabled              bool `json:"enabled"`
	Counter              int  `json:"counter"`
	AggregationMessageID int  `json:"aggregation_message_id,omitempty"`
}

// Chat holds the flood window and aggregation mode of one chat.
type Chat struct {
	mu     sync.Mutex
	period time.Duration
	count  int
	events []time.Time
	state  State
}

// RecordJoin evicts joins older than the period, appends ts and reports
// whether the window reached the flood threshold.
func (c *Chat) RecordJoin(ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.events[:0]
	for _, e := range c.events {
		if ts.Sub(e) < c.period {
			kept = append(kept, e)
		}
	}
	c.events = append(kept, ts)
	return len(c.events) >= c.count
}

// Enable turns aggregation on with a fresh counter.
func (c *Chat) Enable(anchorMessageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{Enabled: true, AggregationMessageID: anchorMessageID}
}

// Suppress counts one folded notice. The returned state tells the caller
// which anchor message to update; nothing changes while disabled.
func (c *Chat) Suppress() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Enabled {
		c.state.Counter++
	}
	return c.state
}

// Disable turns aggregation off and returns the state it had.
func (c *Chat) Disable() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	final := c.state
	c.state = State{}
	return final
}

func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type Monitor struct {
	mu     sync.Mutex
	period time.Duration
	count  int
	chats  map[int64]*Chat
}

func NewMonitor(period time.Duration, count int) *Monitor {
	if count < 1 {
		count = 1
	}
	return &Monitor{
		period: period,
		count:  count,
		chats:  map[int64]*Chat{},
	}
}

// For returns the context object of a chat, creating it on first use. It
// lives as long as the monitor.
func (m *Monitor) For(chatID int64) *Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[chatID]
	if !ok {
		c = &Chat{period: m.period, count: m.count}
		m.chats[chatID] = c
	}
	return c
}

func (m *Monitor) RecordJoinAndCheckFlood(chatID int64, ts time.Time) bool {
	return m.For(chatID).RecordJoin(ts)
}

func (m *Monitor) Enable(chatID int64, anchorMessageID int) {
	m.For(chatID).Enable(anchorMessageID)
}

// RecordSuppressed returns the running counter, unchanged when disabled.
func (m *Monitor) RecordSuppressed(chatID int64) int {
	return m.For(chatID).Suppress().Counter
}

// Disable returns the final counter.
func (m *Monitor) Disable(chatID int64) int {
	return m.For(chatID).Disable().Counter
}

func (m *Monitor) State(chatID int64) State {
	return m.For(chatID).State()
}
