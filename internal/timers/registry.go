// Package timers keeps a set of keyed entries, each owning an expiry timer,
// and guarantees that every entry leaves the Pending state exactly once.
package timers

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type State int32

const (
	Pending State = iota
	Resolved
	Expired
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExpireFunc runs after the entry has transitioned to Expired, outside of the registry lock.
type ExpireFunc[K comparable, V any] func(key K, value V)

var (
	ErrDuplicate = errors.New("entry is already pending")
	ErrClosed    = errors.New("registry is closed")
)

// Entry is a point-in-time copy of a registered value.
type Entry[K comparable, V any] struct {
	Key       K
	Value     V
	CreatedAt time.Time
	Timeout   time.Duration
	State     State
}

type item[K comparable, V any] struct {
	entry    Entry[K, V]
	timer    *time.Timer
	onExpire ExpireFunc[K, V]
}

type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*item[K, V]
	closed  bool
	now     func() time.Time
}

func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]*item[K, V]),
		now:     time.Now,
	}
}

// Register stores value as Pending under key and arms its expiry timer.
func (r *Registry[K, V]) Register(key K, value V, timeout time.Duration, onExpire ExpireFunc[K, V]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.entries[key]; ok {
		return ErrDuplicate
	}

	it := &item[K, V]{
		entry: Entry[K, V]{
			Key:       key,
			Value:     value,
			CreatedAt: r.now(),
			Timeout:   timeout,
			State:     Pending,
		},
		onExpire: onExpire,
	}
	r.entries[key] = it
	it.timer = time.AfterFunc(timeout, func() { r.expire(key, it) })
	return nil
}

// TryResolve moves the entry to Resolved. Only the caller that wins against
// the timer and any concurrent Cancel gets true.
func (r *Registry[K, V]) TryResolve(key K) bool {
	_, ok := r.finish(key, Resolved)
	return ok
}

// Cancel moves the entry to Cancelled and disarms the expiry callback.
// Calling it on an unknown or finished entry is a no-op.
func (r *Registry[K, V]) Cancel(key K) bool {
	_, ok := r.finish(key, Cancelled)
	return ok
}

// Withdraw behaves like Cancel but also returns the cancelled entry.
func (r *Registry[K, V]) Withdraw(key K) (Entry[K, V], bool) {
	return r.finish(key, Cancelled)
}

// Take behaves like TryResolve but also returns the resolved entry.
func (r *Registry[K, V]) Take(key K) (Entry[K, V], bool) {
	return r.finish(key, Resolved)
}

func (r *Registry[K, V]) finish(key K, state State) (Entry[K, V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.entries[key]
	if !ok || it.entry.State != Pending {
		return Entry[K, V]{}, false
	}
	it.entry.State = state
	delete(r.entries, key)
	it.timer.Stop()
	return it.entry, true
}

func (r *Registry[K, V]) expire(key K, it *item[K, V]) {
	r.mu.Lock()
	current, ok := r.entries[key]
	// The key may have been reused by a newer registration after this one finished.
	if !ok || current != it || it.entry.State != Pending {
		r.mu.Unlock()
		return
	}
	it.entry.State = Expired
	delete(r.entries, key)
	entry := it.entry
	r.mu.Unlock()

	if it.onExpire != nil {
		it.onExpire(entry.Key, entry.Value)
	}
}

// Get returns a copy of the pending entry stored under key.
func (r *Registry[K, V]) Get(key K) (Entry[K, V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.entries[key]
	if !ok {
		return Entry[K, V]{}, false
	}
	return it.entry, true
}

// Find returns copies of all pending entries accepted by match.
func (r *Registry[K, V]) Find(match func(Entry[K, V]) bool) []Entry[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []Entry[K, V]
	for _, it := range r.entries {
		if match(it.entry) {
			res = append(res, it.entry)
		}
	}
	return res
}

// List returns a snapshot of every pending entry, oldest first.
func (r *Registry[K, V]) List() []Entry[K, V] {
	res := r.Find(func(Entry[K, V]) bool { return true })
	sortByCreation(res)
	return res
}

func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close cancels every pending entry without running expiry callbacks and
// rejects further registrations.
func (r *Registry[K, V]) Close() []Entry[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	cancelled := make([]Entry[K, V], 0, len(r.entries))
	for key, it := range r.entries {
		it.timer.Stop()
		it.entry.State = Cancelled
		cancelled = append(cancelled, it.entry)
		delete(r.entries, key)
	}
	sortByCreation(cancelled)
	return cancelled
}

func sortByCreation[K comparable, V any](entries []Entry[K, V]) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
