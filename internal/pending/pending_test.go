package pending

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/challenge"
)

type failure struct {
	chatID, userID int64
	messageID      int
	flooding       bool
}

func newTestChallenge(t *testing.T) challenge.Challenge {
	t.Helper()
	c, err := challenge.NewGenerator(nil, 1, challenge.WithSeed(3)).NewChallenge(context.Background(), challenge.KindArithmetic, "en")
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}
	return c
}

func TestExpiryCallsFailureOnce(t *testing.T) {
	t.Parallel()

	failures := make(chan failure, 4)
	r := NewRegistry(func(chatID, userID int64, messageID int, flooding bool) {
		failures <- failure{chatID, userID, messageID, flooding}
	})

	_, err := r.Register(Challenge{ChatID: 100, UserID: 7, PromptMessageID: 42, Flooding: true, Challenge: newTestChallenge(t)}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case f := <-failures:
		if f != (failure{100, 7, 42, true}) {
			t.Fatalf("unexpected failure args %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatalf("failure callback was not called")
	}
	select {
	case f := <-failures:
		t.Fatalf("failure callback called twice: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
	if r.Len() != 0 {
		t.Fatalf("expired challenge must leave the registry")
	}
}

func TestResolvedChallengeNeverExpires(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	r := NewRegistry(func(int64, int64, int, bool) { failures.Add(1) })

	key, err := r.Register(Challenge{ChatID: 100, UserID: 7, PromptMessageID: 42, Challenge: newTestChallenge(t)}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	c, ok := r.ByPrompt(100, 42)
	if !ok || c.UserID != 7 || c.Status != "pending" || c.Kind != challenge.KindArithmetic {
		t.Fatalf("unexpected lookup result %+v, %v", c, ok)
	}

	won, ok := r.TryResolve(key)
	if !ok {
		t.Fatalf("expected to win the resolve")
	}
	if won.Status != "resolved" || won.Timeout != 20*time.Millisecond {
		t.Fatalf("unexpected resolved challenge %+v", won)
	}
	if _, ok := r.TryResolve(key); ok {
		t.Fatalf("second resolve must lose")
	}
	if _, ok := r.Cancel(key); ok {
		t.Fatalf("cancel after resolve must be a no-op")
	}

	time.Sleep(60 * time.Millisecond)
	if failures.Load() != 0 {
		t.Fatalf("failure callback fired after resolve")
	}
}

func TestDuplicatePromptRejected(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	defer r.Close()

	c := Challenge{ChatID: 1, UserID: 2, PromptMessageID: 3, Challenge: newTestChallenge(t)}
	if _, err := r.Register(c, time.Minute); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register(c, time.Minute); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestCancelUserSuppressesExpiry(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	r := NewRegistry(func(int64, int64, int, bool) { failures.Add(1) })

	for i, user := range []int64{7, 7, 8} {
		_, err := r.Register(Challenge{ChatID: 100, UserID: user, PromptMessageID: 10 + i, Challenge: newTestChallenge(t)}, 30*time.Millisecond)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if got := len(r.ByUser(100, 7)); got != 2 {
		t.Fatalf("expected 2 challenges for user 7, got %d", got)
	}
	cancelled := r.CancelUser(100, 7)
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 cancelled challenges, got %d", len(cancelled))
	}
	for _, c := range cancelled {
		if c.Status != "cancelled" {
			t.Fatalf("unexpected status %q", c.Status)
		}
	}
	if again := r.CancelUser(100, 7); len(again) != 0 {
		t.Fatalf("cancel must be idempotent, got %d", len(again))
	}

	time.Sleep(80 * time.Millisecond)
	if failures.Load() != 1 {
		t.Fatalf("expected only user 8 to expire, got %d failures", failures.Load())
	}
}

func TestResolveRacesExpiryExactlyOnce(t *testing.T) {
	t.Parallel()

	for round := 0; round < 100; round++ {
		var expired atomic.Int32
		r := NewRegistry(func(int64, int64, int, bool) { expired.Add(1) })
		key, err := r.Register(Challenge{ChatID: 1, UserID: 1, PromptMessageID: round, Challenge: newTestChallenge(t)}, time.Millisecond)
		if err != nil {
			t.Fatalf("register: %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(time.Millisecond)
				if _, ok := r.TryResolve(key); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		time.Sleep(5 * time.Millisecond)

		if total := wins.Load() + expired.Load(); total != 1 {
			t.Fatalf("round %d: expected exactly one terminal transition, got %d wins and %d expiries", round, wins.Load(), expired.Load())
		}
	}
}

func TestListActiveAndClose(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	for i := 1; i <= 3; i++ {
		if _, err := r.Register(Challenge{ChatID: int64(i), UserID: int64(i), PromptMessageID: i, Challenge: newTestChallenge(t)}, time.Minute); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	active := r.ListActive()
	if len(active) != 3 {
		t.Fatalf("expected 3 active challenges, got %d", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].CreatedAt.Before(active[i-1].CreatedAt) {
			t.Fatalf("snapshot is not ordered by creation")
		}
	}

	closed := r.Close()
	if len(closed) != 3 || r.Len() != 0 {
		t.Fatalf("close must cancel every challenge, got %d closed and %d left", len(closed), r.Len())
	}
	if _, err := r.Register(Challenge{ChatID: 9, PromptMessageID: 9}, time.Minute); err == nil {
		t.Fatalf("register after close must fail")
	}
}

func TestObserverSeesEveryTransition(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	expired := make(chan struct{}, 1)
	r := NewRegistry(func(int64, int64, int, bool) { expired <- struct{}{} }, WithObserver(func(c Challenge) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Status)
	}))

	resolved, _ := r.Register(Challenge{ChatID: 1, UserID: 1, PromptMessageID: 1, Challenge: newTestChallenge(t)}, time.Minute)
	cancelled, _ := r.Register(Challenge{ChatID: 1, UserID: 2, PromptMessageID: 2, Challenge: newTestChallenge(t)}, time.Minute)
	if _, err := r.Register(Challenge{ChatID: 1, UserID: 3, PromptMessageID: 3, Challenge: newTestChallenge(t)}, 5*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.TryResolve(resolved)
	if c, ok := r.Cancel(cancelled); !ok || c.Status != "cancelled" {
		t.Fatalf("unexpected cancel result %+v, %v", c, ok)
	}
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatalf("expiry did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	counts := map[string]int{}
	for _, s := range seen {
		counts[s]++
	}
	if counts["pending"] != 3 || counts["resolved"] != 1 || counts["cancelled"] != 1 || counts["expired"] != 1 {
		t.Fatalf("unexpected observed transitions %v", seen)
	}
}
