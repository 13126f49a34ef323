package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/jsonfile"
)

const selfID = 999

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := jsonfile.NewJSONClient(t.TempDir(), "record.json")
	if err != nil {
		t.Fatalf("new json client: %v", err)
	}
	return New(store)
}

func TestLiftTargetIsNowWithoutRecord(t *testing.T) {
	t.Parallel()

	l := newLedger(t)
	now := time.Unix(1_700_000_000, 0)
	got, err := l.ResolveLiftTarget(context.Background(), 100, 7, selfID, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != now.Unix() {
		t.Fatalf("expected now, got %d", got)
	}
}

func TestLiftTargetIsNowForOwnRestriction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t)
	now := time.Unix(1_700_000_000, 0)
	if err := l.RecordRestriction(ctx, 100, 7, selfID, 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := l.ResolveLiftTarget(ctx, 100, 7, selfID, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != now.Unix() {
		t.Fatalf("own restriction must be lifted fully, got %d", got)
	}
}

func TestLiftTargetPreservesForeignRestriction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	for _, until := range []int64{0, now.Unix() - 3600, now.Unix() + 3600} {
		l := newLedger(t)
		if err := l.RecordRestriction(ctx, 100, 7, 42, until); err != nil {
			t.Fatalf("record: %v", err)
		}
		got, err := l.ResolveLiftTarget(ctx, 100, 7, selfID, now)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got != until {
			t.Fatalf("expected stored until %d, got %d", until, got)
		}
	}
}

func TestApplyStatusIgnoresSelfAndMember(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t)
	now := time.Unix(1_700_000_000, 0)

	if err := l.ApplyStatus(ctx, 100, 7, selfID, selfID, true, 0); err != nil {
		t.Fatalf("apply by self: %v", err)
	}
	if err := l.ApplyStatus(ctx, 100, 7, 7, selfID, true, 0); err != nil {
		t.Fatalf("apply by member: %v", err)
	}
	if got, _ := l.ResolveLiftTarget(ctx, 100, 7, selfID, now); got != now.Unix() {
		t.Fatalf("self and member changes must not be recorded, got %d", got)
	}

	if err := l.ApplyStatus(ctx, 100, 7, 42, selfID, true, 12345); err != nil {
		t.Fatalf("apply by moderator: %v", err)
	}
	if got, _ := l.ResolveLiftTarget(ctx, 100, 7, selfID, now); got != 12345 {
		t.Fatalf("moderator restriction must be preserved, got %d", got)
	}

	if err := l.ApplyStatus(ctx, 100, 7, 42, selfID, false, 0); err != nil {
		t.Fatalf("apply unrestrict: %v", err)
	}
	if got, _ := l.ResolveLiftTarget(ctx, 100, 7, selfID, now); got != now.Unix() {
		t.Fatalf("cleared record must lift fully, got %d", got)
	}
}

func TestLiftSerializesWithStatusChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t)
	now := time.Unix(1_700_000_000, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var lifted int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Lift(ctx, 100, 7, selfID, now, func(_ context.Context, until int64) error {
			close(entered)
			<-release
			lifted = until
			return nil
		})
	}()

	<-entered
	recorded := make(chan struct{})
	go func() {
		_ = l.RecordRestriction(ctx, 100, 7, 42, 0)
		close(recorded)
	}()

	select {
	case <-recorded:
		t.Fatalf("record must wait for the running lift")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	wg.Wait()
	<-recorded

	if lifted != now.Unix() {
		t.Fatalf("expected full lift, got %d", lifted)
	}
	if got, _ := l.ResolveLiftTarget(ctx, 100, 7, selfID, now); got != 0 {
		t.Fatalf("expected the later moderator restriction to win, got %d", got)
	}
}
