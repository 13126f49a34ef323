package sqlite

import (
	"context"
	"testing"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/dbtest"
)

func TestSQLiteClientContract(t *testing.T) {
	t.Parallel()

	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	dbtest.RunClientTests(t, client)
}

func TestSQLiteClientReopensWithData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	client, err := NewSQLiteClient(ctx, dir, "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: 1, UserID: 2, RestrictedBy: 3, Until: 4}); err != nil {
		t.Fatalf("set restriction: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteClient(ctx, dir, "test.db")
	if err != nil {
		t.Fatalf("reopen sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetRestriction(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get restriction: %v", err)
	}
	if got == nil || got.RestrictedBy != 3 || got.Until != 4 {
		t.Fatalf("unexpected restriction after reopen: %+v", got)
	}
}

func TestMigrationsCreateLedgerTables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	for _, table := range []string{"restrictions", "chat_languages"} {
		var name string
		err := client.db.GetContext(ctx, &name, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			t.Fatalf("table %q not found: %v", table, err)
		}
	}
}
