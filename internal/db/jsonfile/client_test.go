package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/dbtest"
)

func TestJSONClientContract(t *testing.T) {
	t.Parallel()

	client, err := NewJSONClient(t.TempDir(), "record.json")
	if err != nil {
		t.Fatalf("new json client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	dbtest.RunClientTests(t, client)
}

func TestJSONClientSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	client, err := NewJSONClient(dir, "record.json")
	if err != nil {
		t.Fatalf("new json client: %v", err)
	}
	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: -1001, UserID: 42, RestrictedBy: 9, Until: 0}); err != nil {
		t.Fatalf("set restriction: %v", err)
	}
	if err := client.SetLanguage(ctx, -1001, "zh"); err != nil {
		t.Fatalf("set language: %v", err)
	}

	reopened, err := NewJSONClient(dir, "record.json")
	if err != nil {
		t.Fatalf("reopen json client: %v", err)
	}
	got, err := reopened.GetRestriction(ctx, -1001, 42)
	if err != nil {
		t.Fatalf("get restriction: %v", err)
	}
	if got == nil || got.RestrictedBy != 9 || got.Until != 0 {
		t.Fatalf("unexpected restriction after restart: %+v", got)
	}
	if lang, _ := reopened.GetLanguage(ctx, -1001); lang != "zh" {
		t.Fatalf("unexpected language after restart: %q", lang)
	}
}

func TestJSONClientFileLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	client, err := NewJSONClient(dir, "record.json")
	if err != nil {
		t.Fatalf("new json client: %v", err)
	}
	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: 100, UserID: 7, RestrictedBy: 1, Until: 1234}); err != nil {
		t.Fatalf("set restriction: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "record.json"))
	if err != nil {
		t.Fatalf("read record file: %v", err)
	}
	var layout struct {
		RestrictRecord map[string]map[string]map[string]int64 `json:"restrict_record"`
	}
	if err := json.Unmarshal(data, &layout); err != nil {
		t.Fatalf("decode record file: %v", err)
	}
	entry := layout.RestrictRecord["100"]["7"]
	if entry["restricted_by"] != 1 || entry["until"] != 1234 {
		t.Fatalf("unexpected record layout: %s", data)
	}
}

func TestJSONClientRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "record.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := NewJSONClient(dir, "record.json"); err == nil {
		t.Fatalf("expected corrupt record file to fail")
	}
}
