// Package dbtest holds the behaviour every db.Client must share.
package dbtest

import (
	"context"
	"testing"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
)

// RunClientTests exercises a fresh, empty client.
func RunClientTests(t *testing.T, client db.Client) {
	t.Helper()
	ctx := context.Background()

	got, err := client.GetRestriction(ctx, 100, 7)
	if err != nil {
		t.Fatalf("get missing restriction: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no restriction, got %+v", got)
	}
	if err := client.DeleteRestriction(ctx, 100, 7); err != nil {
		t.Fatalf("delete missing restriction: %v", err)
	}

	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: 100, UserID: 7, RestrictedBy: 1, Until: 0}); err != nil {
		t.Fatalf("set restriction: %v", err)
	}
	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: 100, UserID: 7, RestrictedBy: 2, Until: 1_900_000_000}); err != nil {
		t.Fatalf("overwrite restriction: %v", err)
	}
	if err := client.SetRestriction(ctx, &db.Restriction{ChatID: -100500, UserID: 8, RestrictedBy: 3, Until: 5}); err != nil {
		t.Fatalf("set restriction in another chat: %v", err)
	}

	got, err = client.GetRestriction(ctx, 100, 7)
	if err != nil {
		t.Fatalf("get restriction: %v", err)
	}
	if got == nil || got.ChatID != 100 || got.UserID != 7 || got.RestrictedBy != 2 || got.Until != 1_900_000_000 {
		t.Fatalf("unexpected restriction %+v", got)
	}

	list, err := client.GetRestrictions(ctx, -100500)
	if err != nil {
		t.Fatalf("list restrictions: %v", err)
	}
	if len(list) != 1 || list[0].UserID != 8 || list[0].RestrictedBy != 3 {
		t.Fatalf("unexpected restrictions %+v", list)
	}

	if err := client.DeleteRestriction(ctx, 100, 7); err != nil {
		t.Fatalf("delete restriction: %v", err)
	}
	if got, _ := client.GetRestriction(ctx, 100, 7); got != nil {
		t.Fatalf("restriction survived delete: %+v", got)
	}

	lang, err := client.GetLanguage(ctx, 100)
	if err != nil {
		t.Fatalf("get missing language: %v", err)
	}
	if lang != "" {
		t.Fatalf("expected empty language, got %q", lang)
	}
	if err := client.SetLanguage(ctx, 100, "zh"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if err := client.SetLanguage(ctx, 100, "ru"); err != nil {
		t.Fatalf("overwrite language: %v", err)
	}
	if lang, _ := client.GetLanguage(ctx, 100); lang != "ru" {
		t.Fatalf("expected ru, got %q", lang)
	}
}
