package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/antiflood"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot/bottest"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/jsonfile"
)

const (
	selfID  = int64(1)
	chatID  = int64(100)
	adminID = int64(10)
)

type fixture struct {
	a     *Admin
	s     bot.Service
	p     *bottest.Platform
	flood *antiflood.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := jsonfile.NewJSONClient(t.TempDir(), "record.json")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	f := &fixture{
		p:     bottest.NewPlatform(selfID),
		flood: antiflood.NewMonitor(time.Minute, 5),
	}
	f.p.SetMember(chatID, bot.Member{UserID: adminID, Status: bot.StatusAdministrator, Name: "Admin"})
	f.s = bot.NewService(f.p, store, "en")
	f.a = NewAdmin(f.s, f.flood, []string{"en", "zh", "ru", "xx"})
	return f
}

func command(t *testing.T, from int64, text string, extra string) *api.Update {
	t.Helper()
	cmd := strings.Fields(text)[0]
	raw := fmt.Sprintf(`{
		"update_id": 1,
		"message": {
			"message_id": 50,
			"date": %d,
			"chat": {"id": %d, "type": "supergroup"},
			"from": {"id": %d, "is_bot": false, "first_name": "Someone"},
			"text": %q,
			"entities": [{"type": "bot_command", "offset": 0, "length": %d}]
			%s
		}
	}`, time.Now().Unix(), chatID, from, text, len(cmd), extra)
	u := &api.Update{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return u
}

func (f *fixture) handle(t *testing.T, u *api.Update, from int64) bool {
	t.Helper()
	proceed, err := f.a.Handle(context.Background(), u, &api.Chat{ID: chatID}, &api.User{ID: from})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return proceed
}

func TestUnsupportedLanguagesAreSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if strings.Join(f.a.languages, ",") != "en,zh,ru" {
		t.Fatalf("unexpected languages %v", f.a.languages)
	}
}

func TestSetLanguageFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if f.handle(t, command(t, adminID, "/set_language", ""), adminID) {
		t.Fatalf("command must stop the chain")
	}
	sent := f.p.Calls("SendMessage")
	if len(sent) != 1 || len(sent[0].Keyboard) != 3 || sent[0].Keyboard[1][0].Data != "language_zh" {
		t.Fatalf("unexpected language prompt %+v", sent)
	}

	raw := fmt.Sprintf(`{
		"update_id": 2,
		"callback_query": {
			"id": "cb",
			"from": {"id": %d, "is_bot": false, "first_name": "Admin"},
			"data": "language_zh",
			"message": {"message_id": %d, "date": 0, "chat": {"id": %d, "type": "supergroup"}}
		}
	}`, adminID, sent[0].MessageID, chatID)
	u := &api.Update{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f.handle(t, u, adminID)

	if got := f.s.GetLanguage(context.Background(), chatID); got != "zh" {
		t.Fatalf("expected zh, got %q", got)
	}
	text, _ := f.p.Text(chatID, sent[0].MessageID)
	if !strings.Contains(text, "中文") {
		t.Fatalf("expected the confirmation in the new language, got %q", text)
	}
}

func TestSetLanguageRequiresAdministrator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.handle(t, command(t, 9, "/set_language", ""), 9)
	sent := f.p.Calls("SendMessage")
	if len(sent) != 1 || sent[0].Text != deniedKey || sent[0].Keyboard != nil {
		t.Fatalf("expected a permission-denied notice, got %+v", sent)
	}
}

func TestUserIDLooksUpMention(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := fmt.Sprintf(`, "reply_to_message": {
		"message_id": 42, "date": 0,
		"chat": {"id": %d, "type": "supergroup"},
		"from": {"id": %d, "is_bot": true, "first_name": "Bot"},
		"text": "Ada, welcome!",
		"entities": [{"type": "text_mention", "offset": 0, "length": 3, "user": {"id": 7, "is_bot": false, "first_name": "Ada"}}]
	}`, chatID, selfID)
	f.handle(t, command(t, 9, "/user_id", reply), 9)

	replies := f.p.Calls("ReplyMessage")
	if len(replies) != 1 || replies[0].ReplyTo != 42 || replies[0].Text != "7" {
		t.Fatalf("unexpected reply %+v", replies)
	}
	if deletes := f.p.Calls("DeleteMessage"); len(deletes) != 1 || deletes[0].MessageID != 50 {
		t.Fatalf("expected the command to be deleted, got %+v", deletes)
	}
}

func TestUserIDWithoutMention(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := fmt.Sprintf(`, "reply_to_message": {
		"message_id": 42, "date": 0,
		"chat": {"id": %d, "type": "supergroup"},
		"from": {"id": %d, "is_bot": true, "first_name": "Bot"},
		"text": "plain"
	}`, chatID, selfID)
	f.handle(t, command(t, 9, "/user_id", reply), 9)

	if replies := f.p.Calls("ReplyMessage"); len(replies) != 1 || replies[0].Text != userIDFailedKey {
		t.Fatalf("unexpected reply %+v", replies)
	}
}

func TestAntiFloodOnOff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.handle(t, command(t, adminID, "/antiflood_on", ""), adminID)

	state := f.flood.State(chatID)
	sent := f.p.Calls("SendMessage")
	if !state.Enabled || len(sent) != 1 || state.AggregationMessageID != sent[0].MessageID {
		t.Fatalf("unexpected state %+v after %+v", state, sent)
	}
	f.flood.RecordSuppressed(chatID)
	f.flood.RecordSuppressed(chatID)

	f.handle(t, command(t, adminID, "/antiflood_off", ""), adminID)
	sent = f.p.Calls("SendMessage")
	if len(sent) != 2 || !strings.Contains(sent[1].Text, " 2 ") {
		t.Fatalf("expected a final summary with the counter, got %+v", sent)
	}
	if state := f.flood.State(chatID); state.Enabled || state.Counter != 0 {
		t.Fatalf("unexpected state after disable %+v", state)
	}
}

func TestNonCommandsPassThrough(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := &api.Update{Message: &api.Message{Text: "hello"}}
	if !f.handle(t, u, 9) {
		t.Fatalf("plain messages must proceed")
	}
	if !f.handle(t, command(t, 9, "/unknown", ""), 9) {
		t.Fatalf("unknown commands must proceed")
	}
}
