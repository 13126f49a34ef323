package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type recordingHandler struct {
	name    string
	proceed bool
	err     error
	calls   *[]string
}

func (h recordingHandler) Handle(_ context.Context, _ *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if chat == nil || user == nil {
		*h.calls = append(*h.calls, h.name+":missing")
		return h.proceed, h.err
	}
	*h.calls = append(*h.calls, h.name)
	return h.proceed, h.err
}

func chatMemberUpdate(date time.Time) *api.Update {
	raw := fmt.Sprintf(`{
		"update_id": 1,
		"chat_member": {
			"chat": {"id": 100, "type": "supergroup"},
			"from": {"id": 7, "is_bot": false, "first_name": "Ada"},
			"date": %d,
			"old_chat_member": {"status": "left", "user": {"id": 7, "is_bot": false, "first_name": "Ada"}},
			"new_chat_member": {"status": "member", "user": {"id": 7, "is_bot": false, "first_name": "Ada", "username": "ada_l"}, "until_date": 123}
		}
	}`, date.Unix())
	u := &api.Update{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		panic(err)
	}
	return u
}

func TestUpdateProcessorRunsEnabledHandlersInOrder(t *testing.T) {
	var calls []string
	RegisterUpdateHandler("test-first", recordingHandler{name: "first", proceed: true, calls: &calls})
	RegisterUpdateHandler("test-second", recordingHandler{name: "second", proceed: false, calls: &calls})
	RegisterUpdateHandler("test-third", recordingHandler{name: "third", proceed: true, calls: &calls})

	up := NewUpdateProcessor(nil, []string{"test-first", "test-unknown", "test-second", "test-third"})
	if err := up.Process(context.Background(), chatMemberUpdate(time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected handler calls %v", calls)
	}
}

func TestUpdateProcessorSkipsOutdatedUpdates(t *testing.T) {
	var calls []string
	RegisterUpdateHandler("test-outdated", recordingHandler{name: "outdated", proceed: true, calls: &calls})

	up := NewUpdateProcessor(nil, []string{"test-outdated"})
	if err := up.Process(context.Background(), chatMemberUpdate(time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("outdated update must not reach handlers, got %v", calls)
	}
}

func TestUpdateProcessorWrapsHandlerErrors(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	RegisterUpdateHandler("test-failing", recordingHandler{name: "failing", proceed: true, err: boom, calls: &calls})

	up := NewUpdateProcessor(nil, []string{"test-failing"})
	if err := up.Process(context.Background(), chatMemberUpdate(time.Now())); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if err := up.Process(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil update")
	}
}
