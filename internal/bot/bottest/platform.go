// Package bottest provides an in-memory bot.Platform for handler tests.
package bottest

import (
	"context"
	"fmt"
	"sync"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
)

type Call struct {
	Method    string
	ChatID    int64
	UserID    int64
	MessageID int
	ReplyTo   int
	Until     int64
	Text      string
	Keyboard  bot.Keyboard
	Alert     bool
}

type memberKey struct {
	chatID, userID int64
}

type Platform struct {
	mu       sync.Mutex
	self     int64
	members  map[memberKey]*bot.Member
	bios     map[int64]string
	messages map[memberKey]string
	failures map[string][]error
	calls    []Call
	nextID   int
}

func NewPlatform(selfID int64) *Platform {
	return &Platform{
		self:     selfID,
		members:  map[memberKey]*bot.Member{},
		bios:     map[int64]string{},
		messages: map[memberKey]string{},
		failures: map[string][]error{},
		nextID:   1000,
	}
}

// SetMember makes GetMember return m for the chat.
func (p *Platform) SetMember(chatID int64, m bot.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[memberKey{chatID, m.UserID}] = &m
}

func (p *Platform) SetBio(userID int64, bio string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bios[userID] = bio
}

// FailNext queues err for the next call of method.
func (p *Platform) FailNext(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = append(p.failures[method], err)
}

func (p *Platform) Calls(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []Call
	for _, c := range p.calls {
		if method == "" || c.Method == method {
			res = append(res, c)
		}
	}
	return res
}

// Text returns the current text of a message, and false once it is deleted
// or was never sent.
func (p *Platform) Text(chatID int64, messageID int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.messages[memberKey{chatID, int64(messageID)}]
	return text, ok
}

func (p *Platform) record(c Call) error {
	p.calls = append(p.calls, c)
	if queued := p.failures[c.Method]; len(queued) > 0 {
		p.failures[c.Method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (p *Platform) SelfID() int64 {
	return p.self
}

func (p *Platform) RestrictMember(_ context.Context, chatID, userID int64, until int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(Call{Method: "RestrictMember", ChatID: chatID, UserID: userID, Until: until})
}

func (p *Platform) LiftRestriction(_ context.Context, chatID, userID int64, until int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(Call{Method: "LiftRestriction", ChatID: chatID, UserID: userID, Until: until})
}

func (p *Platform) KickMember(_ context.Context, chatID, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(Call{Method: "KickMember", ChatID: chatID, UserID: userID})
}

func (p *Platform) GetMember(_ context.Context, chatID, userID int64) (*bot.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Method: "GetMember", ChatID: chatID, UserID: userID}); err != nil {
		return nil, err
	}
	m, ok := p.members[memberKey{chatID, userID}]
	if !ok {
		return &bot.Member{UserID: userID, Status: bot.StatusMember, Name: fmt.Sprintf("user%d", userID), IsMember: true}, nil
	}
	res := *m
	return &res, nil
}

func (p *Platform) GetChatInfo(_ context.Context, chatID int64) (*bot.ChatInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Method: "GetChatInfo", ChatID: chatID}); err != nil {
		return nil, err
	}
	return &bot.ChatInfo{ID: chatID, Bio: p.bios[chatID]}, nil
}

func (p *Platform) SendMessage(_ context.Context, chatID int64, text string, keyboard bot.Keyboard) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	if err := p.record(Call{Method: "SendMessage", ChatID: chatID, MessageID: id, Text: text, Keyboard: keyboard}); err != nil {
		return 0, err
	}
	p.messages[memberKey{chatID, int64(id)}] = text
	return id, nil
}

func (p *Platform) ReplyMessage(_ context.Context, chatID int64, replyTo int, text string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	if err := p.record(Call{Method: "ReplyMessage", ChatID: chatID, MessageID: id, ReplyTo: replyTo, Text: text}); err != nil {
		return 0, err
	}
	p.messages[memberKey{chatID, int64(id)}] = text
	return id, nil
}

func (p *Platform) EditMessage(_ context.Context, chatID int64, messageID int, text string, keyboard bot.Keyboard) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Method: "EditMessage", ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard}); err != nil {
		return err
	}
	key := memberKey{chatID, int64(messageID)}
	if _, ok := p.messages[key]; !ok {
		return cerrors.ErrMessageNotFound
	}
	p.messages[key] = text
	return nil
}

func (p *Platform) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID}); err != nil {
		return err
	}
	key := memberKey{chatID, int64(messageID)}
	if _, ok := p.messages[key]; !ok {
		return cerrors.ErrMessageNotFound
	}
	delete(p.messages, key)
	return nil
}

func (p *Platform) AnswerCallback(_ context.Context, callbackID, text string, alert bool, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(Call{Method: "AnswerCallback", Text: text, Alert: alert})
}
