package bot

import (
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type MemberJoined struct {
	ChatID    int64
	UserID    int64
	Timestamp time.Time
	IsBot     bool
	Name      string
	Username  string
	Bio       string
}

type ButtonPressed struct {
	CallbackID      string
	ChatID          int64
	PromptMessageID int
	UserID          int64
	UserName        string
	Payload         string
}

type MemberStatusChanged struct {
	ChatID      int64
	UserID      int64
	Name        string
	Username    string
	IsBot       bool
	OldStatus   string
	NewStatus   string
	OldIsMember bool
	NewIsMember bool
	UntilDate   int64
	ActorID     int64
	Date        time.Time
}

func ParseMemberStatusChanged(u *api.ChatMemberUpdated) (MemberStatusChanged, bool) {
	if u == nil || u.NewChatMember.User == nil {
		return MemberStatusChanged{}, false
	}
	return MemberStatusChanged{
		ChatID:      u.Chat.ID,
		UserID:      u.NewChatMember.User.ID,
		Name:        GetFullName(u.NewChatMember.User),
		Username:    u.NewChatMember.User.UserName,
		IsBot:       u.NewChatMember.User.IsBot,
		OldStatus:   u.OldChatMember.Status,
		NewStatus:   u.NewChatMember.Status,
		OldIsMember: u.OldChatMember.IsMember,
		NewIsMember: u.NewChatMember.IsMember,
		UntilDate:   u.NewChatMember.UntilDate,
		ActorID:     u.From.ID,
		Date:        time.Unix(int64(u.Date), 0),
	}, true
}

// IsJoin reports whether the change is a human entering the chat: from
// outside to a participating member, no older than maxAge.
func (e MemberStatusChanged) IsJoin(now time.Time, maxAge time.Duration) bool {
	if e.IsBot || now.Sub(e.Date) > maxAge {
		return false
	}
	wasOutside := e.OldStatus == StatusLeft || (e.OldStatus == StatusRestricted && !e.OldIsMember)
	isInside := e.NewStatus == StatusMember || (e.NewStatus == StatusRestricted && e.NewIsMember)
	return wasOutside && isInside
}

// IsRemovedBy reports whether someone other than the member and the bot
// kicked the member.
func (e MemberStatusChanged) IsRemovedBy(selfID int64) bool {
	return e.NewStatus == StatusKicked && e.ActorID != e.UserID && e.ActorID != selfID
}

// HasLeft reports whether the member left the chat on their own.
func (e MemberStatusChanged) HasLeft() bool {
	return e.ActorID == e.UserID &&
		(e.NewStatus == StatusLeft || (e.NewStatus == StatusRestricted && !e.NewIsMember))
}

// IsRestricted reports whether the member ends up restricted.
func (e MemberStatusChanged) IsRestricted() bool {
	return e.NewStatus == StatusRestricted
}

func (e MemberStatusChanged) Joined(bio string) MemberJoined {
	return MemberJoined{
		ChatID:    e.ChatID,
		UserID:    e.UserID,
		Timestamp: e.Date,
		IsBot:     e.IsBot,
		Name:      e.Name,
		Username:  e.Username,
		Bio:       bio,
	}
}

func ParseButtonPressed(cq *api.CallbackQuery) (ButtonPressed, bool) {
	if cq == nil || cq.Message == nil || cq.From == nil {
		return ButtonPressed{}, false
	}
	return ButtonPressed{
		CallbackID:      cq.ID,
		ChatID:          cq.Message.Chat.ID,
		PromptMessageID: cq.Message.MessageID,
		UserID:          cq.From.ID,
		UserName:        GetFullName(cq.From),
		Payload:         cq.Data,
	}, true
}
