package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
)

// Member statuses as reported by Telegram.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

type Member struct {
	UserID    int64
	Status    string
	Name      string
	IsBot     bool
	IsMember  bool
	UntilDate int64
}

func (m *Member) IsAdmin() bool {
	return m != nil && (m.Status == StatusCreator || m.Status == StatusAdministrator)
}

type ChatInfo struct {
	ID    int64
	Title string
	Bio   string
}

type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

// Platform is everything the handlers need from the chat platform. All texts
// are HTML.
type Platform interface {
	SelfID() int64

	// RestrictMember silences a member; until 0 means forever.
	RestrictMember(ctx context.Context, chatID, userID int64, until int64) error
	// LiftRestriction restores full rights when until is due, otherwise
	// keeps the member silenced until then. Until 0 keeps them silenced forever.
	LiftRestriction(ctx context.Context, chatID, userID int64, until int64) error
	KickMember(ctx context.Context, chatID, userID int64) error
	GetMember(ctx context.Context, chatID, userID int64) (*Member, error)
	GetChatInfo(ctx context.Context, chatID int64) (*ChatInfo, error)

	SendMessage(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int, error)
	ReplyMessage(ctx context.Context, chatID int64, replyTo int, text string) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool, cacheTime int) error
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}

// Mention renders an HTML link to the user. Telegram turns it into a
// text_mention entity carrying the user.
func Mention(userID int64, name string) string {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%d", userID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name))
}

func toMarkup(keyboard Keyboard) *api.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]api.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]api.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, api.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, api.NewInlineKeyboardRow(buttons...))
	}
	markup := api.NewInlineKeyboardMarkup(rows...)
	return &markup
}
