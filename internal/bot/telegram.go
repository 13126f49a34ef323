package bot

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Telegram ignores restrictions shorter than this and applies them forever.
const minRestrictDuration = 30 * time.Second

type telegramPlatform struct {
	bot     *api.BotAPI
	limiter *rate.Limiter
	now     func() time.Time
}

// NewTelegramPlatform wraps the bot API. Outgoing requests are throttled to
// requestsPerSecond; zero disables throttling.
func NewTelegramPlatform(bot *api.BotAPI, requestsPerSecond float64) *telegramPlatform {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &telegramPlatform{
		bot:     bot,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

func (p *telegramPlatform) SelfID() int64 {
	return p.bot.Self.ID
}

func (p *telegramPlatform) request(ctx context.Context, c api.Chattable) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := p.bot.Request(c)
	return classifyError(err)
}

func (p *telegramPlatform) send(ctx context.Context, c api.Chattable) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg, err := p.bot.Send(c)
	if err != nil {
		return 0, classifyError(err)
	}
	return msg.MessageID, nil
}

func permissions(allowed bool) *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       allowed,
		CanSendAudios:         allowed,
		CanSendDocuments:      allowed,
		CanSendPhotos:         allowed,
		CanSendVideos:         allowed,
		CanSendVideoNotes:     allowed,
		CanSendVoiceNotes:     allowed,
		CanSendPolls:          allowed,
		CanSendOtherMessages:  allowed,
		CanAddWebPagePreviews: allowed,
		CanChangeInfo:         allowed,
		CanInviteUsers:        allowed,
		CanPinMessages:        allowed,
		CanManageTopics:       allowed,
	}
}

func (p *telegramPlatform) restrict(ctx context.Context, chatID, userID, until int64, allowed bool) error {
	return p.request(ctx, api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UntilDate:                     until,
		Permissions:                   permissions(allowed),
		UseIndependentChatPermissions: true,
	})
}

func (p *telegramPlatform) RestrictMember(ctx context.Context, chatID, userID int64, until int64) error {
	return errors.WithMessage(p.restrict(ctx, chatID, userID, until, false), "cant restrict")
}

func (p *telegramPlatform) LiftRestriction(ctx context.Context, chatID, userID int64, until int64) error {
	if until != 0 && until <= p.now().Add(minRestrictDuration).Unix() {
		return errors.WithMessage(p.restrict(ctx, chatID, userID, 0, true), "cant unrestrict")
	}
	return errors.WithMessage(p.restrict(ctx, chatID, userID, until, false), "cant preserve restriction")
}

// KickMember removes the member without banning them for good.
func (p *telegramPlatform) KickMember(ctx context.Context, chatID, userID int64) error {
	member := api.ChatMemberConfig{
		ChatConfig: api.ChatConfig{
			ChatID: chatID,
		},
		UserID: userID,
	}
	if err := p.request(ctx, api.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return errors.WithMessage(err, "cant kick")
	}
	err := p.request(ctx, api.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
	return errors.WithMessage(err, "cant unban after kick")
}

func (p *telegramPlatform) GetMember(ctx context.Context, chatID, userID int64) (*Member, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	cm, err := p.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
	})
	if err != nil {
		return nil, errors.WithMessage(classifyError(err), "cant get chat member")
	}
	m := &Member{
		UserID:    userID,
		Status:    cm.Status,
		IsMember:  cm.IsMember,
		UntilDate: cm.UntilDate,
	}
	if cm.User != nil {
		m.Name = GetFullName(cm.User)
		m.IsBot = cm.User.IsBot
	}
	return m, nil
}

func (p *telegramPlatform) GetChatInfo(ctx context.Context, chatID int64) (*ChatInfo, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	chat, err := p.bot.GetChat(api.ChatInfoConfig{
		ChatConfig: api.ChatConfig{
			ChatID: chatID,
		},
	})
	if err != nil {
		return nil, errors.WithMessage(classifyError(err), "cant get chat info")
	}
	return &ChatInfo{ID: chat.ID, Title: chat.Title, Bio: chat.Bio}, nil
}

func (p *telegramPlatform) SendMessage(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int, error) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.LinkPreviewOptions.IsDisabled = true
	if markup := toMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}
	id, err := p.send(ctx, msg)
	return id, errors.WithMessage(err, "cant send message")
}

func (p *telegramPlatform) ReplyMessage(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.ReplyParameters = api.ReplyParameters{
		MessageID:                replyTo,
		AllowSendingWithoutReply: true,
	}
	id, err := p.send(ctx, msg)
	return id, errors.WithMessage(err, "cant reply")
}

func (p *telegramPlatform) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = api.ModeHTML
	edit.ReplyMarkup = toMarkup(keyboard)
	_, err := p.send(ctx, edit)
	return errors.WithMessage(err, "cant edit message")
}

func (p *telegramPlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return errors.WithMessage(p.request(ctx, api.NewDeleteMessage(chatID, messageID)), "cant delete message")
}

func (p *telegramPlatform) AnswerCallback(ctx context.Context, callbackID, text string, alert bool, cacheTime int) error {
	cb := api.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	cb.CacheTime = cacheTime
	return errors.WithMessage(p.request(ctx, cb), "cant answer callback query")
}
