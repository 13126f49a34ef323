package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/antiflood"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	chathandlers "github.com/The-Earth/Telegram-CAPTCHA/internal/handlers/chat"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
)

const (
	languageCallbackPrefix = "language_"

	deniedKey         = "Permission denied."
	chooseLanguageKey = "Choose the language of this chat:"
	languageSetKey    = "Language set to %s."
	userIDFailedKey   = "Cannot find the member this message is about."
	floodOffKey       = "Join flood mode is off. %d verification failures were counted."
)

// Admin serves the chat administration commands.
type Admin struct {
	s         bot.Service
	flood     *antiflood.Monitor
	languages []string
	logger    *log.Entry
}

// NewAdmin offers the given languages for /set_language, skipping the ones
// without translations.
func NewAdmin(s bot.Service, flood *antiflood.Monitor, languages []string) *Admin {
	a := &Admin{
		s:      s,
		flood:  flood,
		logger: log.WithField("handler", "admin"),
	}
	for _, language := range languages {
		language = i18n.Normalize(language)
		if !i18n.IsSupported(language) {
			a.logger.WithField("language", language).Warn("no translations for language, skipping")
			continue
		}
		if !tool.In(language, a.languages...) {
			a.languages = append(a.languages, language)
		}
	}
	return a
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil || user == nil {
		return true, nil
	}

	if cq := u.CallbackQuery; cq != nil {
		if !strings.HasPrefix(cq.Data, languageCallbackPrefix) {
			return true, nil
		}
		ev, ok := bot.ParseButtonPressed(cq)
		if !ok {
			return true, nil
		}
		return false, a.onLanguageButton(ctx, ev)
	}

	m := u.Message
	switch {
	case
		m == nil,
		user.IsBot,
		!m.IsCommand():
		return true, nil
	}

	entry := a.getLogEntry().WithFields(log.Fields{"chat_id": chat.ID, "user_id": user.ID})
	entry.Trace("command: ", m.Command())

	switch m.Command() {
	case "set_language":
		return false, a.setLanguage(ctx, chat.ID, user.ID)
	case "user_id":
		return false, a.userID(ctx, chat.ID, m)
	case "antiflood_on":
		return false, a.antiFlood(ctx, chat.ID, user.ID, m.MessageID, true)
	case "antiflood_off":
		return false, a.antiFlood(ctx, chat.ID, user.ID, m.MessageID, false)
	}
	return true, nil
}

func (a *Admin) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := a.s.GetPlatform().GetMember(ctx, chatID, userID)
	if err != nil {
		return false, errors.WithMessage(err, "cant get chat member")
	}
	return member.IsAdmin(), nil
}

func (a *Admin) setLanguage(ctx context.Context, chatID, userID int64) error {
	p := a.s.GetPlatform()
	language := a.s.GetLanguage(ctx, chatID)

	isAdmin, err := a.isAdmin(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return tool.Err(p.SendMessage(ctx, chatID, i18n.Get(deniedKey, language), nil))
	}

	keyboard := make(bot.Keyboard, 0, len(a.languages))
	for _, code := range a.languages {
		keyboard = append(keyboard, []bot.Button{{
			Text: fmt.Sprintf("%s (%s)", i18n.GetLanguageName(code), code),
			Data: languageCallbackPrefix + code,
		}})
	}
	return tool.Err(p.SendMessage(ctx, chatID, i18n.Get(chooseLanguageKey, language), keyboard))
}

func (a *Admin) onLanguageButton(ctx context.Context, ev bot.ButtonPressed) error {
	p := a.s.GetPlatform()
	language := a.s.GetLanguage(ctx, ev.ChatID)

	isAdmin, err := a.isAdmin(ctx, ev.ChatID, ev.UserID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return p.AnswerCallback(ctx, ev.CallbackID, i18n.Get(deniedKey, language), true, 0)
	}

	target := strings.TrimPrefix(ev.Payload, languageCallbackPrefix)
	if !tool.In(target, a.languages...) {
		a.getLogEntry().WithField("language", target).Debug("unknown language requested")
		return p.AnswerCallback(ctx, ev.CallbackID, "", false, 0)
	}
	if err := a.s.SetLanguage(ctx, ev.ChatID, target); err != nil {
		return errors.WithMessage(err, "cant update chat language")
	}
	if err := p.AnswerCallback(ctx, ev.CallbackID, "", false, 0); err != nil {
		a.getLogEntry().WithField("error", err.Error()).Warn("cant answer callback")
	}

	text := fmt.Sprintf(i18n.Get(languageSetKey, target), i18n.GetLanguageName(target))
	err = p.EditMessage(ctx, ev.ChatID, ev.PromptMessageID, text, nil)
	if errors.Is(err, cerrors.ErrMessageNotFound) {
		return nil
	}
	return err
}

// userID answers a /user_id reply to a prompt with the id of the member the
// prompt mentions.
func (a *Admin) userID(ctx context.Context, chatID int64, m *api.Message) error {
	p := a.s.GetPlatform()
	prompt := m.ReplyToMessage
	if prompt == nil || prompt.From == nil || prompt.From.ID != p.SelfID() {
		return nil
	}

	text := i18n.Get(userIDFailedKey, a.s.GetLanguage(ctx, chatID))
	for _, entity := range prompt.Entities {
		if entity.Type == "text_mention" && entity.User != nil {
			text = strconv.FormatInt(entity.User.ID, 10)
			break
		}
	}
	if _, err := p.ReplyMessage(ctx, chatID, prompt.MessageID, text); err != nil {
		return errors.WithMessage(err, "cant reply with user id")
	}

	if err := p.DeleteMessage(ctx, chatID, m.MessageID); err != nil {
		a.getLogEntry().WithField("error", err.Error()).Debug("cant delete command message")
	}
	return nil
}

// antiFlood switches the aggregation of failure notices. Turning it on
// posts the message that absorbs them.
func (a *Admin) antiFlood(ctx context.Context, chatID, userID int64, commandID int, enable bool) error {
	p := a.s.GetPlatform()
	language := a.s.GetLanguage(ctx, chatID)
	entry := a.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "enable": enable})

	isAdmin, err := a.isAdmin(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return tool.Err(p.SendMessage(ctx, chatID, i18n.Get(deniedKey, language), nil))
	}

	if enable {
		anchorID, err := p.SendMessage(ctx, chatID, chathandlers.AggregationText(language, 0), nil)
		if err != nil {
			return errors.WithMessage(err, "cant send aggregation message")
		}
		a.flood.Enable(chatID, anchorID)
		entry.Info("join flood mode enabled")
	} else {
		counter := a.flood.Disable(chatID)
		entry.WithField("counter", counter).Info("join flood mode disabled")
		if err := tool.Err(p.SendMessage(ctx, chatID, fmt.Sprintf(i18n.Get(floodOffKey, language), counter), nil)); err != nil {
			return errors.WithMessage(err, "cant send flood summary")
		}
	}

	if err := p.DeleteMessage(ctx, chatID, commandID); err != nil {
		entry.WithField("error", err.Error()).Debug("cant delete command message")
	}
	return nil
}

func (a *Admin) getLogEntry() *log.Entry {
	return a.logger
}
