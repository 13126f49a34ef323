package handlers

import (
	"context"
	"fmt"
	"html"

	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/challenge"
	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/observability"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/pending"
)

const newMemberKey = "%s, welcome! Please answer the question below within %d seconds to be able to talk here.\n\n%s"

// OnMemberJoined silences the new member and sends them a challenge.
func (g *Gatekeeper) OnMemberJoined(ctx context.Context, ev bot.MemberJoined) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "OnMemberJoined",
		"flow_id": uuid.New(),
		"chat_id": ev.ChatID,
		"user_id": ev.UserID,
	})
	p := g.s.GetPlatform()

	if err := p.RestrictMember(ctx, ev.ChatID, ev.UserID, 0); err != nil {
		if errors.Is(err, cerrors.ErrInsufficientRight) {
			entry.Debug("no rights to restrict, skipping")
			return nil
		}
		return errors.WithMessage(err, "cant restrict new member")
	}

	if pattern := g.matchBlacklist(ctx, ev); pattern != "" {
		entry.WithField("pattern", pattern).Info("blacklisted member joined")
		return g.kickBlacklisted(ctx, ev, pattern)
	}

	flooding := g.flood.RecordJoinAndCheckFlood(ev.ChatID, ev.Timestamp)
	if flooding {
		observability.RecordFloodDetected()
		entry.Info("join flood detected")
	}

	language := g.s.GetLanguage(ctx, ev.ChatID)
	err := g.issueChallenge(ctx, ev, language, flooding)
	if errors.Is(err, cerrors.ErrPlatformTransient) || errors.Is(err, cerrors.ErrSourceUnavailable) {
		entry.WithField("error", err.Error()).Warn("cant issue challenge, retrying once")
		err = g.issueChallenge(ctx, ev, language, flooding)
	}
	if err != nil {
		return errors.WithMessage(err, "cant issue challenge")
	}
	entry.Debug("challenge issued")
	return nil
}

func (g *Gatekeeper) issueChallenge(ctx context.Context, ev bot.MemberJoined, language string, flooding bool) error {
	c, err := g.generator.NewChallenge(ctx, g.config.Kind, language)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(
		i18n.Get(newMemberKey, language),
		bot.Mention(ev.UserID, ev.Name),
		int(g.config.Timeout.Seconds()),
		c.Question(),
	)
	promptID, err := g.s.GetPlatform().SendMessage(ctx, ev.ChatID, text, challengeKeyboard(ev.UserID, c, language))
	if err != nil {
		return err
	}

	_, err = g.pending.Register(pending.Challenge{
		ChatID:          ev.ChatID,
		UserID:          ev.UserID,
		PromptMessageID: promptID,
		Locale:          language,
		Flooding:        flooding,
		Challenge:       c,
	}, g.config.Timeout)
	return err
}

// challengeKeyboard puts the answers on the first row and the
// administrator overrides on the second.
func challengeKeyboard(userID int64, c challenge.Challenge, language string) bot.Keyboard {
	answers := make([]bot.Button, 0, challenge.ChoicesCount)
	for _, choice := range c.Choices() {
		action := bot.ActionWrong
		if choice == c.Answer() {
			action = bot.ActionCorrect
		}
		answers = append(answers, bot.Button{
			Text: choice,
			Data: bot.Payload{UserID: userID, Action: action}.String(),
		})
	}
	return bot.Keyboard{
		answers,
		{
			{Text: i18n.Get("Approve", language), Data: bot.Payload{UserID: userID, Action: bot.ActionApprove}.String()},
			{Text: i18n.Get("Reject", language), Data: bot.Payload{UserID: userID, Action: bot.ActionReject}.String()},
		},
	}
}

// matchBlacklist returns the first pattern matching the member name, username or bio.
func (g *Gatekeeper) matchBlacklist(ctx context.Context, ev bot.MemberJoined) string {
	if len(g.config.Blacklist) == 0 {
		return ""
	}
	tokens := []string{ev.Name, ev.Username, ev.Bio}
	if ev.Bio == "" {
		info, err := g.s.GetPlatform().GetChatInfo(ctx, ev.UserID)
		if err != nil {
			g.getLogEntry().WithField("error", err.Error()).Debug("cant get member bio")
		} else {
			tokens = append(tokens, info.Bio)
		}
	}
	for _, re := range g.config.Blacklist {
		for _, token := range tokens {
			if token != "" && re.MatchString(token) {
				return re.String()
			}
		}
	}
	return ""
}

func (g *Gatekeeper) kickBlacklisted(ctx context.Context, ev bot.MemberJoined, pattern string) error {
	p := g.s.GetPlatform()
	if err := p.KickMember(ctx, ev.ChatID, ev.UserID); err != nil {
		if errors.Is(err, cerrors.ErrInsufficientRight) {
			return nil
		}
		return errors.WithMessage(err, "cant kick blacklisted member")
	}

	if g.config.DebugUserID != 0 {
		debugMsg := tool.ExecTemplate(`Kicked blacklisted member {{ .user_name }} ({{ .user_id }}) from chat {{ .chat_id }}, pattern {{ .pattern }}`, map[string]any{
			"user_name": html.EscapeString(ev.Name),
			"user_id":   ev.UserID,
			"chat_id":   ev.ChatID,
			"pattern":   pattern,
		})
		if err := tool.Err(p.SendMessage(ctx, g.config.DebugUserID, debugMsg, nil)); err != nil {
			g.getLogEntry().WithField("error", err.Error()).Warn("cant send debug note")
		}
	}
	return nil
}
