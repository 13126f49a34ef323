package handlers

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
)

const selfIntroKey = "Hi! I ask every new member a short question before they can talk here. Please make me an administrator allowed to restrict and ban members."

// OnMemberStatusChanged keeps the restriction ledger in sync, drops the
// challenges of members who are gone and starts the flow for new ones.
func (g *Gatekeeper) OnMemberStatusChanged(ctx context.Context, ev bot.MemberStatusChanged) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":     "OnMemberStatusChanged",
		"chat_id":    ev.ChatID,
		"user_id":    ev.UserID,
		"old_status": ev.OldStatus,
		"new_status": ev.NewStatus,
	})
	selfID := g.s.GetPlatform().SelfID()
	if ev.UserID == selfID {
		return nil
	}

	if err := g.ledger.ApplyStatus(ctx, ev.ChatID, ev.UserID, ev.ActorID, selfID, ev.IsRestricted(), ev.UntilDate); err != nil {
		entry.WithField("error", err.Error()).Error("cant update restriction ledger")
	}

	if ev.IsRemovedBy(selfID) || ev.HasLeft() {
		g.dropChallenges(ctx, ev.ChatID, ev.UserID)
		return nil
	}

	if ev.IsJoin(g.now(), g.config.JoinMaxAge) {
		return g.OnMemberJoined(ctx, ev.Joined(""))
	}
	entry.Trace("status change needs no action")
	return nil
}

// dropChallenges cancels the pending challenges of a member and deletes
// their prompts.
func (g *Gatekeeper) dropChallenges(ctx context.Context, chatID, userID int64) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "dropChallenges",
		"chat_id": chatID,
		"user_id": userID,
	})
	for _, c := range g.pending.CancelUser(chatID, userID) {
		entry.WithField("message_id", c.PromptMessageID).Info("member gone before answering")
		err := g.s.GetPlatform().DeleteMessage(ctx, chatID, c.PromptMessageID)
		if err != nil && !errors.Is(err, cerrors.ErrMessageNotFound) {
			entry.WithField("error", err.Error()).Warn("cant delete prompt")
		}
	}
}

// OnBotStatusChanged introduces the bot when it is added to a chat.
func (g *Gatekeeper) OnBotStatusChanged(ctx context.Context, ev bot.MemberStatusChanged) error {
	p := g.s.GetPlatform()
	if ev.UserID != p.SelfID() {
		return nil
	}
	wasOutside := ev.OldStatus == bot.StatusLeft || ev.OldStatus == bot.StatusKicked
	isInside := ev.NewStatus == bot.StatusMember || ev.NewStatus == bot.StatusAdministrator
	if !wasOutside || !isInside {
		return nil
	}

	g.getLogEntry().WithField("chat_id", ev.ChatID).Info("added to chat")
	language := g.s.GetLanguage(ctx, ev.ChatID)
	_, err := p.SendMessage(ctx, ev.ChatID, i18n.Get(selfIntroKey, language), nil)
	if errors.Is(err, cerrors.ErrInsufficientRight) {
		return nil
	}
	return errors.WithMessage(err, "cant send self introduction")
}
