package handlers

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/observability"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/pending"
)

const (
	passedKey      = "%s passed the verification. Welcome!"
	passedShortKey = "%s passed the verification."
	failedKey      = "%s did not pass the verification and stays muted. An administrator can still let them in."
	approvedKey    = "%s was approved by administrator %s."
	rejectedKey    = "%s was rejected by administrator %s."
	notForYouKey   = "This button is not for you."
	deniedKey      = "Permission denied."
	floodOnKey     = "Join flood mode is on. Verification failures are counted here instead of being posted.\nFailures so far: %d"
)

// AggregationText is the text of the message that absorbs failure notices
// while join flood mode is on.
func AggregationText(language string, counter int) string {
	return fmt.Sprintf(i18n.Get(floodOnKey, language), counter)
}

// OnButtonPressed handles the answer and override buttons of a prompt.
func (g *Gatekeeper) OnButtonPressed(ctx context.Context, ev bot.ButtonPressed) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":     "OnButtonPressed",
		"chat_id":    ev.ChatID,
		"user_id":    ev.UserID,
		"message_id": ev.PromptMessageID,
	})
	p := g.s.GetPlatform()

	payload, err := bot.ParsePayload(ev.Payload)
	if err != nil {
		entry.WithField("error", err.Error()).Debug("ignoring malformed payload")
		return g.answer(ctx, ev.CallbackID, "", false)
	}

	language := g.s.GetLanguage(ctx, ev.ChatID)
	if payload.Action.IsAnswer() {
		if ev.UserID != payload.UserID {
			return g.answer(ctx, ev.CallbackID, i18n.Get(notForYouKey, language), true)
		}
		return g.onAnswer(ctx, ev, payload, language)
	}

	operator, err := p.GetMember(ctx, ev.ChatID, ev.UserID)
	if err != nil {
		// The callback is still answered so the client stops waiting.
		return stderrors.Join(errors.WithMessage(err, "cant get operator"), g.answer(ctx, ev.CallbackID, "", false))
	}
	if !operator.IsAdmin() {
		return g.answer(ctx, ev.CallbackID, i18n.Get(deniedKey, language), true)
	}
	return g.onOverride(ctx, ev, payload, operator, language)
}

func (g *Gatekeeper) onAnswer(ctx context.Context, ev bot.ButtonPressed, payload bot.Payload, language string) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "onAnswer",
		"chat_id": ev.ChatID,
		"user_id": ev.UserID,
		"action":  payload.Action,
	})
	if err := g.answer(ctx, ev.CallbackID, "", false); err != nil {
		return err
	}

	key := pending.PromptKey{ChatID: ev.ChatID, MessageID: ev.PromptMessageID}
	if c, ok := g.pending.ByPrompt(key.ChatID, key.MessageID); !ok || c.UserID != payload.UserID {
		entry.Debug("no pending challenge for this prompt")
		return nil
	}
	if _, ok := g.pending.TryResolve(key); !ok {
		entry.Debug("challenge already finished")
		return nil
	}

	mention := bot.Mention(ev.UserID, ev.UserName)
	if payload.Action != bot.ActionCorrect {
		entry.Info("challenge failed")
		return g.editPrompt(ctx, ev.ChatID, ev.PromptMessageID, fmt.Sprintf(i18n.Get(failedKey, language), mention))
	}

	entry.Info("challenge passed")
	// The challenge has left the registry, so the lift must not depend on
	// the edit succeeding.
	liftErr := g.lift(ctx, ev.ChatID, ev.UserID)
	if err := g.editPrompt(ctx, ev.ChatID, ev.PromptMessageID, fmt.Sprintf(i18n.Get(passedKey, language), mention)); err != nil {
		return stderrors.Join(liftErr, err)
	}
	if liftErr != nil {
		return liftErr
	}
	g.goLater(g.config.ShortenDelay, func(ctx context.Context) {
		text := fmt.Sprintf(i18n.Get(passedShortKey, language), mention)
		if err := g.editPrompt(ctx, ev.ChatID, ev.PromptMessageID, text); err != nil {
			entry.WithField("error", err.Error()).Warn("cant shorten passed notice")
		}
	})
	return nil
}

// onOverride applies an administrator decision. The prompt is updated even
// when its challenge has already finished.
func (g *Gatekeeper) onOverride(ctx context.Context, ev bot.ButtonPressed, payload bot.Payload, operator *bot.Member, language string) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":   "onOverride",
		"chat_id":  ev.ChatID,
		"user_id":  payload.UserID,
		"operator": ev.UserID,
		"action":   payload.Action,
	})
	p := g.s.GetPlatform()
	if err := g.answer(ctx, ev.CallbackID, "", false); err != nil {
		return err
	}

	if _, ok := g.pending.Cancel(pending.PromptKey{ChatID: ev.ChatID, MessageID: ev.PromptMessageID}); !ok {
		entry.Debug("overriding a finished challenge")
	}

	name := ""
	if member, err := p.GetMember(ctx, ev.ChatID, payload.UserID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant get challenged member")
	} else {
		name = member.Name
	}
	mention := bot.Mention(payload.UserID, name)
	adminMention := bot.Mention(operator.UserID, operator.Name)

	if payload.Action == bot.ActionApprove {
		entry.Info("approved by administrator")
		liftErr := g.lift(ctx, ev.ChatID, payload.UserID)
		editErr := g.editPrompt(ctx, ev.ChatID, ev.PromptMessageID, fmt.Sprintf(i18n.Get(approvedKey, language), mention, adminMention))
		return stderrors.Join(liftErr, editErr)
	}

	entry.Info("rejected by administrator")
	if err := g.editPrompt(ctx, ev.ChatID, ev.PromptMessageID, fmt.Sprintf(i18n.Get(rejectedKey, language), mention, adminMention)); err != nil {
		return err
	}
	if err := p.KickMember(ctx, ev.ChatID, payload.UserID); err != nil && !errors.Is(err, cerrors.ErrInsufficientRight) {
		return errors.WithMessage(err, "cant kick rejected member")
	}
	return nil
}

// onChallengeExpired runs on the timer goroutine of the expired challenge.
func (g *Gatekeeper) onChallengeExpired(chatID, userID int64, promptMessageID int, wasFlooding bool) {
	ctx := g.runContext()
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":   "onChallengeExpired",
		"chat_id":  chatID,
		"user_id":  userID,
		"flooding": wasFlooding,
	})
	entry.Info("challenge expired")
	p := g.s.GetPlatform()
	language := g.s.GetLanguage(ctx, chatID)

	// One locked step counts the notice and reports the anchor it belongs
	// to, so a concurrent /antiflood_off cannot leave a stale anchor edit.
	state := g.flood.For(chatID).Suppress()
	if wasFlooding || state.Enabled {
		if err := p.DeleteMessage(ctx, chatID, promptMessageID); err != nil && !errors.Is(err, cerrors.ErrMessageNotFound) {
			entry.WithField("error", err.Error()).Warn("cant delete expired prompt")
		}
		if !state.Enabled {
			return
		}
		observability.RecordSuppressedNotice()
		if err := g.editPrompt(ctx, chatID, state.AggregationMessageID, AggregationText(language, state.Counter)); err != nil {
			entry.WithField("error", err.Error()).Warn("cant update aggregation message")
		}
		return
	}

	name := ""
	if member, err := p.GetMember(ctx, chatID, userID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant get expired member")
	} else {
		name = member.Name
	}
	if err := g.editPrompt(ctx, chatID, promptMessageID, fmt.Sprintf(i18n.Get(failedKey, language), bot.Mention(userID, name))); err != nil {
		entry.WithField("error", err.Error()).Warn("cant post failure notice")
	}
}

// lift removes the verification restriction, restoring any restriction a
// moderator imposed before.
func (g *Gatekeeper) lift(ctx context.Context, chatID, userID int64) error {
	p := g.s.GetPlatform()
	err := g.ledger.Lift(ctx, chatID, userID, p.SelfID(), g.now(), func(ctx context.Context, until int64) error {
		return p.LiftRestriction(ctx, chatID, userID, until)
	})
	if errors.Is(err, cerrors.ErrInsufficientRight) {
		g.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).Warn("no rights to lift restriction")
		return nil
	}
	return errors.WithMessage(err, "cant lift restriction")
}

// editPrompt replaces the prompt text and drops its keyboard. A prompt that
// is already gone is not an error.
func (g *Gatekeeper) editPrompt(ctx context.Context, chatID int64, messageID int, text string) error {
	err := g.s.GetPlatform().EditMessage(ctx, chatID, messageID, text, nil)
	if err == nil || errors.Is(err, cerrors.ErrMessageNotFound) {
		return nil
	}
	return errors.WithMessage(err, "cant edit prompt")
}

func (g *Gatekeeper) answer(ctx context.Context, callbackID, text string, alert bool) error {
	err := g.s.GetPlatform().AnswerCallback(ctx, callbackID, text, alert, int(g.config.Timeout.Seconds()))
	return errors.WithMessage(err, "cant answer callback")
}
