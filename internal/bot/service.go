package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
)

// Handler processes one update. Returning proceed=false stops the chain.
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

type Service interface {
	GetPlatform() Platform
	GetDB() db.Client
	// GetLanguage returns the chat language, or the default one.
	GetLanguage(ctx context.Context, chatID int64) string
	SetLanguage(ctx context.Context, chatID int64, language string) error
}

type service struct {
	platform        Platform
	db              db.Client
	defaultLanguage string
	logger          *log.Entry
}

func NewService(platform Platform, db db.Client, defaultLanguage string) *service {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &service{
		platform:        platform,
		db:              db,
		defaultLanguage: defaultLanguage,
		logger:          log.WithField("context", "bot_service"),
	}
}

func (s *service) GetPlatform() Platform {
	return s.platform
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetLanguage(ctx context.Context, chatID int64) string {
	language, err := s.db.GetLanguage(ctx, chatID)
	if err != nil {
		s.logger.WithField("error", err.Error()).WithField("chat_id", chatID).Warn("cant get chat language")
	}
	if language == "" {
		return s.defaultLanguage
	}
	return language
}

func (s *service) SetLanguage(ctx context.Context, chatID int64, language string) error {
	return s.db.SetLanguage(ctx, chatID, i18n.Normalize(language))
}
