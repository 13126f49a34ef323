package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/infra"
	"github.com/The-Earth/Telegram-CAPTCHA/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(ctx context.Context, dir, file string) (*sqliteClient, error) {
	dbx, err := sqlx.ConnectContext(ctx, "sqlite", filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	dbx.SetMaxOpenConns(1)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       infra.GetResourcesPath("migrations"),
	}
	n, err := migrate.ExecContext(ctx, dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if n > 0 {
		log.WithField("count", n).Info("applied migrations")
	}

	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) GetRestriction(ctx context.Context, chatID, userID int64) (*db.Restriction, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var r db.Restriction
	err := c.db.GetContext(ctx, &r, `
		SELECT chat_id, user_id, restricted_by, until
		FROM restrictions
		WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get restriction: %w", err)
	}
	return &r, nil
}

func (c *sqliteClient) GetRestrictions(ctx context.Context, chatID int64) ([]*db.Restriction, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var res []*db.Restriction
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, user_id, restricted_by, until
		FROM restrictions
		WHERE chat_id = ?
		ORDER BY user_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list restrictions: %w", err)
	}
	return res, nil
}

func (c *sqliteClient) SetRestriction(ctx context.Context, r *db.Restriction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO restrictions (chat_id, user_id, restricted_by, until, updated_at)
		VALUES (:chat_id, :user_id, :restricted_by, :until, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
		restricted_by = excluded.restricted_by,
		until = excluded.until,
		updated_at = excluded.updated_at
	`
	if _, err := c.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to set restriction: %w", err)
	}
	return nil
}

func (c *sqliteClient) DeleteRestriction(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, "DELETE FROM restrictions WHERE chat_id = ? AND user_id = ?", chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete restriction: %w", err)
	}
	return nil
}

func (c *sqliteClient) GetLanguage(ctx context.Context, chatID int64) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var language string
	err := c.db.GetContext(ctx, &language, "SELECT language FROM chat_languages WHERE chat_id = ?", chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get language for chat %d: %w", chatID, err)
	}
	return language, nil
}

func (c *sqliteClient) SetLanguage(ctx context.Context, chatID int64, language string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO chat_languages (chat_id, language)
		VALUES (:chat_id, :language)
		ON CONFLICT(chat_id) DO UPDATE SET language = excluded.language
	`
	if _, err := c.db.NamedExecContext(ctx, query, db.ChatLanguage{ChatID: chatID, Language: language}); err != nil {
		return fmt.Errorf("failed to set language for chat %d: %w", chatID, err)
	}
	return nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}
