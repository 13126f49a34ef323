// Package jsonfile keeps the ledger in a single JSON record file:
//
//	{"restrict_record": {"<chat>": {"<user>": {"restricted_by": 1, "until": 0}}},
//	 "language": {"<chat>": "zh"}}
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
)

type record struct {
	RestrictRecord map[string]map[string]db.Restriction `json:"restrict_record"`
	Language       map[string]string                    `json:"language"`
}

type jsonClient struct {
	mutex sync.RWMutex
	path  string
	rec   record
}

// NewJSONClient loads the record file at dir/file. A missing file is an
// empty ledger.
func NewJSONClient(dir, file string) (*jsonClient, error) {
	c := &jsonClient{
		path: filepath.Join(dir, file),
		rec: record{
			RestrictRecord: map[string]map[string]db.Restriction{},
			Language:       map[string]string{},
		},
	}

	data, err := os.ReadFile(c.path)
	switch {
	case os.IsNotExist(err):
		log.WithField("path", c.path).Info("record file not found, starting empty")
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	if err := json.Unmarshal(data, &c.rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", c.path, err)
	}
	if c.rec.RestrictRecord == nil {
		c.rec.RestrictRecord = map[string]map[string]db.Restriction{}
	}
	if c.rec.Language == nil {
		c.rec.Language = map[string]string{}
	}
	return c, nil
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func (c *jsonClient) GetRestriction(_ context.Context, chatID, userID int64) (*db.Restriction, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	r, ok := c.rec.RestrictRecord[id(chatID)][id(userID)]
	if !ok {
		return nil, nil
	}
	r.ChatID, r.UserID = chatID, userID
	return &r, nil
}

func (c *jsonClient) GetRestrictions(_ context.Context, chatID int64) ([]*db.Restriction, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	res := make([]*db.Restriction, 0, len(c.rec.RestrictRecord[id(chatID)]))
	for user, r := range c.rec.RestrictRecord[id(chatID)] {
		userID, err := strconv.ParseInt(user, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed user id %q in record file: %w", user, err)
		}
		r.ChatID, r.UserID = chatID, userID
		res = append(res, &r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (c *jsonClient) SetRestriction(_ context.Context, r *db.Restriction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chat := id(r.ChatID)
	if _, ok := c.rec.RestrictRecord[chat]; !ok {
		c.rec.RestrictRecord[chat] = map[string]db.Restriction{}
	}
	c.rec.RestrictRecord[chat][id(r.UserID)] = db.Restriction{RestrictedBy: r.RestrictedBy, Until: r.Until}
	return c.flush()
}

func (c *jsonClient) DeleteRestriction(_ context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	users, ok := c.rec.RestrictRecord[id(chatID)]
	if !ok {
		return nil
	}
	if _, ok := users[id(userID)]; !ok {
		return nil
	}
	delete(users, id(userID))
	return c.flush()
}

func (c *jsonClient) GetLanguage(_ context.Context, chatID int64) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.rec.Language[id(chatID)], nil
}

func (c *jsonClient) SetLanguage(_ context.Context, chatID int64, language string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.rec.Language[id(chatID)] = language
	return c.flush()
}

func (c *jsonClient) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.flush()
}

// flush writes the whole record next to the target and renames it over, so
// a crash never leaves a half-written file. Callers hold the write lock.
func (c *jsonClient) flush() error {
	data, err := json.MarshalIndent(c.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	return nil
}
