package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
)

const keyPrefix = "tgcaptcha"

type redisClient struct {
	client *goredis.Client
}

// NewRedisClient wraps an already configured client and checks that the
// server answers.
func NewRedisClient(ctx context.Context, client *goredis.Client) (*redisClient, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisClient{client: client}, nil
}

func restrictionsKey(chatID int64) string {
	return fmt.Sprintf("%s:restrictions:%d", keyPrefix, chatID)
}

func languagesKey() string {
	return keyPrefix + ":languages"
}

func (c *redisClient) GetRestriction(ctx context.Context, chatID, userID int64) (*db.Restriction, error) {
	raw, err := c.client.HGet(ctx, restrictionsKey(chatID), strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get restriction: %w", err)
	}
	r, err := decodeRestriction(raw)
	if err != nil {
		return nil, err
	}
	r.ChatID, r.UserID = chatID, userID
	return r, nil
}

func (c *redisClient) GetRestrictions(ctx context.Context, chatID int64) ([]*db.Restriction, error) {
	values, err := c.client.HGetAll(ctx, restrictionsKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list restrictions: %w", err)
	}
	res := make([]*db.Restriction, 0, len(values))
	for field, raw := range values {
		userID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", field, err)
		}
		r, err := decodeRestriction(raw)
		if err != nil {
			return nil, err
		}
		r.ChatID, r.UserID = chatID, userID
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (c *redisClient) SetRestriction(ctx context.Context, r *db.Restriction) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode restriction: %w", err)
	}
	if err := c.client.HSet(ctx, restrictionsKey(r.ChatID), strconv.FormatInt(r.UserID, 10), raw).Err(); err != nil {
		return fmt.Errorf("set restriction: %w", err)
	}
	return nil
}

func (c *redisClient) DeleteRestriction(ctx context.Context, chatID, userID int64) error {
	if err := c.client.HDel(ctx, restrictionsKey(chatID), strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("delete restriction: %w", err)
	}
	return nil
}

func (c *redisClient) GetLanguage(ctx context.Context, chatID int64) (string, error) {
	language, err := c.client.HGet(ctx, languagesKey(), strconv.FormatInt(chatID, 10)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get language: %w", err)
	}
	return language, nil
}

func (c *redisClient) SetLanguage(ctx context.Context, chatID int64, language string) error {
	if err := c.client.HSet(ctx, languagesKey(), strconv.FormatInt(chatID, 10), language).Err(); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (c *redisClient) Close() error {
	return c.client.Close()
}

func decodeRestriction(raw string) (*db.Restriction, error) {
	var r db.Restriction
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode restriction: %w", err)
	}
	return &r, nil
}
