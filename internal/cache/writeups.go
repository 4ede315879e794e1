package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

const DefaultTTL = 5 * time.Minute

// NewClient connects to redis at a redis:// URL and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// CreditCounter memoizes writeup counts per user. Without a client, or when
// redis fails, it reads through to the underlying counter. Nothing in this
// service records writeups, so a cached count is at most ttl old.
type CreditCounter struct {
	client *redis.Client
	next   grading.WriteupCounter
	ttl    time.Duration
	prefix string
}

func NewCreditCounter(client *redis.Client, next grading.WriteupCounter, ttl time.Duration) *CreditCounter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CreditCounter{client: client, next: next, ttl: ttl, prefix: "writeups:"}
}

func (c *CreditCounter) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

func (c *CreditCounter) CountWriteups(ctx context.Context, userID int64) (int, error) {
	if c.client == nil {
		return c.next.CountWriteups(ctx, userID)
	}
	s, err := c.client.Get(ctx, c.key(userID)).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(s); convErr == nil {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "writeup cache read failed", "error", err, "user_id", userID)
	}

	n, err := c.next.CountWriteups(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, c.key(userID), n, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "writeup cache write failed", "error", err, "user_id", userID)
	}
	return n, nil
}
