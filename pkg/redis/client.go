package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	connectAttempts = 20
	keyPrefix       = "campusride:"
)

// Client wraps the Redis connection.
type Client struct {
	rdb *goredis.Client
}

// NewClient connects to Redis with retry.
func NewClient(ctx context.Context, addr string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	for i := 0; i < connectAttempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info().Str("addr", addr).Msg("[redis] connected")
			return &Client{rdb: rdb}, nil
		}
		log.Info().Msgf("[redis] waiting for Redis... (%d/%d)", i+1, connectAttempts)
		select {
		case <-ctx.Done():
			rdb.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	rdb.Close()
	return nil, fmt.Errorf("redis: failed to connect after %d attempts", connectAttempts)
}

// TokenStore keeps the session token under a single key.
type TokenStore struct {
	rdb *goredis.Client
	key string
}

// TokenStore returns a token store for key.
func (c *Client) TokenStore(key string) *TokenStore {
	return &TokenStore{rdb: c.rdb, key: keyPrefix + key}
}

func (s *TokenStore) Load(ctx context.Context) (string, error) {
	tok, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

func (s *TokenStore) Save(ctx context.Context, token string) error {
	if err := s.rdb.Set(ctx, s.key, token, 0).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Close tears down the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }
