package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/event-recon/backend/pkg/logger"
)

const tokenPrefix = "ccs:token"

// Client shares short-lived upstream credentials between API replicas.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	return NewFromAddr(fmt.Sprintf("%s:%d", host, port), password, db)
}

func NewFromAddr(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetToken stores an access token under key until ttl elapses.
func (c *Client) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, tokenKey(key), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token cache: %w", err)
	}

	logger.Debug("Token cached", zap.Duration("ttl", ttl))
	return nil
}

// GetToken returns the cached token and its remaining lifetime. The bool is
// false on a miss.
func (c *Client) GetToken(ctx context.Context, key string) (string, time.Duration, bool, error) {
	token, err := c.client.Get(ctx, tokenKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to get token cache: %w", err)
	}

	ttl, err := c.client.TTL(ctx, tokenKey(key)).Result()
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to read token ttl: %w", err)
	}

	logger.Debug("Token cache hit", zap.Duration("remaining", ttl))
	return token, ttl, true, nil
}

func (c *Client) InvalidateToken(ctx context.Context, key string) error {
	return c.client.Del(ctx, tokenKey(key)).Err()
}

func tokenKey(key string) string {
	return tokenPrefix + ":" + key
}
