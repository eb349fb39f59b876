// Package redis provides the Redis transport used to reach Zenith.
package redis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPort = "6379"

// Client is a go-redis client bound to one transport URL
type Client struct {
	*redis.Client
}

// ParseRedisURL parses a redis:// or rediss:// URL and returns options.
// A bare "host" or "host:port" is accepted as shorthand for redis://host:port.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}

	if !strings.Contains(rawURL, "://") {
		host, port, err := net.SplitHostPort(rawURL)
		if err != nil {
			host, port = rawURL, defaultPort
		}
		rawURL = "redis://" + net.JoinHostPort(host, port)
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return opts, nil
}

// NewClient creates a new Redis client from URL and checks the connection
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	c, err := NewClientLazy(redisURL)
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return c, nil
}

// NewClientLazy creates a client without testing connection
func NewClientLazy(redisURL string) (*Client, error) {
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{Client: redis.NewClient(opts)}, nil
}

// SetJSON stores an already encoded payload under key with an expiry.
func (c *Client) SetJSON(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.Set(ctx, key, data, ttl).Err()
}
