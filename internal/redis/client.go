package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// RequestStream names the intake stream for one pool partition.
func RequestStream(partition string) string {
	return fmt.Sprintf("match-requests:%s", partition)
}

// ConnectLimitKey names the sliding-window set for socket connects from ip.
func ConnectLimitKey(ip string) string {
	return fmt.Sprintf("ratelimit:connect:%s", ip)
}
