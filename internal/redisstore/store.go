// Package redisstore keeps draftr's key/value state in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "draftr:"

// Store implements the scheduler and settings key/value contract on Redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// New wraps an existing client. An empty prefix uses "draftr:".
func New(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return New(client, ""), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
