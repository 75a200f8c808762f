// Package rediscache stores the reader's backup copy of the catalog. It is
// the server-side analog of the storefront's old localStorage backup: written
// after every successful raw read, consulted only when the raw read fails.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrNoBackup is returned by Load when no backup copy has been saved yet.
var ErrNoBackup = errors.New("no backup copy")

const defaultKey = "vitrina:catalog:backup"

// Cache is a redis-backed backup copy of the raw catalog document.
type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New creates a Cache from a redis URL. A zero ttl keeps the backup forever,
// matching the original's localStorage behavior.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connect to redis")
	}

	return &Cache{client: client, key: defaultKey, ttl: ttl}, nil
}

// NewWithClient creates a Cache from an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, key: defaultKey, ttl: ttl}
}

// Save overwrites the backup copy with the given document bytes.
func (c *Cache) Save(ctx context.Context, data []byte) error {
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "save backup")
	}
	return nil
}

// Load returns the backup copy verbatim, or ErrNoBackup when none exists.
func (c *Cache) Load(ctx context.Context) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, errors.Wrap(err, "load backup")
	}
	return data, nil
}

// Ping reports whether redis is reachable. Wired into the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
