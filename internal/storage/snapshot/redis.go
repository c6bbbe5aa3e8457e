package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// Expiry sets a key TTL in Redis itself; zero keeps keys until swept.
	Expiry time.Duration
}

// Redis stores each entry as a JSON string under prefix:key
type Redis struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// DialRedis connects and pings Redis.
func DialRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, cfg.Prefix, cfg.Expiry), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string, expiry time.Duration) *Redis {
	if prefix == "" {
		prefix = "marketlens"
	}
	return &Redis{client: client, prefix: prefix, expiry: expiry}
}

func (r *Redis) wrapKey(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, r.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, true, nil
}

func (r *Redis) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.wrapKey(entry.Key), data, r.expiry).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Unlink(ctx, r.wrapKey(key)).Err()
}

// Sweep scans the prefix and unlinks entries fetched before olderThan.
func (r *Redis) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		data, err := r.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, err
		}

		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || e.FetchedAt.Before(olderThan) {
			if err := r.client.Unlink(ctx, redisKey).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, iter.Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
