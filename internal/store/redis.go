package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout:
//
//	offgw:stores                    set of store names
//	offgw:store:<name>:<key>        JSON-encoded Entry
const (
	redisNamesKey    = "offgw:stores"
	redisEntryPrefix = "offgw:store:"
	scanBatchSize    = 200
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout bounds the startup connection check.
const connectionTimeout = 5 * time.Second

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `yaml:"address"  env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"`
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisStorage is a Storage backend persisted in Redis, letting cached
// content survive gateway restarts and be shared between replicas.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates a Redis-backed storage using an existing client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Open returns the named store, registering the name if absent.
func (s *RedisStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := s.client.SAdd(ctx, redisNamesKey, name).Err(); err != nil {
		return nil, fmt.Errorf("register store %q: %w", name, err)
	}
	return &redisStore{client: s.client, name: name}, nil
}

// Names lists the names of all existing stores.
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, redisNamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return names, nil
}

// Remove deletes a store, all of its entries, and its name registration.
func (s *RedisStorage) Remove(ctx context.Context, name string) error {
	prefix := redisEntryPrefix + name + ":"

	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete entry %q: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan store %q: %w", name, err)
	}

	if err := s.client.SRem(ctx, redisNamesKey, name).Err(); err != nil {
		return fmt.Errorf("unregister store %q: %w", name, err)
	}
	return nil
}

type redisStore struct {
	client *redis.Client
	name   string
}

func (s *redisStore) entryKey(key string) string {
	return redisEntryPrefix + s.name + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode entry %q: %w", key, err)
	}
	return &entry, true, nil
}

func (s *redisStore) Put(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.entryKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	prefix := s.entryKey("")

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	return keys, nil
}

func (s *redisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
