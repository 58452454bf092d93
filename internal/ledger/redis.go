package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "lunaralarm:sent"

// RedisStore keeps one Redis key per notification, written with SETNX and no
// expiry.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedisStore connects and pings addr.
func OpenRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ledger: redis ping %s: %w", addr, err)
	}
	return NewRedisStore(rdb, prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// key hashes the UID since UIDs may themselves contain ':'.
func (s *RedisStore) key(k Key) string {
	sum := sha256.Sum256([]byte(k.EventUID))
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, hex.EncodeToString(sum[:]), k.TargetDate, k.Type)
}

func (s *RedisStore) Exists(ctx context.Context, k Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(k)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) InsertIfAbsent(ctx context.Context, k Key) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(k), time.Now().UTC().Format(time.RFC3339), 0).Result()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
