package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for sessions
	sessionKeyPrefix = "ovnchat:session:"
	// DefaultSessionTTL bounds how long a cached session outlives its last save.
	DefaultSessionTTL = 24 * time.Hour
)

var _ ChatStore = (*RedisSessionStore)(nil)

// RedisSessionStore caches session records in Redis in front of a durable ChatStore. Saves
// write through to both; loads read Redis first. User memory, analytics and dedup go straight
// to the durable store.
type RedisSessionStore struct {
	ChatStore
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("Redis session cache connected", "addr", opts.Addr)
	return client, nil
}

// NewRedisSessionStore wraps durable with a Redis session cache. A non-positive ttl uses
// DefaultSessionTTL.
func NewRedisSessionStore(client *redis.Client, durable ChatStore, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{ChatStore: durable, client: client, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return sessionKeyPrefix + id
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if err := s.ChatStore.SaveSession(ctx, rec); err != nil {
		return err
	}
	// Re-read so the cache carries the durable CreatedAt.
	stored, err := s.ChatStore.LoadSession(ctx, rec.SessionID)
	if err != nil || stored == nil {
		s.evict(ctx, rec.SessionID)
		return err
	}
	s.cache(ctx, *stored)
	return nil
}

func (s *RedisSessionStore) LoadSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	switch {
	case err == nil:
		var rec SessionRecord
		if jerr := json.Unmarshal(val, &rec); jerr == nil {
			s.client.Expire(ctx, s.key(sessionID), s.ttl)
			return &rec, nil
		}
		slog.Warn("RedisSessionStore.LoadSession: dropping undecodable entry", "session_id", sessionID)
		s.evict(ctx, sessionID)
	case !errors.Is(err, redis.Nil):
		slog.Warn("RedisSessionStore.LoadSession: cache read failed", "session_id", sessionID, "error", err)
	}

	rec, err := s.ChatStore.LoadSession(ctx, sessionID)
	if err != nil || rec == nil {
		return rec, err
	}
	s.cache(ctx, *rec)
	return rec, nil
}

func (s *RedisSessionStore) SetAdminHandling(ctx context.Context, sessionID, adminID string, handling bool) error {
	defer s.evict(ctx, sessionID)
	return s.ChatStore.SetAdminHandling(ctx, sessionID, adminID, handling)
}

func (s *RedisSessionStore) MarkInactive(ctx context.Context, sessionID string) error {
	defer s.evict(ctx, sessionID)
	return s.ChatStore.MarkInactive(ctx, sessionID)
}

// Close closes the Redis client and the durable store.
func (s *RedisSessionStore) Close() error {
	cerr := s.client.Close()
	if err := s.ChatStore.Close(); err != nil {
		return err
	}
	return cerr
}

func (s *RedisSessionStore) cache(ctx context.Context, rec SessionRecord) {
	val, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("RedisSessionStore.cache: marshal failed", "session_id", rec.SessionID, "error", err)
		return
	}
	if err := s.client.Set(ctx, s.key(rec.SessionID), val, s.ttl).Err(); err != nil {
		slog.Warn("RedisSessionStore.cache: set failed", "session_id", rec.SessionID, "error", err)
	}
}

func (s *RedisSessionStore) evict(ctx context.Context, sessionID string) {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		slog.Warn("RedisSessionStore.evict: delete failed", "session_id", sessionID, "error", err)
	}
}
