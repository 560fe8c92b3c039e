package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// RedisStore keeps conversation history in Redis lists so it survives
// restarts and can be shared across instances. One list per session under
// session:<id>, trimmed to maxHistory, expiring after TTL of inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultSessionTTL = 24 * time.Hour

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("memory: redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(sessionID string) string { return "session:" + sessionID }

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...protocol.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("memory: marshal message: %w", err)
		}
		values = append(values, raw)
	}

	key := sessionKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -maxHistory, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("memory: append session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]protocol.ChatMessage, error) {
	raw, err := s.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: load session %s: %w", sessionID, err)
	}
	msgs := make([]protocol.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m protocol.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("memory: clear session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
