package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowdeck/flowdeck/pkg/events"
)

// SessionCache keeps recent task transitions per session in Redis so the
// builder UI can poll run progress without hitting the engine on every
// request. Entries expire on their own; the engine remains the source of
// truth.
type SessionCache struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

func NewSessionCache(logger *slog.Logger, redisURL string, ttl time.Duration) (*SessionCache, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &SessionCache{
		client: redis.NewClient(options),
		logger: logger.With("module", "session-cache"),
		ttl:    ttl,
	}, nil
}

func sessionKey(sessionID string) string {
	return "flowdeck:session:" + sessionID + ":events"
}

// Append records one transition at the end of the session's stream and
// refreshes the expiry.
func (c *SessionCache) Append(ctx context.Context, transition *events.TaskTransition) error {
	payload, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("failed to encode transition: %w", err)
	}

	key := sessionKey(transition.SessionID)

	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache transition: %w", err)
	}

	return nil
}

// Events returns the cached transitions of one session in append order. A
// session with no cached entries yields ErrSessionNotFound.
func (c *SessionCache) Events(ctx context.Context, sessionID string) ([]*events.TaskTransition, error) {
	entries, err := c.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	transitions := make([]*events.TaskTransition, 0, len(entries))

	for _, entry := range entries {
		var transition events.TaskTransition
		if err := json.Unmarshal([]byte(entry), &transition); err != nil {
			c.logger.Warn("Dropping undecodable cached transition", "session_id", sessionID, "error", err)

			continue
		}

		transitions = append(transitions, &transition)
	}

	return transitions, nil
}

// Invalidate drops the cached stream of one session.
func (c *SessionCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}

	return nil
}

func (c *SessionCache) Close() error {
	return c.client.Close()
}
