// Package history keeps a short per-session dialogue window in Redis so the
// tutor prompt can include recent turns without a database round trip.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one dialogue entry, user or tutor side.
type Message struct {
	Role string `json:"role"` // "user" or "tutor"
	Text string `json:"text"`
}

// Store is a Redis-backed recent-dialogue cache. Entries live in a list per
// session, trimmed to a fixed window.
type Store struct {
	client *redis.Client
	prefix string
	window int
	ttl    time.Duration
}

// New connects a history store to the given Redis address.
func New(addr string) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

// NewWithClient wraps an existing client (tests use miniredis here).
func NewWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: "eqi:hist",
		window: 20,
		ttl:    24 * time.Hour,
	}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID)
}

// Append records one message and trims the list to the window.
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-s.window), -1)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the latest messages, oldest first. Entries that
// fail to decode are skipped.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	if n <= 0 || n > s.window {
		n = s.window
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
