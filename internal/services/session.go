package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultSessionTTL is 7 days
	DefaultSessionTTL = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionStore keeps one opaque session token per user in Redis.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

// Create issues a token for id. Any previous session of the same user is
// invalidated so the TTL restarts from this sign-in.
func (s *SessionStore) Create(ctx context.Context, id Identity) (string, error) {
	if err := s.InvalidateUser(ctx, id.UserID); err != nil {
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	payload, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+token, payload, s.ttl)
	pipe.Set(ctx, UserSessionKeyPrefix+id.UserID, token, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Validate resolves token to the identity it was issued for.
func (s *SessionStore) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	raw, err := s.client.Get(ctx, SessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil || id.UserID == "" {
		return nil, ErrSessionNotFound
	}
	return &id, nil
}

// Invalidate removes token and its user mapping. Unknown tokens are a no-op.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	id, err := s.Validate(ctx, token)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil
	case err != nil:
		return err
	}

	userKey := UserSessionKeyPrefix + id.UserID
	current, err := s.client.Get(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load user session: %w", err)
	}

	keys := []string{SessionKeyPrefix + token}
	if current == token {
		keys = append(keys, userKey)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// InvalidateUser drops the current session of userID, if any.
func (s *SessionStore) InvalidateUser(ctx context.Context, userID string) error {
	userKey := UserSessionKeyPrefix + userID

	token, err := s.client.Get(ctx, userKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user session: %w", err)
	}

	if err := s.client.Del(ctx, SessionKeyPrefix+token, userKey).Err(); err != nil {
		return fmt.Errorf("delete user session: %w", err)
	}
	return nil
}
