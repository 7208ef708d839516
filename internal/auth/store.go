package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rfpdesk/rfpdesk/internal/identity"
)

// RefreshRecord is what a refresh token resolves to.
type RefreshRecord struct {
	SessionID string            `json:"sid"`
	UserID    uuid.UUID         `json:"user_id"`
	// Replay is set when the token was already rotated inside the reuse
	// interval; it holds the session that rotation produced.
	Replay    *identity.Session `json:"-"`
}

// OneTimeKind separates confirmation and recovery tokens.
type OneTimeKind string

const (
	OneTimeConfirm  OneTimeKind = "confirm"
	OneTimeRecovery OneTimeKind = "recovery"
)

// TokenStore keeps live session ids, refresh tokens and one-time links.
type TokenStore interface {
	SaveSession(ctx context.Context, sid string, userID uuid.UUID, refreshToken string, ttl time.Duration) error
	SessionActive(ctx context.Context, sid string) (bool, error)
	RotateRefresh(ctx context.Context, refreshToken string) (RefreshRecord, error)
	RememberRotation(ctx context.Context, refreshToken, sid string, sess identity.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, sid string) error
	SaveOneTime(ctx context.Context, kind OneTimeKind, token string, userID uuid.UUID, ttl time.Duration) error
	ConsumeOneTime(ctx context.Context, kind OneTimeKind, token string) (uuid.UUID, error)
}

// RedisTokenStore implements TokenStore on Redis. Refresh tokens are stored
// by SHA-256 only.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore constructs a RedisTokenStore.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

type rotation struct {
	SessionID string           `json:"sid"`
	Session   identity.Session `json:"session"`
}

type sessionEntry struct {
	UserID      uuid.UUID `json:"user_id"`
	RefreshHash string    `json:"refresh_hash"`
}

// SaveSession records sid as live and binds refreshToken to it, replacing
// any previous refresh token of the same session.
func (s *RedisTokenStore) SaveSession(ctx context.Context, sid string, userID uuid.UUID, refreshToken string, ttl time.Duration) error {
	if prev, err := s.loadSession(ctx, sid); err == nil && prev.RefreshHash != "" {
		s.client.Del(ctx, refreshKey(prev.RefreshHash))
	}
	entry := sessionEntry{UserID: userID, RefreshHash: hashToken(refreshToken)}
	sessionJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	recordJSON, err := json.Marshal(RefreshRecord{SessionID: sid, UserID: userID})
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sid), sessionJSON, ttl)
	pipe.Set(ctx, refreshKey(entry.RefreshHash), recordJSON, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// SessionActive reports whether sid has not been revoked or expired.
func (s *RedisTokenStore) SessionActive(ctx context.Context, sid string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sid)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RotateRefresh consumes refreshToken. A token can be used once; a second
// use inside the reuse interval gets the remembered rotation back.
func (s *RedisTokenStore) RotateRefresh(ctx context.Context, refreshToken string) (RefreshRecord, error) {
	hash := hashToken(refreshToken)
	raw, err := s.client.GetDel(ctx, refreshKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.replay(ctx, hash)
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	var rec RefreshRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return RefreshRecord{}, err
	}
	return rec, nil
}

// RememberRotation maps a consumed refresh token to the session that
// replaced it for ttl, so concurrent requests carrying the old cookie land
// on the same pair instead of failing.
func (s *RedisTokenStore) RememberRotation(ctx context.Context, refreshToken, sid string, sess identity.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(rotation{SessionID: sid, Session: sess})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rotatedKey(hashToken(refreshToken)), raw, ttl).Err()
}

func (s *RedisTokenStore) replay(ctx context.Context, hash string) (RefreshRecord, error) {
	raw, err := s.client.Get(ctx, rotatedKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RefreshRecord{}, ErrSessionExpired
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	var rot rotation
	if err := json.Unmarshal(raw, &rot); err != nil {
		return RefreshRecord{}, err
	}
	return RefreshRecord{SessionID: rot.SessionID, UserID: rot.Session.Identity.ID, Replay: &rot.Session}, nil
}

// DeleteSession revokes sid and its refresh token. Unknown ids are ignored.
func (s *RedisTokenStore) DeleteSession(ctx context.Context, sid string) error {
	entry, err := s.loadSession(ctx, sid)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, sessionKey(sid), refreshKey(entry.RefreshHash)).Err()
}

// SaveOneTime stores a single-use token for userID.
func (s *RedisTokenStore) SaveOneTime(ctx context.Context, kind OneTimeKind, token string, userID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, oneTimeKey(kind, token), userID.String(), ttl).Err()
}

// ConsumeOneTime resolves and deletes a single-use token.
func (s *RedisTokenStore) ConsumeOneTime(ctx context.Context, kind OneTimeKind, token string) (uuid.UUID, error) {
	raw, err := s.client.GetDel(ctx, oneTimeKey(kind, token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionExpired
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(raw)
}

func (s *RedisTokenStore) loadSession(ctx context.Context, sid string) (sessionEntry, error) {
	raw, err := s.client.Get(ctx, sessionKey(sid)).Bytes()
	if err != nil {
		return sessionEntry{}, err
	}
	var entry sessionEntry
	err = json.Unmarshal(raw, &entry)
	return entry, err
}

func sessionKey(sid string) string  { return "auth:sid:" + sid }
func refreshKey(hash string) string { return "auth:refresh:" + hash }
func rotatedKey(hash string) string { return "auth:rotated:" + hash }
func oneTimeKey(kind OneTimeKind, token string) string {
	return "auth:" + string(kind) + ":" + hashToken(token)
}
