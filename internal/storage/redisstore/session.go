package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Prefix namespaces keys (default: "cligate:session:").
	Prefix string

	// TTL expires session keys idle for that long; Replace and Touch
	// restart it. Zero keeps them until replaced or deleted.
	TTL time.Duration
}

// casScript replaces KEYS[1] with ARGV[2] only if it still holds ARGV[1].
// A positive ARGV[3] restarts the key's TTL in milliseconds.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// cadScript deletes KEYS[1] only if it still holds ARGV[1].
var cadScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

const casAttempts = 5

// SessionStore implements the session repository on Redis.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*SessionStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "cligate:session:"
	}
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SessionStore) key(userID string, ct domain.ClientType) string {
	return s.prefix + domain.SessionKey(userID, ct)
}

func decodeSession(raw string) (*domain.ClientSession, error) {
	var sess domain.ClientSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, domain.ErrStorage.WithCause(fmt.Errorf("decode session: %w", err))
	}
	return &sess, nil
}

func storageErr(err error) error {
	return domain.ErrStorage.WithCause(err)
}

// Replace stores sess and returns the session it displaced.
func (s *SessionStore) Replace(ctx context.Context, sess *domain.ClientSession) (*domain.ClientSession, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}

	prev, err := s.client.SetArgs(ctx, s.key(sess.UserID, sess.ClientType), data, redis.SetArgs{
		Get: true,
		TTL: s.ttl,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return decodeSession(prev)
}

// CreateIfAbsent stores sess only when the key is free.
func (s *SessionStore) CreateIfAbsent(ctx context.Context, sess *domain.ClientSession) (*domain.ClientSession, bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, false, domain.ErrInternal.WithCause(err)
	}

	key := s.key(sess.UserID, sess.ClientType)
	created, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return nil, false, storageErr(err)
	}
	if created {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, sess.UserID, sess.ClientType)
	if errors.Is(err, domain.ErrNotFound) {
		// Deleted between SETNX and GET; still a rejection.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *SessionStore) getRaw(ctx context.Context, key string) (string, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storageErr(err)
	}
	return raw, nil
}

// Get returns the live session of (userID, ct).
func (s *SessionStore) Get(ctx context.Context, userID string, ct domain.ClientType) (*domain.ClientSession, error) {
	raw, err := s.getRaw(ctx, s.key(userID, ct))
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Delete removes the session of (userID, ct), only if it is sessionID
// when sessionID is set.
func (s *SessionStore) Delete(ctx context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error) {
	key := s.key(userID, ct)
	if sessionID == "" {
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return false, storageErr(err)
		}
		return n > 0, nil
	}

	for range casAttempts {
		raw, err := s.getRaw(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		cur, err := decodeSession(raw)
		if err != nil {
			return false, err
		}
		if cur.SessionID != sessionID {
			return false, nil
		}

		n, err := cadScript.Run(ctx, s.client, []string{key}, raw).Int()
		if err != nil {
			return false, storageErr(err)
		}
		if n > 0 {
			return true, nil
		}
		// The value changed under us (a touch or a replace); look again.
	}
	return false, storageErr(fmt.Errorf("delete %s: too much contention", key))
}

// DeleteAllForUser removes the sessions of every client type.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	keys := make([]string, 0, len(domain.ClientTypes))
	for _, ct := range domain.ClientTypes {
		keys = append(keys, s.key(userID, ct))
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, storageErr(err)
	}
	return int(n), nil
}

// Touch refreshes LastActivity when sessionID is still live.
func (s *SessionStore) Touch(ctx context.Context, userID string, ct domain.ClientType, sessionID string, at time.Time) (bool, error) {
	key := s.key(userID, ct)
	for range casAttempts {
		raw, err := s.getRaw(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		cur, err := decodeSession(raw)
		if err != nil {
			return false, err
		}
		if cur.SessionID != sessionID {
			return false, nil
		}
		if !at.After(cur.LastActivity) {
			return true, nil
		}

		cur.LastActivity = at
		next, err := json.Marshal(cur)
		if err != nil {
			return false, domain.ErrInternal.WithCause(err)
		}
		ok, err := casScript.Run(ctx, s.client, []string{key}, raw, next, s.ttl.Milliseconds()).Int()
		if err != nil {
			return false, storageErr(err)
		}
		if ok == 1 {
			return true, nil
		}
	}
	return false, storageErr(fmt.Errorf("touch %s: too much contention", key))
}

// Ping checks the connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *SessionStore) Close() error {
	return s.client.Close()
}
