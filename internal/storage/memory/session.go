package memory

import (
	"context"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/cmap"
)

// SessionStore holds at most one session per (user, client type).
type SessionStore struct {
	sessions *cmap.Map[string, *domain.ClientSession]
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: cmap.New[string, *domain.ClientSession]()}
}

// Replace stores sess and returns the session it displaced.
func (s *SessionStore) Replace(_ context.Context, sess *domain.ClientSession) (*domain.ClientSession, error) {
	prev, loaded := s.sessions.Swap(sess.Key(), sess.Clone())
	if !loaded {
		return nil, nil
	}
	return prev.Clone(), nil
}

// CreateIfAbsent stores sess only when no session holds its key.
func (s *SessionStore) CreateIfAbsent(_ context.Context, sess *domain.ClientSession) (*domain.ClientSession, bool, error) {
	actual, loaded := s.sessions.LoadOrStore(sess.Key(), sess.Clone())
	if loaded {
		return actual.Clone(), false, nil
	}
	return nil, true, nil
}

// Get returns the live session of (userID, ct).
func (s *SessionStore) Get(_ context.Context, userID string, ct domain.ClientType) (*domain.ClientSession, error) {
	sess, ok := s.sessions.Get(domain.SessionKey(userID, ct))
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess.Clone(), nil
}

// Delete removes the session of (userID, ct), only if it is sessionID
// when sessionID is set.
func (s *SessionStore) Delete(_ context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error) {
	return s.sessions.DeleteIf(domain.SessionKey(userID, ct), func(cur *domain.ClientSession) bool {
		return sessionID == "" || cur.SessionID == sessionID
	}), nil
}

// DeleteAllForUser removes the sessions of every client type.
func (s *SessionStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, ct := range domain.ClientTypes {
		if _, ok := s.sessions.Pop(domain.SessionKey(userID, ct)); ok {
			n++
		}
	}
	return n, nil
}

// Touch refreshes LastActivity when sessionID is still live.
func (s *SessionStore) Touch(_ context.Context, userID string, ct domain.ClientType, sessionID string, at time.Time) (bool, error) {
	_, ok := s.sessions.UpdateIf(domain.SessionKey(userID, ct), func(cur *domain.ClientSession) (*domain.ClientSession, bool) {
		if cur.SessionID != sessionID {
			return cur, false
		}
		next := cur.Clone()
		next.LastActivity = at
		return next, true
	})
	return ok, nil
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	return s.sessions.Count()
}
