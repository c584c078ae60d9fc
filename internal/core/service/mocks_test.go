package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockCredentialRepo is a mock implementation of CredentialRepository.
type mockCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.CliCredential // tokenHash -> credential
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{creds: make(map[string]*domain.CliCredential)}
}

func (m *mockCredentialRepo) Create(ctx context.Context, cred *domain.CliCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.creds[cred.TokenHash]; exists {
		return domain.ErrCredentialConflict
	}
	m.creds[cred.TokenHash] = cred.Clone()
	return nil
}

func (m *mockCredentialRepo) GetByHash(ctx context.Context, tokenHash string) (*domain.CliCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *mockCredentialRepo) RecordUsage(ctx context.Context, tokenHash string, now time.Time) (*domain.CliCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[tokenHash]
	if !ok || !c.IsUsable(now) {
		return nil, domain.ErrNotFound
	}
	c.RecordUse(now)
	return c.Clone(), nil
}

func (m *mockCredentialRepo) Deactivate(ctx context.Context, tokenHash string, reason domain.DeactivationReason, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[tokenHash]
	if !ok {
		return false, nil
	}
	return c.Deactivate(reason, now), nil
}

func (m *mockCredentialRepo) DeactivateAllForUser(ctx context.Context, userID string, reason domain.DeactivationReason, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.creds {
		if c.UserID == userID && c.Deactivate(reason, now) {
			n++
		}
	}
	return n, nil
}

func (m *mockCredentialRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.creds {
		if c.IsActive && c.IsExpired(now) && c.Deactivate(domain.ReasonExpired, now) {
			n++
		}
	}
	return n, nil
}

func (m *mockCredentialRepo) List(ctx context.Context, userID string) ([]*domain.CliCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CliCredential
	for _, c := range m.creds {
		if userID == "" || c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// mockSessionRepo is a mock implementation of SessionRepository.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.ClientSession // SessionKey -> session
	commits  []string                         // session ids in commit order
	failNext error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.ClientSession)}
}

func (m *mockSessionRepo) Replace(ctx context.Context, s *domain.ClientSession) (*domain.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}
	prior := m.sessions[s.Key()]
	m.sessions[s.Key()] = s.Clone()
	m.commits = append(m.commits, s.SessionID)
	return prior, nil
}

func (m *mockSessionRepo) CreateIfAbsent(ctx context.Context, s *domain.ClientSession) (*domain.ClientSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.Key()]; ok {
		return existing.Clone(), false, nil
	}
	m.sessions[s.Key()] = s.Clone()
	return nil, true, nil
}

func (m *mockSessionRepo) Get(ctx context.Context, userID string, ct domain.ClientType) (*domain.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[domain.SessionKey(userID, ct)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.SessionKey(userID, ct)
	s, ok := m.sessions[key]
	if !ok || (sessionID != "" && s.SessionID != sessionID) {
		return false, nil
	}
	delete(m.sessions, key)
	return true, nil
}

func (m *mockSessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, key)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) Touch(ctx context.Context, userID string, ct domain.ClientType, sessionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[domain.SessionKey(userID, ct)]
	if !ok || s.SessionID != sessionID {
		return false, nil
	}
	s.LastActivity = at
	return true, nil
}

func (m *mockSessionRepo) count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// mockUserStore is a mock implementation of UserStore.
type mockUserStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	passwords map[string]string // email -> password
	blockErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:     make(map[string]*domain.User),
		passwords: make(map[string]string),
	}
}

func (m *mockUserStore) add(u *domain.User, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	m.passwords[u.Email] = password
}

func (m *mockUserStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *mockUserStore) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pw, ok := m.passwords[email]; !ok || pw != password {
		return nil, domain.ErrInvalidCredentials
	}
	for _, u := range m.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, domain.ErrInvalidCredentials
}

func (m *mockUserStore) BlockUser(ctx context.Context, userID string, block domain.BlockInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockErr != nil {
		return m.blockErr
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Status = domain.UserBlocked
	b := block
	u.Block = &b
	return nil
}

// mockTrapPromptRepo is a mock implementation of TrapPromptRepository.
type mockTrapPromptRepo struct {
	mu      sync.Mutex
	prompts map[string]*domain.TrapPrompt // id -> prompt
}

func newMockTrapPromptRepo() *mockTrapPromptRepo {
	return &mockTrapPromptRepo{prompts: make(map[string]*domain.TrapPrompt)}
}

func (m *mockTrapPromptRepo) GetByRealResourceID(ctx context.Context, realID string) (*domain.TrapPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prompts {
		if p.RealResourceID == realID {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTrapPromptRepo) IncrementAccess(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	p.AccessCount++
	return p.AccessCount, nil
}

func (m *mockTrapPromptRepo) List(ctx context.Context) ([]*domain.TrapPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TrapPrompt
	for _, p := range m.prompts {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockTrapPromptRepo) Upsert(ctx context.Context, p *domain.TrapPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[p.ID] = p.Clone()
	return nil
}

// mockPromptRepo is a mock implementation of PromptRepository.
type mockPromptRepo struct {
	mu      sync.Mutex
	prompts map[string]*domain.Prompt
}

func newMockPromptRepo() *mockPromptRepo {
	return &mockPromptRepo{prompts: make(map[string]*domain.Prompt)}
}

func (m *mockPromptRepo) Get(ctx context.Context, id string) (*domain.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *mockPromptRepo) List(ctx context.Context) ([]*domain.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Prompt
	for _, p := range m.prompts {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockPromptRepo) IncrementUsage(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	p.UsageCount++
	return p.UsageCount, nil
}

func (m *mockPromptRepo) Upsert(ctx context.Context, p *domain.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[p.ID] = p.Clone()
	return nil
}

// mockAuditRepo is a mock implementation of AuditRepository.
type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.TrapAccessLog
	fail    error
	block   chan struct{} // when set, Append waits on it or ctx
}

func (m *mockAuditRepo) Append(ctx context.Context, e *domain.TrapAccessLog) error {
	m.mu.Lock()
	block, fail := m.block, m.fail
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}
	m.mu.Lock()
	m.entries = append(m.entries, e.Clone())
	m.mu.Unlock()
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.TrapAccessLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TrapAccessLog
	for _, e := range m.entries {
		if f.Match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockAuditRepo) snapshot() []*domain.TrapAccessLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.TrapAccessLog(nil), m.entries...)
}

// mockAuditSink records fallback writes.
type mockAuditSink struct {
	mu      sync.Mutex
	entries []*domain.TrapAccessLog
}

func (m *mockAuditSink) Write(e *domain.TrapAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e.Clone())
	return nil
}

func (m *mockAuditSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// recordingAudit captures Record calls synchronously.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.TrapAccessLog
}

func (r *recordingAudit) Record(e domain.TrapAccessLog) *domain.TrapAccessLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = "audit-" + string(rune('a'+len(r.entries)))
	r.entries = append(r.entries, e)
	return e.Clone()
}

var errStorageDown = errors.New("storage down")
