package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type testClock struct{ t time.Time }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type stubStore struct {
	users      map[string]*domain.User
	nextID     int
	err        error
	lastLookup string
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (s *stubStore) unavailable(op string) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceUnavailable, s.err)
}

func (s *stubStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.lastLookup = "email"
	if s.err != nil {
		return nil, s.unavailable("find by email")
	}
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.lastLookup = "username"
	if s.err != nil {
		return nil, s.unavailable("find by username")
	}
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.unavailable("find by id")
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *stubStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if s.err != nil {
		return nil, s.unavailable("create")
	}
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	s.nextID++
	c := cloneUser(user)
	c.ID = "u" + strconv.Itoa(s.nextID)
	s.users[c.ID] = c
	return cloneUser(c), nil
}

func (s *stubStore) UpdatePassword(_ context.Context, id, hash string) error {
	if s.err != nil {
		return s.unavailable("update password")
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *stubStore) MarkVerified(_ context.Context, id string) error {
	if s.err != nil {
		return s.unavailable("mark verified")
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Verified = true
	return nil
}

func (s *stubStore) UpdateDetails(_ context.Context, id, username, email string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.unavailable("update details")
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if username != "" {
		u.Username = username
	}
	if email != "" && email != u.Email {
		u.Email = email
		u.Verified = false
	}
	return cloneUser(u), nil
}

func (s *stubStore) SetActive(_ context.Context, id string, active bool) error {
	if s.err != nil {
		return s.unavailable("set active")
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Active = active
	return nil
}

// seed stores a user directly, bypassing Create.
func (s *stubStore) seed(u domain.User) *domain.User {
	s.users[u.ID] = &u
	return cloneUser(&u)
}

type stubHasher struct {
	verifies []string
}

func (h *stubHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func (h *stubHasher) Verify(hash, p string) bool {
	h.verifies = append(h.verifies, hash)
	return hash == "hashed:"+p
}

type denyEntry struct {
	marker string
	ttl    time.Duration
}

type stubDenylist struct {
	entries map[string]denyEntry
	err     error
}

func newStubDenylist() *stubDenylist {
	return &stubDenylist{entries: make(map[string]denyEntry)}
}

func (d *stubDenylist) Put(_ context.Context, key, marker string, ttl time.Duration) error {
	if d.err != nil {
		return fmt.Errorf("put: %w: %w", domain.ErrServiceUnavailable, d.err)
	}
	d.entries[key] = denyEntry{marker: marker, ttl: ttl}
	return nil
}

func (d *stubDenylist) Get(_ context.Context, key string) (string, bool, error) {
	if d.err != nil {
		return "", false, fmt.Errorf("get: %w: %w", domain.ErrServiceUnavailable, d.err)
	}
	e, ok := d.entries[key]
	return e.marker, ok, nil
}

func (d *stubDenylist) PutIfAbsent(_ context.Context, key, marker string, ttl time.Duration) (bool, error) {
	if d.err != nil {
		return false, fmt.Errorf("put if absent: %w: %w", domain.ErrServiceUnavailable, d.err)
	}
	if _, ok := d.entries[key]; ok {
		return false, nil
	}
	d.entries[key] = denyEntry{marker: marker, ttl: ttl}
	return true, nil
}

type stubQueue struct {
	msgs []ports.MailMessage
	err  error
}

func (q *stubQueue) Enqueue(msg ports.MailMessage) error {
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type authFixture struct {
	svc      *AuthService
	users    *UserService
	store    *stubStore
	denylist *stubDenylist
	hasher   *stubHasher
	queue    *stubQueue
	clock    *testClock
	tokens   *TokenService
}

func newAuthFixture(singleUse bool) *authFixture {
	clock := newTestClock()
	tokens, err := NewTokenService(TokenConfig{Secret: "test-secret"}, WithClock(clock.Now))
	if err != nil {
		panic(err)
	}
	f := &authFixture{
		store:    newStubStore(),
		denylist: newStubDenylist(),
		hasher:   &stubHasher{},
		queue:    &stubQueue{},
		clock:    clock,
		tokens:   tokens,
	}
	f.svc = NewAuthService(f.store, f.hasher, tokens, f.denylist, f.queue, FlowConfig{
		AccessTTL: 15 * time.Minute,
		VerifyTTL: time.Hour,
		ResetTTL:  time.Hour,
		SingleUse: singleUse,
		BaseURL:   "http://localhost:8080/",
	}, zerolog.Nop())
	f.users = NewUserService(f.store, f.hasher, tokens, f.denylist, zerolog.Nop())
	return f
}

func (f *authFixture) seedAlice(verified, active bool) *domain.User {
	return f.store.seed(domain.User{
		ID:           "u-alice",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hashed:correct-horse",
		Role:         domain.RoleUser,
		Active:       active,
		Verified:     verified,
	})
}

func (f *authFixture) accessToken(u *domain.User) string {
	tok, err := f.tokens.Issue(domain.PurposeAccess, u.Username, u.ID, u.Role, 15*time.Minute)
	if err != nil {
		panic(err)
	}
	return tok
}
