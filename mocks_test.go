package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-routes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	rsaKeysOnce    sync.Once
	rsaPrivatePEM  string
	rsaPublicPEM   string
	rsaKeysFailure error
)

// rsaTestKeys returns a PEM key pair shared by the whole test binary.
func rsaTestKeys(t *testing.T) (string, string) {
	t.Helper()

	rsaKeysOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			rsaKeysFailure = err
			return
		}

		pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			rsaKeysFailure = err
			return
		}

		rsaPrivatePEM = encodePEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
		rsaPublicPEM = encodePEM("PUBLIC KEY", pub)
	})

	require.NoError(t, rsaKeysFailure)
	return rsaPrivatePEM, rsaPublicPEM
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) auth.Logger {
	return l
}

func (l *captureLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, c := range l.calls {
		if c.level == level {
			out = append(out, c.message)
		}
	}
	return out
}

// memoryStore is an in memory CredentialStore
type memoryStore struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	hasher auth.PasswordHasher

	findErr     error
	activateErr error

	// beforeCreate runs once, ahead of the next CreateUser, outside the lock.
	beforeCreate func(user *auth.User)

	createCalls         int
	activateCalls       int
	updatePasswordCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  map[string]*auth.User{},
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
	}
}

func (s *memoryStore) seedLocal(t *testing.T, email, password string, active bool) *auth.User {
	t.Helper()
	hash, err := s.hasher.Hash(password)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	user := &auth.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     active,
		Provisioning: auth.ProvisioningLocal,
	}
	s.users[email] = user
	return copyUser(user)
}

func (s *memoryStore) seedExternal(email string, method auth.ProvisioningMethod) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &auth.User{
		ID:           uuid.New(),
		Email:        email,
		IsActive:     true,
		Provisioning: method,
	}
	s.users[email] = user
	return copyUser(user)
}

func (s *memoryStore) get(email string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return copyUser(u)
	}
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memoryStore) AuthenticateLocal(ctx context.Context, email, password string) (*auth.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.IsExternal() {
		return nil, auth.ErrProvisionedExternally
	}
	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *memoryStore) AuthenticateExternal(ctx context.Context, email string) (*auth.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.IsExternal() {
		return nil, auth.ErrProvisionedLocally
	}
	return user, nil
}

func (s *memoryStore) CreateUser(_ context.Context, user *auth.User, method auth.ProvisioningMethod) (*auth.User, error) {
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		hook(user)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if _, ok := s.users[user.Email]; ok {
		return nil, auth.ErrStoreDuplicateEmail
	}

	created := copyUser(user)
	created.ID = uuid.New()
	created.Provisioning = method
	if method.IsExternal() {
		created.IsActive = true
		created.PasswordHash = ""
	}
	s.users[created.Email] = created
	return copyUser(created), nil
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return nil, s.findErr
	}

	user, ok := s.users[email]
	if !ok {
		return nil, auth.ErrStoreUserNotFound
	}
	return copyUser(user), nil
}

func (s *memoryStore) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

func (s *memoryStore) Activate(_ context.Context, user *auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activateCalls++
	if s.activateErr != nil {
		return nil, s.activateErr
	}
	stored, ok := s.users[user.Email]
	if !ok {
		return nil, auth.ErrStoreUserNotFound
	}
	now := time.Now()
	stored.IsActive = true
	stored.ActivatedAt = &now
	return copyUser(stored), nil
}

func (s *memoryStore) UpdatePassword(_ context.Context, user *auth.User, hash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updatePasswordCalls++
	stored, ok := s.users[user.Email]
	if !ok {
		return nil, auth.ErrStoreUserNotFound
	}
	stored.PasswordHash = hash
	return copyUser(stored), nil
}

func copyUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// recordingDispatcher keeps every email instead of sending it
type recordingDispatcher struct {
	mu     sync.Mutex
	emails []auth.LinkEmail
}

func (d *recordingDispatcher) Dispatch(email auth.LinkEmail) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = append(d.emails, email)
}

func (d *recordingDispatcher) sent() []auth.LinkEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]auth.LinkEmail(nil), d.emails...)
}

type stubVerifier struct {
	identity *auth.ExternalIdentity
	err      error
	calls    int
}

func (v *stubVerifier) VerifyCredential(_ context.Context, credential string) (*auth.ExternalIdentity, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
