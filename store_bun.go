package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// SessionProvider returns the database handle a request should use. It lets
// the embedding application share its own transaction with the store.
type SessionProvider func(ctx context.Context) bun.IDB

// BunCredentialStore is the CredentialStore backed by go-repository-bun.
type BunCredentialStore struct {
	repo      RepositoryManager
	hasher    PasswordHasher
	session   SessionProvider
	txTimeout time.Duration
	now       func() time.Time
	logger    Logger
}

var _ CredentialStore = (*BunCredentialStore)(nil)

// BunStoreOption configures a BunCredentialStore
type BunStoreOption func(*BunCredentialStore)

// WithStoreHasher sets the password hasher
func WithStoreHasher(h PasswordHasher) BunStoreOption {
	return func(s *BunCredentialStore) {
		s.hasher = h
	}
}

// WithStoreSessionProvider routes every query through the handle returned by
// provider instead of opening a transaction per mutation.
func WithStoreSessionProvider(provider SessionProvider) BunStoreOption {
	return func(s *BunCredentialStore) {
		s.session = provider
	}
}

// SessionAware is implemented by stores that can run on a handle supplied by
// the embedding application. NewFlows hands it Config.SessionProvider.
type SessionAware interface {
	UseSessionProvider(provider SessionProvider)
}

var _ SessionAware = (*BunCredentialStore)(nil)

// UseSessionProvider sets the session provider unless one was already given
// with WithStoreSessionProvider.
func (s *BunCredentialStore) UseSessionProvider(provider SessionProvider) {
	if s.session == nil {
		s.session = provider
	}
}

// WithStoreTxTimeout bounds every transaction opened by the store.
func WithStoreTxTimeout(d time.Duration) BunStoreOption {
	return func(s *BunCredentialStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithStoreClock overrides the clock used for timestamps
func WithStoreClock(now func() time.Time) BunStoreOption {
	return func(s *BunCredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStoreLogger(logger Logger) BunStoreOption {
	return func(s *BunCredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStoreLoggerProvider(provider LoggerProvider) BunStoreOption {
	return func(s *BunCredentialStore) {
		_, s.logger = ResolveLogger("auth.store", provider, s.logger)
	}
}

// NewBunCredentialStore returns a store using repo for persistence.
func NewBunCredentialStore(repo RepositoryManager, opts ...BunStoreOption) *BunCredentialStore {
	_, logger := ResolveLogger("auth.store", nil, nil)

	s := &BunCredentialStore{
		repo:      repo,
		hasher:    NewPasswordHasher(0),
		txTimeout: 10 * time.Second,
		now:       time.Now,
		logger:    logger,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *BunCredentialStore) AuthenticateLocal(ctx context.Context, email, password string) (*User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.IsExternal() {
		return nil, flowError(ErrProvisionedExternally, "", map[string]any{
			"provider": user.Provisioning.Provider(),
		})
	}

	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		if goerrors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, err
		}
		s.logger.Error("password compare failed", "error", err)
		return nil, ErrMismatchedHashAndPassword
	}

	return user, nil
}

func (s *BunCredentialStore) AuthenticateExternal(ctx context.Context, email string) (*User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if !user.IsExternal() {
		return nil, ErrProvisionedLocally
	}

	return user, nil
}

func (s *BunCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user *User
	err := s.read(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		user, err = s.repo.Users().GetByEmailTx(ctx, db, email)
		return err
	})

	if err != nil {
		return nil, s.translate(err, email)
	}

	return user, nil
}

// CreateUser inserts user with method as its provisioning. External users are
// stored active with no password hash.
func (s *BunCredentialStore) CreateUser(ctx context.Context, user *User, method ProvisioningMethod) (*User, error) {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return nil, goerrors.New("user email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if method == "" {
		method = ProvisioningLocal
	}

	user.Provisioning = method
	now := s.now()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	if method.IsExternal() {
		user.PasswordHash = ""
		user.IsActive = true
		user.ActivatedAt = &now
	} else if user.PasswordHash == "" {
		return nil, ErrNoEmptyString
	}

	var created *User
	err := s.write(ctx, func(ctx context.Context, db bun.IDB) error {
		users := s.repo.Users()
		if _, err := users.GetByEmailTx(ctx, db, user.Email); err == nil {
			return ErrStoreDuplicateEmail
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		var err error
		created, err = users.RegisterTx(ctx, db, user)
		return err
	})

	if err != nil {
		return nil, s.translate(err, user.Email)
	}

	return created, nil
}

func (s *BunCredentialStore) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

func (s *BunCredentialStore) Activate(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, ErrStoreUserNotFound
	}

	var updated *User
	err := s.write(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		updated, err = s.repo.Users().ActivateTx(ctx, db, user.ID, s.now())
		return err
	})

	if err != nil {
		return nil, s.translate(err, user.Email)
	}

	return updated, nil
}

func (s *BunCredentialStore) UpdatePassword(ctx context.Context, user *User, passwordHash string) (*User, error) {
	if user == nil {
		return nil, ErrStoreUserNotFound
	}

	if passwordHash == "" {
		return nil, ErrNoEmptyString
	}

	var updated *User
	err := s.write(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		updated, err = s.repo.Users().UpdatePasswordTx(ctx, db, user.ID, passwordHash, s.now())
		return err
	})

	if err != nil {
		return nil, s.translate(err, user.Email)
	}

	return updated, nil
}

func (s *BunCredentialStore) read(ctx context.Context, f func(ctx context.Context, db bun.IDB) error) error {
	if db := s.sessionDB(ctx); db != nil {
		return f(ctx, db)
	}
	return s.write(ctx, f)
}

func (s *BunCredentialStore) write(ctx context.Context, f func(ctx context.Context, db bun.IDB) error) error {
	if db := s.sessionDB(ctx); db != nil {
		return f(ctx, db)
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return f(ctx, tx)
	})
}

func (s *BunCredentialStore) sessionDB(ctx context.Context) bun.IDB {
	if s.session == nil {
		return nil
	}
	return s.session(ctx)
}

func (s *BunCredentialStore) translate(err error, email string) error {
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, ErrStoreDuplicateEmail), isUniqueViolation(err):
		return flowError(ErrStoreDuplicateEmail, "", map[string]any{"email": email})
	case goerrors.Is(err, ErrNoEmptyString):
		return err
	case repository.IsRecordNotFound(err):
		return flowError(ErrStoreUserNotFound, "", map[string]any{"email": email})
	default:
		return err
	}
}
