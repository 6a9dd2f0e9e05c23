package auth

import (
	"context"
)

// CredentialStore is the persistence contract the flows rely on.
//
// Implementations report lookups that find nothing with ErrStoreUserNotFound,
// a local password check against an externally provisioned user with
// ErrProvisionedExternally, an external lookup that hits a local user with
// ErrProvisionedLocally, a wrong password with ErrMismatchedHashAndPassword,
// and a uniqueness violation on create with ErrStoreDuplicateEmail. Matching
// is done with errors.Is.
type CredentialStore interface {
	AuthenticateLocal(ctx context.Context, email, password string) (*User, error)
	AuthenticateExternal(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User, method ProvisioningMethod) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	HashPassword(password string) (string, error)

	// Activate persists the active flag for user.
	Activate(ctx context.Context, user *User) (*User, error)
	// UpdatePassword persists a new hash for user.
	UpdatePassword(ctx context.Context, user *User, passwordHash string) (*User, error)
}
