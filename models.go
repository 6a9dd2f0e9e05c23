package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProvisioningMethod records how an account came to exist: "local" for
// password registrations, "external:<provider>" for identity provider sign ins.
type ProvisioningMethod string

const (
	// ProvisioningLocal is a password registration
	ProvisioningLocal ProvisioningMethod = "local"
	// ProvisioningGoogle is a Google sign in
	ProvisioningGoogle ProvisioningMethod = externalPrefix + "google"

	externalPrefix = "external:"
)

// External returns the provisioning method for the given identity provider.
func External(provider string) ProvisioningMethod {
	return ProvisioningMethod(externalPrefix + strings.ToLower(strings.TrimSpace(provider)))
}

// IsExternal reports whether the method names an identity provider.
func (p ProvisioningMethod) IsExternal() bool {
	return strings.HasPrefix(string(p), externalPrefix)
}

// Provider returns the identity provider name, or "local".
func (p ProvisioningMethod) Provider() string {
	if p.IsExternal() {
		return strings.TrimPrefix(string(p), externalPrefix)
	}
	return string(ProvisioningLocal)
}

// User is the account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string             `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string             `bun:"password_hash" json:"-"`
	IsActive      bool               `bun:"is_active,notnull" json:"is_active"`
	Provisioning  ProvisioningMethod `bun:"provisioning,notnull" json:"provisioning"`
	ActivatedAt   *time.Time         `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	PasswordAt    *time.Time         `bun:"password_changed_at,nullzero" json:"password_changed_at,omitempty"`
	CreatedAt     *time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time         `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsExternal reports whether the user signs in through an identity provider.
func (u *User) IsExternal() bool {
	return u != nil && u.Provisioning.IsExternal()
}

// State returns the account state derived from the active flag.
func (u *User) State() AccountState {
	if u != nil && u.IsActive {
		return AccountActive
	}
	return AccountPendingActivation
}
