package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// SignUp registers a local account pending activation and emails an
// activation link.
func (f *Flows) SignUp(ctx context.Context, req SignUpRequest) (*Ack, error) {
	existing, err := f.store.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return nil, alreadyRegistered(existing.Provisioning, "Email already registered")
	case !goerrors.Is(err, ErrStoreUserNotFound):
		return nil, f.internal(err, "failed to look up user")
	}

	hash, err := f.store.HashPassword(req.Password)
	if err != nil {
		if goerrors.Is(err, ErrNoEmptyString) || goerrors.Is(err, ErrPasswordTooLong) {
			return nil, err
		}
		return nil, f.internal(err, "failed to hash password")
	}

	token, err := f.codec.Issue(req.Email, PurposeActivation, f.cfg.TokenTTL())
	if err != nil {
		return nil, f.internal(err, "failed to issue activation token")
	}

	user, err := f.store.CreateUser(ctx, &User{
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     f.machine.InitialState(ProvisioningLocal) == AccountActive,
	}, ProvisioningLocal)
	if err != nil {
		if goerrors.Is(err, ErrStoreDuplicateEmail) {
			return nil, alreadyRegistered(ProvisioningLocal, "Email already registered")
		}
		return nil, f.internal(err, "failed to create user")
	}

	f.sendEmail(activationEmail(req.Email, f.cfg.activationLink(token)))
	f.record(ctx, ActivityEventUserRegistered, user, map[string]any{"provider": ProvisioningLocal.Provider()})

	return ack("Check email for confirmation message"), nil
}
