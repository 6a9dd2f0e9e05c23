package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SignInGoogle exchanges a verified Google ID token for a session credential,
// creating an active externally provisioned account on first use. The
// email_verified claim is checked before any account lookup.
func (f *Flows) SignInGoogle(ctx context.Context, req GoogleSignInRequest) (*AccessToken, error) {
	if f.verifier == nil {
		return nil, f.internal(goerrors.New("identity verifier not configured", goerrors.CategoryInternal),
			"google sign in is not configured")
	}

	identity, err := f.verifier.VerifyCredential(ctx, req.Credential)
	if err != nil || identity == nil {
		f.logger.Debug("external credential rejected", "error", err)
		return nil, flowError(ErrTokenInvalid, "Token validation error")
	}

	if !identity.EmailVerified {
		return nil, flowError(ErrEmailUnverified, "Email not verified")
	}

	email := strings.TrimSpace(identity.Email)
	if email == "" {
		return nil, flowError(ErrTokenInvalid, "Token validation error")
	}

	provider := identity.Provider
	if provider == "" {
		provider = ProvisioningGoogle.Provider()
	}
	method := External(provider)

	user, err := f.externalUser(ctx, email, method)
	if err != nil {
		return nil, err
	}

	token, err := f.accessToken(user.Email)
	if err != nil {
		return nil, err
	}

	f.record(ctx, ActivityEventExternalLogin, user, map[string]any{"provider": provider})

	return token, nil
}

// externalUser finds or creates the account for an external identity.
func (f *Flows) externalUser(ctx context.Context, email string, method ProvisioningMethod) (*User, error) {
	for attempt := 0; attempt < 2; attempt++ {
		user, err := f.store.AuthenticateExternal(ctx, email)
		switch {
		case err == nil:
			if user.Provisioning != method {
				return nil, alreadyRegistered(user.Provisioning, "Already registered through "+providerTitle(user.Provisioning))
			}
			return user, nil
		case goerrors.Is(err, ErrProvisionedLocally):
			return nil, alreadyRegistered(ProvisioningLocal, "Already registered with email")
		case !goerrors.Is(err, ErrStoreUserNotFound):
			return nil, f.internal(err, "failed to look up external user")
		}

		created, err := f.store.CreateUser(ctx, &User{
			Email:    email,
			IsActive: f.machine.InitialState(method) == AccountActive,
		}, method)
		if err == nil {
			f.record(ctx, ActivityEventUserRegistered, created, map[string]any{"provider": method.Provider()})
			return created, nil
		}

		// lost a creation race, read the winner
		if !goerrors.Is(err, ErrStoreDuplicateEmail) {
			return nil, f.internal(err, "failed to create external user")
		}
	}

	return nil, alreadyRegistered(method, "Email already registered")
}
