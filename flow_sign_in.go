package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// SignIn authenticates a local account and returns a session credential.
// Only active, locally provisioned users with a matching password succeed.
func (f *Flows) SignIn(ctx context.Context, req SignInRequest) (*AccessToken, error) {
	user, err := f.store.AuthenticateLocal(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case goerrors.Is(err, ErrProvisionedExternally):
			method := f.provisioningOf(ctx, req.Email, err)
			f.record(ctx, ActivityEventLoginFailure, nil, map[string]any{"email": req.Email, "reason": "external"})
			return nil, alreadyRegistered(method, "Already registered through "+providerTitle(method))
		case goerrors.Is(err, ErrStoreUserNotFound), goerrors.Is(err, ErrMismatchedHashAndPassword):
			f.record(ctx, ActivityEventLoginFailure, nil, map[string]any{"email": req.Email, "reason": "credentials"})
			return nil, flowError(ErrInvalidCredentials, "Incorrect username or password")
		default:
			return nil, f.internal(err, "failed to authenticate user")
		}
	}

	if err := f.machine.CanSignIn(user); err != nil {
		f.record(ctx, ActivityEventLoginFailure, user, map[string]any{"reason": "inactive"})
		return nil, flowError(ErrInactiveAccount, "Inactive user")
	}

	token, err := f.accessToken(user.Email)
	if err != nil {
		return nil, err
	}

	f.record(ctx, ActivityEventLoginSuccess, user, nil)
	f.logger.Debug("user signed in", "user_id", user.ID.String())

	return token, nil
}
