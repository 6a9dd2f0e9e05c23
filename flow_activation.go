package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Activate redeems an activation token. Redeeming a token for an account that
// is already active is not an error.
func (f *Flows) Activate(ctx context.Context, token string) (*ActivationOutcome, error) {
	claims, err := f.decode(token, PurposeActivation)
	if err != nil {
		return nil, err
	}

	user, err := f.userForToken(ctx, claims)
	if err != nil {
		return nil, err
	}

	result, _, err := f.machine.Activate(ctx, actorFor(user), user)
	if err != nil {
		if goerrors.Is(err, ErrStoreUserNotFound) {
			return nil, flowError(ErrUserNotFound, "No user for the token")
		}
		return nil, f.internal(err, "failed to activate user")
	}

	if result == ActivationAlreadyConfirmed {
		return &ActivationOutcome{Ack: *ack("Email already confirmed")}, nil
	}

	return &ActivationOutcome{
		Ack:      *ack("Email confirmed"),
		Redirect: f.cfg.LoginRedirect,
	}, nil
}

// ResendActivation emails a fresh activation link to an account that is not
// active yet.
func (f *Flows) ResendActivation(ctx context.Context, email string) (*Ack, error) {
	user, err := f.store.FindByEmail(ctx, email)
	if err != nil {
		if goerrors.Is(err, ErrStoreUserNotFound) {
			return nil, flowError(ErrUserNotFound, "Email not found")
		}
		return nil, f.internal(err, "failed to look up user")
	}

	if err := f.machine.CanResendActivation(user); err != nil {
		return nil, flowError(ErrAlreadyActive, "Email already activated")
	}

	token, err := f.codec.Issue(user.Email, PurposeActivation, f.cfg.TokenTTL())
	if err != nil {
		return nil, f.internal(err, "failed to issue activation token")
	}

	f.sendEmail(activationEmail(user.Email, f.cfg.activationLink(token)))
	f.record(ctx, ActivityEventActivationResent, user, nil)

	return ack("Check your email for confirmation message"), nil
}
