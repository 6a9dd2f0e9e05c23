package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// RequestPasswordReset emails a reset link to an active local account.
func (f *Flows) RequestPasswordReset(ctx context.Context, email string) (*Ack, error) {
	user, err := f.store.FindByEmail(ctx, email)
	if err != nil {
		if goerrors.Is(err, ErrStoreUserNotFound) {
			return nil, flowError(ErrUserNotFound, "User does not exists")
		}
		return nil, f.internal(err, "failed to look up user")
	}

	if err := f.machine.CanRequestReset(user); err != nil {
		return nil, f.resetRefusal(user, err)
	}

	token, err := f.codec.Issue(user.Email, PurposeReset, f.cfg.ResetTokenTTL())
	if err != nil {
		return nil, f.internal(err, "failed to issue reset token")
	}

	f.sendEmail(resetEmail(user.Email, f.cfg.resetLink(token)))
	f.record(ctx, ActivityEventPasswordResetRequested, user, nil)

	return ack("Check email for reset link"), nil
}

// ResetPassword redeems a reset token and stores the new password. The
// confirmation must match before the token is even looked at.
func (f *Flows) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) (*Ack, error) {
	if req.Password != req.PasswordCheck {
		return nil, flowError(ErrPasswordMismatch, "Passwords do not match")
	}

	claims, err := f.decode(token, PurposeReset)
	if err != nil {
		return nil, err
	}

	user, err := f.userForToken(ctx, claims)
	if err != nil {
		return nil, err
	}

	if err := f.machine.CanRequestReset(user); err != nil {
		return nil, f.resetRefusal(user, err)
	}

	hash, err := f.store.HashPassword(req.Password)
	if err != nil {
		if goerrors.Is(err, ErrNoEmptyString) || goerrors.Is(err, ErrPasswordTooLong) {
			return nil, err
		}
		return nil, f.internal(err, "failed to hash password")
	}

	if _, err := f.machine.ChangePassword(ctx, actorFor(user), user, hash); err != nil {
		if goerrors.Is(err, ErrInvalidTransition) || goerrors.Is(err, ErrProvisionedExternally) {
			return nil, f.resetRefusal(user, err)
		}
		return nil, f.internal(err, "failed to update password")
	}

	return ack("Password changed"), nil
}

func (f *Flows) resetRefusal(user *User, err error) error {
	if goerrors.Is(err, ErrProvisionedExternally) {
		return alreadyRegistered(user.Provisioning, "Registered through "+user.Provisioning.Provider())
	}
	return flowError(ErrInactiveAccount, "User not activated")
}
