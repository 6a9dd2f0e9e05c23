package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by the errors returned from Flows. Clients should branch
// on these, not on the message.
const (
	TextCodeInvalidCredentials = goerrors.TextCodeInvalidCredentials
	TextCodeInactiveAccount    = "INACTIVE_ACCOUNT"
	TextCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	TextCodeAlreadyActive      = "ALREADY_ACTIVE"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenExpired       = goerrors.TextCodeTokenExpired
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeEmailUnverified    = "EMAIL_UNVERIFIED"
	TextCodePasswordMismatch   = "PASSWORD_MISMATCH"
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeInternal           = "INTERNAL_ERROR"
)

// Flow error kinds. Flows return clones of these with a specific detail
// message; errors.Is still matches the kind.
var (
	ErrInvalidCredentials = goerrors.New("Incorrect username or password", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	ErrInactiveAccount = goerrors.New("Inactive user", goerrors.CategoryValidation).
				WithTextCode(TextCodeInactiveAccount).
				WithCode(goerrors.CodeBadRequest)

	ErrAlreadyRegistered = goerrors.New("Email already registered", goerrors.CategoryConflict).
				WithTextCode(TextCodeAlreadyRegistered).
				WithCode(goerrors.CodeBadRequest)

	ErrAlreadyActive = goerrors.New("Email already activated", goerrors.CategoryValidation).
				WithTextCode(TextCodeAlreadyActive).
				WithCode(goerrors.CodeBadRequest)

	ErrTokenInvalid = goerrors.New("Token validation error", goerrors.CategoryValidation).
			WithTextCode(TextCodeTokenInvalid).
			WithCode(goerrors.CodeBadRequest)

	ErrTokenExpired = goerrors.New("Token has expired", goerrors.CategoryValidation).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeBadRequest)

	ErrUserNotFound = goerrors.New("User does not exists", goerrors.CategoryNotFound).
			WithTextCode(TextCodeUserNotFound).
			WithCode(goerrors.CodeBadRequest)

	ErrEmailUnverified = goerrors.New("Email not verified", goerrors.CategoryAuth).
				WithTextCode(TextCodeEmailUnverified).
				WithCode(goerrors.CodeBadRequest)

	ErrPasswordMismatch = goerrors.New("Passwords do not match", goerrors.CategoryValidation).
				WithTextCode(TextCodePasswordMismatch).
				WithCode(goerrors.CodeBadRequest)
)

// Credential store errors. These stay inside the package boundary: Flows
// translates them before returning.
var (
	ErrStoreUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
				WithTextCode("STORE_USER_NOT_FOUND").
				WithCode(goerrors.CodeNotFound)

	ErrStoreDuplicateEmail = goerrors.New("email already in use", goerrors.CategoryConflict).
				WithTextCode("STORE_DUPLICATE_EMAIL").
				WithCode(goerrors.CodeConflict)

	ErrProvisionedExternally = goerrors.New("user was provisioned by an external provider", goerrors.CategoryConflict).
					WithTextCode("PROVISIONED_EXTERNALLY").
					WithCode(goerrors.CodeConflict)

	ErrProvisionedLocally = goerrors.New("user was provisioned locally", goerrors.CategoryConflict).
				WithTextCode("PROVISIONED_LOCALLY").
				WithCode(goerrors.CodeConflict)

	ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
					WithTextCode(TextCodeInvalidCredentials).
					WithCode(goerrors.CodeUnauthorized)

	ErrNoEmptyString = goerrors.New("empty password not allowed", goerrors.CategoryValidation).
				WithTextCode(goerrors.TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)

	ErrPasswordTooLong = goerrors.New("password exceeds 72 bytes", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidation).
				WithCode(goerrors.CodeBadRequest)
)

// ErrInvalidTransition is returned when the state machine refuses a move.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode("INVALID_ACCOUNT_TRANSITION").
	WithCode(goerrors.CodeBadRequest)

// ErrorKind returns the text code of err, or an empty string when err does
// not carry one.
func ErrorKind(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// flowError clones kind with a specific detail. The kind stays reachable
// through Unwrap so errors.Is keeps working on the clone.
func flowError(kind *goerrors.Error, detail string, meta ...map[string]any) *goerrors.Error {
	err := kind.Clone()
	if detail != "" {
		err.Message = detail
	}
	err.Source = kind
	if len(meta) > 0 {
		err.WithMetadata(meta...)
	}
	return err
}

func alreadyRegistered(method ProvisioningMethod, detail string) *goerrors.Error {
	return flowError(ErrAlreadyRegistered, detail, map[string]any{
		"provider": method.Provider(),
	})
}

func internalError(err error, msg string) *goerrors.Error {
	richErr := goerrors.Wrap(err, goerrors.CategoryInternal, msg)
	if richErr == nil {
		richErr = goerrors.New(msg, goerrors.CategoryInternal)
	}
	return richErr.
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}
