package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var subjectCtxKey = &contextKey{"subject"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithSubject stores the authenticated token subject (the account email).
// It matches the jwtware ContextEnricher signature.
func WithSubject(r context.Context, subject string) context.Context {
	return context.WithValue(r, subjectCtxKey, subject)
}

// SubjectFromContext returns the subject stored by WithSubject
func SubjectFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(subjectCtxKey).(string)
	return raw, ok && raw != ""
}

// SubjectFromRouter reads the subject the JWT middleware stored under key,
// falling back to the request context.
func SubjectFromRouter(ctx router.Context, key string) (string, bool) {
	if key == "" {
		key = "user"
	}

	if subject, ok := ctx.Locals(key).(string); ok && subject != "" {
		return subject, true
	}

	return SubjectFromContext(ctx.Context())
}
