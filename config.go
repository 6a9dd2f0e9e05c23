package auth

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultPrefix               = "/internal"
	DefaultResetPath            = "/reset-password"
	DefaultTokenTTLMinutes      = 180
	DefaultResetTokenTTLMinutes = 30
)

// Config holds everything the flows and the HTTP surface need.
type Config struct {
	// PrivateKey is the PEM encoded signing key.
	PrivateKey string
	// PublicKey is the PEM encoded verification key.
	PublicKey string
	// Algorithm names the asymmetric signing algorithm.
	// Default: RS256.
	Algorithm string

	// GoogleClientID is the expected audience of Google ID tokens. Only
	// needed when Google sign in is mounted.
	GoogleClientID string

	// BaseURL is prepended to activation and reset links.
	BaseURL string
	// LoginRedirect is where a fresh activation redirects to (optional).
	LoginRedirect string
	// ResetPath is the frontend path that receives reset tokens.
	// Default: "/reset-password".
	ResetPath string

	// TokenTTLMinutes applies to auth and activation tokens.
	// Default: 180.
	TokenTTLMinutes int
	// ResetTokenTTLMinutes applies to reset tokens.
	// Default: 30.
	ResetTokenTTLMinutes int

	// Prefix is prepended to every route.
	// Default: "/internal".
	Prefix string

	// SendLinkEmail delivers activation and reset links.
	SendLinkEmail EmailSender

	// SessionProvider hands the credential store a database handle (optional).
	SessionProvider SessionProvider
}

// ConfigOption mutates a Config
type ConfigOption func(*Config)

// NewConfig returns a Config with defaults applied and opts on top.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Algorithm:            DefaultAlgorithm,
		ResetPath:            DefaultResetPath,
		TokenTTLMinutes:      DefaultTokenTTLMinutes,
		ResetTokenTTLMinutes: DefaultResetTokenTTLMinutes,
		Prefix:               DefaultPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

func WithKeys(privatePEM, publicPEM string) ConfigOption {
	return func(c *Config) {
		c.PrivateKey = privatePEM
		c.PublicKey = publicPEM
	}
}

func WithAlgorithm(alg string) ConfigOption {
	return func(c *Config) {
		if alg = strings.TrimSpace(alg); alg != "" {
			c.Algorithm = alg
		}
	}
}

func WithGoogleClientID(id string) ConfigOption {
	return func(c *Config) {
		c.GoogleClientID = strings.TrimSpace(id)
	}
}

func WithBaseURL(u string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = strings.TrimRight(strings.TrimSpace(u), "/")
	}
}

func WithLoginRedirect(u string) ConfigOption {
	return func(c *Config) {
		c.LoginRedirect = strings.TrimSpace(u)
	}
}

func WithResetPath(p string) ConfigOption {
	return func(c *Config) {
		if p = strings.TrimSpace(p); p != "" {
			c.ResetPath = p
		}
	}
}

func WithTokenTTLMinutes(m int) ConfigOption {
	return func(c *Config) {
		c.TokenTTLMinutes = m
	}
}

func WithResetTokenTTLMinutes(m int) ConfigOption {
	return func(c *Config) {
		c.ResetTokenTTLMinutes = m
	}
}

func WithPrefix(p string) ConfigOption {
	return func(c *Config) {
		c.Prefix = p
	}
}

func WithEmailSender(s EmailSender) ConfigOption {
	return func(c *Config) {
		c.SendLinkEmail = s
	}
}

func WithSessionProvider(p SessionProvider) ConfigOption {
	return func(c *Config) {
		c.SessionProvider = p
	}
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PrivateKey, validation.Required),
		validation.Field(&c.PublicKey, validation.Required),
		validation.Field(&c.Algorithm, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.LoginRedirect, is.URL),
		validation.Field(&c.TokenTTLMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.ResetTokenTTLMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.ResetPath, validation.Required),
		validation.Field(&c.SendLinkEmail, validation.By(func(value any) error {
			if s, _ := value.(EmailSender); s == nil {
				return validation.NewError("validation_required", "cannot be blank")
			}
			return nil
		})),
	)

	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid auth configuration").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return nil
}

// TokenTTL is the lifetime of auth and activation tokens
func (c Config) TokenTTL() time.Duration {
	return minutesOr(c.TokenTTLMinutes, DefaultTokenTTLMinutes)
}

// ResetTokenTTL is the lifetime of reset tokens
func (c Config) ResetTokenTTL() time.Duration {
	return minutesOr(c.ResetTokenTTLMinutes, DefaultResetTokenTTLMinutes)
}

// Route joins path onto the configured prefix.
func (c Config) Route(path string) string {
	prefix := strings.TrimRight(c.Prefix, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

func (c Config) activationLink(token string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/activate/" + token
}

func (c Config) resetLink(token string) string {
	path := c.ResetPath
	if path == "" {
		path = DefaultResetPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(c.BaseURL, "/") + path + "?t=" + token
}

func minutesOr(m, def int) time.Duration {
	if m <= 0 {
		m = def
	}
	return time.Duration(m) * time.Minute
}
