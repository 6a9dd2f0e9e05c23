package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-routes"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// ProviderName is the provisioning method recorded for Google accounts
	ProviderName = "google"
	// DefaultJWKSURL publishes the keys Google signs ID tokens with
	DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// Issuers lists the iss values Google uses for ID tokens.
var Issuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Config for the ID token verifier.
type Config struct {
	// ClientID is the OAuth client the token must be issued for (aud)
	ClientID string
	JWKSURL  string

	HTTPClient      *http.Client
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	Leeway          time.Duration

	Now            func() time.Time
	Logger         auth.Logger
	LoggerProvider auth.LoggerProvider
}

// Claims carried by a Google ID token. EmailVerified is decoded loosely
// since it has been published both as a boolean and as a string.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Verified reports the email_verified claim
func (c *Claims) Verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		ok, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && ok
	default:
		return false
	}
}

// Verifier checks Google Identity Services credentials against the
// published key set. It implements auth.IdentityVerifier.
type Verifier struct {
	cfg     Config
	jwks    *keyfunc.JWKS
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
	logger  auth.Logger
}

// NewVerifier fetches the key set once and keeps it refreshed in the
// background until Close is called.
func NewVerifier(cfg Config) (*Verifier, error) {
	cfg = configDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	_, logger := auth.ResolveLogger("auth.google", cfg.LoggerProvider, cfg.Logger)

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfuncOptions(cfg, logger))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "google: failed to load key set").
			WithMetadata(map[string]any{"jwks_url": cfg.JWKSURL})
	}

	v := newVerifier(cfg, jwks.Keyfunc, logger)
	v.jwks = jwks
	return v, nil
}

// NewVerifierWithKeyfunc builds a verifier over a caller supplied key
// lookup, for example keyfunc.NewGiven with pinned keys.
func NewVerifierWithKeyfunc(cfg Config, kf jwt.Keyfunc) (*Verifier, error) {
	cfg = configDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if kf == nil {
		return nil, goerrors.New("google: key function is required", goerrors.CategoryBadInput)
	}

	_, logger := auth.ResolveLogger("auth.google", cfg.LoggerProvider, cfg.Logger)
	return newVerifier(cfg, kf, logger), nil
}

func newVerifier(cfg Config, kf jwt.Keyfunc, logger auth.Logger) *Verifier {
	return &Verifier{
		cfg:     cfg,
		keyFunc: kf,
		logger:  logger,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(cfg.ClientID),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

// VerifyCredential validates the signature, audience, issuer and expiry of
// an ID token and returns the identity it asserts.
func (v *Verifier) VerifyCredential(ctx context.Context, credential string) (*auth.ExternalIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, rejection(auth.ErrTokenInvalid, errors.New("empty credential"))
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(credential, claims, v.keyFunc); err != nil {
		v.logger.Debug("google credential rejected", "error", err)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, rejection(auth.ErrTokenExpired, err)
		}
		return nil, rejection(auth.ErrTokenInvalid, err)
	}

	if !slices.Contains(Issuers, claims.Issuer) {
		return nil, rejection(auth.ErrTokenInvalid, fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}

	if claims.Subject == "" {
		return nil, rejection(auth.ErrTokenInvalid, errors.New("missing subject"))
	}

	return &auth.ExternalIdentity{
		Provider:      ProviderName,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.Verified(),
		Name:          claims.Name,
	}, nil
}

// Close stops the background key refresh
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func rejection(kind *goerrors.Error, cause error) error {
	err := kind.Clone()
	err.Source = kind
	return err.WithMetadata(map[string]any{
		"provider": ProviderName,
		"cause":    cause.Error(),
	})
}

func configDefaults(cfg Config) Config {
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}

	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return goerrors.New("google: client id is required", goerrors.CategoryBadInput)
	}
	return nil
}

func keyfuncOptions(cfg Config, logger auth.Logger) keyfunc.Options {
	return keyfunc.Options{
		Client: cfg.HTTPClient,
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to refresh google key set", "error", err)
		},
		RefreshInterval:   cfg.RefreshInterval,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    cfg.RefreshTimeout,
		RefreshUnknownKID: true,
	}
}
