package auth

import (
	"crypto"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPurpose scopes a token to a single flow.
type TokenPurpose string

const (
	// PurposeAuth is a session credential. It is the default and is not
	// written to the token payload.
	PurposeAuth TokenPurpose = "auth"
	// PurposeActivation confirms an email address
	PurposeActivation TokenPurpose = "activation"
	// PurposeReset authorizes a password change
	PurposeReset TokenPurpose = "reset"
)

// DefaultAlgorithm is used when no algorithm is configured
const DefaultAlgorithm = "RS256"

// TokenClaims is the payload of every token issued by TokenCodec.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type TokenPurpose `json:"type,omitempty"`
}

// Purpose returns the purpose tag, defaulting to PurposeAuth when absent.
func (c *TokenClaims) Purpose() TokenPurpose {
	if c == nil || c.Type == "" {
		return PurposeAuth
	}
	return c.Type
}

// TokenCodec issues and decodes asymmetric signed tokens.
type TokenCodec struct {
	method     jwt.SigningMethod
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	issuer     string
	leeway     time.Duration
	now        func() time.Time
}

// TokenCodecOption configures a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithTokenClock overrides the clock used for issue and expiry checks.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// WithTokenIssuer stamps iss on issued tokens and requires it on decode.
func WithTokenIssuer(issuer string) TokenCodecOption {
	return func(tc *TokenCodec) {
		tc.issuer = strings.TrimSpace(issuer)
	}
}

// WithTokenLeeway tolerates clock skew when checking expiry.
func WithTokenLeeway(leeway time.Duration) TokenCodecOption {
	return func(tc *TokenCodec) {
		if leeway > 0 {
			tc.leeway = leeway
		}
	}
}

// NewTokenCodec builds a codec from PEM encoded keys. Either key may be empty,
// producing a codec that can only decode or only issue.
func NewTokenCodec(privatePEM, publicPEM, algorithm string, opts ...TokenCodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(algorithm) == "" {
		algorithm = DefaultAlgorithm
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, goerrors.New(fmt.Sprintf("unsupported signing algorithm %q", algorithm), goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	privateKey, publicKey, err := parseSigningKeys(method, privatePEM, publicPEM)
	if err != nil {
		return nil, err
	}

	tc := &TokenCodec{
		method:     method,
		privateKey: privateKey,
		publicKey:  publicKey,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}

	return tc, nil
}

// Algorithm returns the configured signing algorithm
func (tc *TokenCodec) Algorithm() string {
	return tc.method.Alg()
}

// Issue signs a token for subject that expires ttl from now.
func (tc *TokenCodec) Issue(subject string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	if tc.privateKey == nil {
		return "", goerrors.New("token codec has no private key", goerrors.CategoryInternal)
	}

	if strings.TrimSpace(subject) == "" {
		return "", goerrors.New("token subject must not be empty", goerrors.CategoryBadInput)
	}

	if ttl <= 0 {
		return "", goerrors.New("token ttl must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"ttl": ttl.String()})
	}

	now := tc.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tc.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if purpose != "" && purpose != PurposeAuth {
		claims.Type = purpose
	}

	signed, err := jwt.NewWithClaims(tc.method, claims).SignedString(tc.privateKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Decode verifies token and returns its claims. When expected is given the
// purpose must match it exactly. Every failure other than expiry is reported
// as ErrTokenInvalid.
func (tc *TokenCodec) Decode(token string, expected ...TokenPurpose) (*TokenClaims, error) {
	if tc.publicKey == nil {
		return nil, goerrors.New("token codec has no public key", goerrors.CategoryInternal)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{tc.method.Alg()}),
		jwt.WithTimeFunc(tc.now),
		jwt.WithExpirationRequired(),
	}
	if tc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tc.issuer))
	}
	if tc.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(tc.leeway))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tc.publicKey, nil
	}, opts...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, tokenError(ErrTokenExpired, err)
		}
		return nil, tokenError(ErrTokenInvalid, err)
	}

	if !parsed.Valid || claims.Subject == "" {
		return nil, tokenError(ErrTokenInvalid, nil)
	}

	if len(expected) > 0 && claims.Purpose() != expected[0] {
		return nil, tokenError(ErrTokenInvalid, nil)
	}

	return claims, nil
}

// ValidateAccessToken decodes an auth token and returns its subject.
func (tc *TokenCodec) ValidateAccessToken(token string) (string, error) {
	claims, err := tc.Decode(token, PurposeAuth)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func tokenError(kind *goerrors.Error, cause error) *goerrors.Error {
	err := kind.Clone()
	err.Source = kind
	if cause != nil {
		err.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return err
}

func parseSigningKeys(method jwt.SigningMethod, privatePEM, publicPEM string) (crypto.PrivateKey, crypto.PublicKey, error) {
	var (
		privateKey crypto.PrivateKey
		publicKey  crypto.PublicKey
		err        error
	)

	privateBytes := []byte(strings.TrimSpace(privatePEM))
	publicBytes := []byte(strings.TrimSpace(publicPEM))

	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		if len(privateBytes) > 0 {
			if privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(privateBytes); err != nil {
				return nil, nil, keyError(err, "private", method)
			}
		}
		if len(publicBytes) > 0 {
			if publicKey, err = jwt.ParseRSAPublicKeyFromPEM(publicBytes); err != nil {
				return nil, nil, keyError(err, "public", method)
			}
		}
	case *jwt.SigningMethodECDSA:
		if len(privateBytes) > 0 {
			if privateKey, err = jwt.ParseECPrivateKeyFromPEM(privateBytes); err != nil {
				return nil, nil, keyError(err, "private", method)
			}
		}
		if len(publicBytes) > 0 {
			if publicKey, err = jwt.ParseECPublicKeyFromPEM(publicBytes); err != nil {
				return nil, nil, keyError(err, "public", method)
			}
		}
	case *jwt.SigningMethodEd25519:
		if len(privateBytes) > 0 {
			if privateKey, err = jwt.ParseEdPrivateKeyFromPEM(privateBytes); err != nil {
				return nil, nil, keyError(err, "private", method)
			}
		}
		if len(publicBytes) > 0 {
			if publicKey, err = jwt.ParseEdPublicKeyFromPEM(publicBytes); err != nil {
				return nil, nil, keyError(err, "public", method)
			}
		}
	default:
		return nil, nil, goerrors.New(fmt.Sprintf("signing algorithm %q is not asymmetric", method.Alg()), goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if privateKey == nil && publicKey == nil {
		return nil, nil, goerrors.New("token codec requires at least one key", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	return privateKey, publicKey, nil
}

func keyError(err error, which string, method jwt.SigningMethod) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("unable to parse %s key", which)).
		WithMetadata(map[string]any{"alg": method.Alg()})
}
