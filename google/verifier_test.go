package google_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-routes"
	"github.com/goliatone/go-auth-routes/google"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

func newTestJWKS(t *testing.T) (*rsa.PrivateKey, []byte, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kid := "google-test-key"
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
	}

	data, err := json.Marshal(map[string]any{"keys": []map[string]any{jwk}})
	require.NoError(t, err)

	return privateKey, data, kid
}

func newJWKSServer(jwks []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(jwks)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func googleClaims(overrides jwt.MapClaims) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1122334455",
		"email":          "ana@example.com",
		"email_verified": true,
		"name":           "Ana",
		"iat":            now.Add(-time.Minute).Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func setupVerifier(t *testing.T) (*google.Verifier, *rsa.PrivateKey, string) {
	t.Helper()

	key, jwks, kid := newTestJWKS(t)
	server := newJWKSServer(jwks)
	t.Cleanup(server.Close)

	verifier, err := google.NewVerifier(google.Config{
		ClientID: testClientID,
		JWKSURL:  server.URL,
	})
	require.NoError(t, err)
	t.Cleanup(verifier.Close)

	return verifier, key, kid
}

func TestVerifierAcceptsValidCredential(t *testing.T) {
	verifier, key, kid := setupVerifier(t)

	identity, err := verifier.VerifyCredential(context.Background(), signToken(t, key, kid, googleClaims(nil)))
	require.NoError(t, err)
	assert.Equal(t, google.ProviderName, identity.Provider)
	assert.Equal(t, "1122334455", identity.Subject)
	assert.Equal(t, "ana@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "Ana", identity.Name)
}

func TestVerifierAcceptsBothIssuers(t *testing.T) {
	verifier, key, kid := setupVerifier(t)

	for _, iss := range google.Issuers {
		token := signToken(t, key, kid, googleClaims(jwt.MapClaims{"iss": iss}))
		_, err := verifier.VerifyCredential(context.Background(), token)
		assert.NoError(t, err, iss)
	}
}

func TestVerifierEmailVerifiedClaimForms(t *testing.T) {
	verifier, key, kid := setupVerifier(t)

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "bool true", value: true, want: true},
		{name: "bool false", value: false, want: false},
		{name: "string true", value: "true", want: true},
		{name: "string false", value: "false", want: false},
		{name: "garbage", value: "yes please", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, key, kid, googleClaims(jwt.MapClaims{"email_verified": tt.value}))
			identity, err := verifier.VerifyCredential(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, identity.EmailVerified)
		})
	}
}

func TestVerifierRejections(t *testing.T) {
	verifier, key, kid := setupVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		kind  error
	}{
		{
			name:  "wrong audience",
			token: signToken(t, key, kid, googleClaims(jwt.MapClaims{"aud": "someone-else"})),
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "wrong issuer",
			token: signToken(t, key, kid, googleClaims(jwt.MapClaims{"iss": "https://evil.example.com"})),
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "missing expiry",
			token: signToken(t, key, kid, googleClaims(jwt.MapClaims{"exp": nil})),
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "missing subject",
			token: signToken(t, key, kid, googleClaims(jwt.MapClaims{"sub": nil})),
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "expired",
			token: signToken(t, key, kid, googleClaims(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})),
			kind:  auth.ErrTokenExpired,
		},
		{
			name:  "foreign signature",
			token: signToken(t, otherKey, kid, googleClaims(nil)),
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "garbage",
			token: "not.a.jwt",
			kind:  auth.ErrTokenInvalid,
		},
		{
			name:  "empty",
			token: "  ",
			kind:  auth.ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.VerifyCredential(context.Background(), tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestVerifierRejectsSymmetricTokens(t *testing.T) {
	secret := []byte("shared-secret")
	verifier, err := google.NewVerifierWithKeyfunc(google.Config{ClientID: testClientID}, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, googleClaims(nil))
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = verifier.VerifyCredential(context.Background(), signed)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestVerifierHonoursClock(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issued := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := issued.Add(30 * time.Minute)

	verifier, err := google.NewVerifierWithKeyfunc(google.Config{
		ClientID: testClientID,
		Now:      func() time.Time { return clock },
	}, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)

	token := signToken(t, key, "", googleClaims(jwt.MapClaims{
		"iat": issued.Unix(),
		"exp": issued.Add(time.Hour).Unix(),
	}))

	_, err = verifier.VerifyCredential(context.Background(), token)
	require.NoError(t, err)

	clock = issued.Add(2 * time.Hour)
	_, err = verifier.VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestNewVerifierRequiresClientID(t *testing.T) {
	_, err := google.NewVerifier(google.Config{JWKSURL: "http://127.0.0.1:0"})
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))

	_, err = google.NewVerifierWithKeyfunc(google.Config{ClientID: testClientID}, nil)
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))
}

func TestNewVerifierKeySetUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := google.NewVerifier(google.Config{ClientID: testClientID, JWKSURL: srv.URL})
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryExternal))
}

func TestVerifierHonoursCancelledContext(t *testing.T) {
	verifier, key, kid := setupVerifier(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := verifier.VerifyCredential(ctx, signToken(t, key, kid, googleClaims(nil)))
	assert.ErrorIs(t, err, context.Canceled)
}
