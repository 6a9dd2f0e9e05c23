package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-routes"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := auth.NewConfig()

	assert.Equal(t, "RS256", cfg.Algorithm)
	assert.Equal(t, "/internal", cfg.Prefix)
	assert.Equal(t, "/reset-password", cfg.ResetPath)
	assert.Equal(t, 180*time.Minute, cfg.TokenTTL())
	assert.Equal(t, 30*time.Minute, cfg.ResetTokenTTL())
	assert.Equal(t, "/internal/sign_in", cfg.Route("/sign_in"))
	assert.Equal(t, "/internal/activate/:token", cfg.Route("activate/:token"))
}

func TestConfigOptions(t *testing.T) {
	cfg := auth.NewConfig(
		auth.WithAlgorithm("ES256"),
		auth.WithBaseURL("https://app.example.com/"),
		auth.WithPrefix("/"),
		auth.WithTokenTTLMinutes(5),
		auth.WithResetTokenTTLMinutes(0),
		auth.WithGoogleClientID(" client-id "),
	)

	assert.Equal(t, "ES256", cfg.Algorithm)
	assert.Equal(t, "https://app.example.com", cfg.BaseURL)
	assert.Equal(t, "/sign_up", cfg.Route("/sign_up"))
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL())
	assert.Equal(t, 30*time.Minute, cfg.ResetTokenTTL())
	assert.Equal(t, "client-id", cfg.GoogleClientID)
}

func TestConfigValidate(t *testing.T) {
	private, public := rsaTestKeys(t)

	valid := auth.NewConfig(
		auth.WithKeys(private, public),
		auth.WithBaseURL("http://localhost:3000"),
		auth.WithEmailSender(func(recipient, link, body, subject string) error { return nil }),
	)
	require.NoError(t, valid.Validate())

	invalid := auth.NewConfig(auth.WithBaseURL("not a url"))
	err := invalid.Validate()
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, auth.TextCodeValidation, richErr.TextCode)

	fields := map[string]bool{}
	for _, fe := range richErr.ValidationErrors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["PrivateKey"])
	assert.True(t, fields["PublicKey"])
	assert.True(t, fields["BaseURL"])
	assert.True(t, fields["SendLinkEmail"])
}
