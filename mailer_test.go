package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	auth "github.com/goliatone/go-auth-routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu     sync.Mutex
	emails []auth.LinkEmail
	err    error
}

func (o *outbox) send(recipient, link, body, subject string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, auth.LinkEmail{Recipient: recipient, Link: link, Body: body, Subject: subject})
	return o.err
}

func (o *outbox) sent() []auth.LinkEmail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]auth.LinkEmail(nil), o.emails...)
}

func TestDetachedDispatcherDelivers(t *testing.T) {
	box := &outbox{}
	logger := &captureLogger{}
	d := auth.NewDetachedDispatcher(box.send, logger)

	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		d.Dispatch(auth.LinkEmail{Recipient: to, Link: "https://app.example.com/x", Subject: "Activate"})
	}
	d.Wait()

	assert.Len(t, box.sent(), 3)
	assert.Len(t, logger.messages("debug"), 3)
	assert.Empty(t, logger.messages("error"))
}

func TestDispatcherLogsSenderFailures(t *testing.T) {
	box := &outbox{err: errors.New("smtp down")}
	logger := &captureLogger{}

	auth.NewSyncDispatcher(box.send, logger).Dispatch(auth.LinkEmail{Recipient: "a@example.com"})

	assert.Len(t, box.sent(), 1)
	assert.Equal(t, []string{"failed to send email"}, logger.messages("error"))
}

func TestDispatcherRecoversFromPanics(t *testing.T) {
	logger := &captureLogger{}
	d := auth.NewDetachedDispatcher(func(string, string, string, string) error {
		panic("template missing")
	}, logger)

	require.NotPanics(t, func() {
		d.Dispatch(auth.LinkEmail{Recipient: "a@example.com"})
		d.Wait()
	})
	assert.Equal(t, []string{"email sender panicked"}, logger.messages("error"))
}

func TestDispatcherWithoutSender(t *testing.T) {
	logger := &captureLogger{}
	auth.NewSyncDispatcher(nil, logger).Dispatch(auth.LinkEmail{Recipient: "a@example.com"})
	assert.Equal(t, []string{"no email sender configured"}, logger.messages("warn"))
}

func TestFlowsEmailContents(t *testing.T) {
	box := &outbox{}
	dispatcher := auth.NewDetachedDispatcher(box.send, &captureLogger{})

	private, public := rsaTestKeys(t)
	cfg := auth.NewConfig(
		auth.WithKeys(private, public),
		auth.WithBaseURL("https://app.example.com/"),
		auth.WithEmailSender(box.send),
	)
	require.NoError(t, cfg.Validate())

	store := newMemoryStore()
	flows, err := auth.NewFlows(cfg, store, newTestCodec(t, nil),
		auth.WithEmailDispatcher(dispatcher),
		auth.WithFlowLogger(&captureLogger{}),
	)
	require.NoError(t, err)

	_, err = flows.SignUp(context.Background(), auth.SignUpRequest{Email: "ana@example.com", Password: "s3cret"})
	require.NoError(t, err)

	store.seedLocal(t, "bo@example.com", "s3cret", true)
	_, err = flows.RequestPasswordReset(context.Background(), "bo@example.com")
	require.NoError(t, err)

	dispatcher.Wait()

	emails := map[string]auth.LinkEmail{}
	for _, e := range box.sent() {
		emails[e.Recipient] = e
	}
	require.Len(t, emails, 2)

	activation := emails["ana@example.com"]
	assert.Equal(t, "Activate", activation.Subject)
	assert.Equal(t, "Click the link to activate your account", activation.Body)
	assert.Contains(t, activation.Link, "https://app.example.com/activate/")

	reset := emails["bo@example.com"]
	assert.Equal(t, "Reset password", reset.Subject)
	assert.Equal(t, "Click the link to reset your password", reset.Body)
	assert.Contains(t, reset.Link, "https://app.example.com/reset-password?t=")
}
