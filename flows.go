package auth

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TokenTypeBearer is the token_type of every AccessToken
	TokenTypeBearer = "bearer"

	ackStatusOK = "ok"
)

// AccessToken is the session credential returned by sign in.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Ack is the generic success payload.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ActivationOutcome is the result of Activate. Redirect is set when the caller
// should be sent to the login page instead of receiving the ack.
type ActivationOutcome struct {
	Ack
	Redirect string `json:"-"`
}

// ExternalIdentity is a verified identity provider assertion.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityVerifier checks an identity provider credential.
type IdentityVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (*ExternalIdentity, error)
}

// passwordLength counts bytes, which is what bcrypt limits.
var passwordLength = validation.By(func(value any) error {
	if s, _ := value.(string); len(s) > MaxPasswordBytes {
		return validation.NewError("validation_length_too_long", "the length must be no more than 72 bytes")
	}
	return nil
})

// SignInRequest payload
type SignInRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignUpRequest payload
type SignUpRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, passwordLength),
	)
}

// GoogleSignInRequest payload. ClientID and SelectBy are accepted for
// compatibility with the Google button callback and ignored.
type GoogleSignInRequest struct {
	Credential string `form:"credential" json:"credential"`
	ClientID   string `form:"clientId" json:"clientId,omitempty"`
	SelectBy   string `form:"select_by" json:"select_by,omitempty"`
}

// Validate will run validation rules
func (r GoogleSignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Credential, validation.Required),
	)
}

// EmailRequest carries a single address
type EmailRequest struct {
	Email string `form:"email" json:"email" query:"email"`
}

// Validate will run validation rules
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Password      string `form:"password" json:"password"`
	PasswordCheck string `form:"passwordcheck" json:"passwordcheck"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, passwordLength),
		validation.Field(&r.PasswordCheck, validation.Required),
	)
}

// Flows composes the token codec, the credential store and the account state
// machine into the sign up, sign in, activation and reset operations. Every
// error returned by a flow carries one of the package text codes.
type Flows struct {
	cfg          Config
	store        CredentialStore
	codec        *TokenCodec
	machine      AccountStateMachine
	dispatcher   EmailDispatcher
	verifier     IdentityVerifier
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// FlowOption configures Flows
type FlowOption func(*Flows)

func WithFlowLogger(logger Logger) FlowOption {
	return func(f *Flows) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithFlowLoggerProvider(provider LoggerProvider) FlowOption {
	return func(f *Flows) {
		_, f.logger = ResolveLogger("auth.flows", provider, f.logger)
	}
}

// WithEmailDispatcher replaces the detached dispatcher built from
// Config.SendLinkEmail.
func WithEmailDispatcher(d EmailDispatcher) FlowOption {
	return func(f *Flows) {
		f.dispatcher = d
	}
}

// WithIdentityVerifier enables SignInGoogle.
func WithIdentityVerifier(v IdentityVerifier) FlowOption {
	return func(f *Flows) {
		f.verifier = v
	}
}

func WithActivitySink(sink ActivitySink) FlowOption {
	return func(f *Flows) {
		f.activitySink = normalizeActivitySink(sink)
	}
}

// WithAccountStateMachine replaces the default state machine built over the
// credential store.
func WithAccountStateMachine(sm AccountStateMachine) FlowOption {
	return func(f *Flows) {
		f.machine = sm
	}
}

func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flows) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlows wires the flows. The configuration is not validated here; call
// Config.Validate at startup.
func NewFlows(cfg Config, store CredentialStore, codec *TokenCodec, opts ...FlowOption) (*Flows, error) {
	if store == nil {
		return nil, goerrors.New("flows require a credential store", goerrors.CategoryInternal)
	}

	if codec == nil {
		return nil, goerrors.New("flows require a token codec", goerrors.CategoryInternal)
	}

	if cfg.SessionProvider != nil {
		if aware, ok := store.(SessionAware); ok {
			aware.UseSessionProvider(cfg.SessionProvider)
		}
	}

	_, logger := ResolveLogger("auth.flows", nil, nil)

	f := &Flows{
		cfg:          cfg,
		store:        store,
		codec:        codec,
		activitySink: noopActivitySink{},
		logger:       logger,
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.dispatcher == nil {
		f.dispatcher = NewDetachedDispatcher(cfg.SendLinkEmail, f.logger)
	}

	if f.machine == nil {
		f.machine = NewAccountStateMachine(store,
			WithStateMachineActivitySink(f.activitySink),
			WithStateMachineLogger(f.logger),
			WithStateMachineClock(f.now),
		)
	}

	return f, nil
}

// Config returns the configuration the flows were built with
func (f *Flows) Config() Config {
	return f.cfg
}

func (f *Flows) accessToken(subject string) (*AccessToken, error) {
	token, err := f.codec.Issue(subject, PurposeAuth, f.cfg.TokenTTL())
	if err != nil {
		return nil, f.internal(err, "failed to issue access token")
	}

	return &AccessToken{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
	}, nil
}

func (f *Flows) decode(token string, purpose TokenPurpose) (*TokenClaims, error) {
	claims, err := f.codec.Decode(token, purpose)
	if err == nil {
		return claims, nil
	}

	switch {
	case goerrors.Is(err, ErrTokenExpired):
		return nil, flowError(ErrTokenExpired, "Token has expired")
	case goerrors.Is(err, ErrTokenInvalid):
		f.logger.Debug("token rejected", "purpose", purpose, "error", err)
		return nil, flowError(ErrTokenInvalid, "Token validation error")
	default:
		return nil, f.internal(err, "failed to decode token")
	}
}

// userForToken loads the subject of a redeemed token.
func (f *Flows) userForToken(ctx context.Context, claims *TokenClaims) (*User, error) {
	user, err := f.store.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if goerrors.Is(err, ErrStoreUserNotFound) {
			return nil, flowError(ErrUserNotFound, "No user for the token")
		}
		return nil, f.internal(err, "failed to load user for token")
	}
	return user, nil
}

// provisioningOf resolves the provisioning method of an account the store
// reported as externally provisioned.
func (f *Flows) provisioningOf(ctx context.Context, email string, err error) ProvisioningMethod {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Metadata != nil {
		if p, ok := richErr.Metadata["provider"].(string); ok && p != "" && p != string(ProvisioningLocal) {
			return External(p)
		}
	}

	if user, findErr := f.store.FindByEmail(ctx, email); findErr == nil && user.IsExternal() {
		return user.Provisioning
	}

	return ProvisioningGoogle
}

func (f *Flows) sendEmail(email LinkEmail) {
	f.dispatcher.Dispatch(email)
}

func (f *Flows) record(ctx context.Context, eventType ActivityEventType, user *User, meta map[string]any) {
	event := userActivity(eventType, user)
	if user != nil {
		event.Actor = actorFor(user)
	}
	event.Metadata = meta
	recordActivity(ctx, f.activitySink, f.logger, f.now, event)
}

func (f *Flows) internal(err error, msg string) error {
	f.logger.Error(msg, "error", err)
	return internalError(err, msg)
}

func actorFor(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: user.ID.String(), Type: "user"}
}

func ack(msg string) *Ack {
	return &Ack{Status: ackStatusOK, Message: msg}
}

// providerTitle renders a provider name for user facing messages.
func providerTitle(p ProvisioningMethod) string {
	name := p.Provider()
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
