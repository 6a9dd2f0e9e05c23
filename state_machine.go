package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AccountState is the lifecycle state of an account.
type AccountState string

const (
	AccountPendingActivation AccountState = "pending_activation"
	AccountActive            AccountState = "active"
)

// AccountEvent is an input to the state machine.
type AccountEvent string

const (
	EventSignIn           AccountEvent = "sign_in"
	EventActivate         AccountEvent = "activate"
	EventResendActivation AccountEvent = "resend_activation"
	EventRequestReset     AccountEvent = "request_reset"
	EventChangePassword   AccountEvent = "change_password"
)

// ActivationResult tells apart a fresh activation from a repeated one.
type ActivationResult string

const (
	ActivationConfirmed        ActivationResult = "confirmed"
	ActivationAlreadyConfirmed ActivationResult = "already_confirmed"
)

// AccountStore persists the effects of state transitions.
type AccountStore interface {
	Activate(ctx context.Context, user *User) (*User, error)
	UpdatePassword(ctx context.Context, user *User, passwordHash string) (*User, error)
}

// TransitionContext is passed to transition hooks.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	Event AccountEvent
	From  AccountState
	To    AccountState
}

// TransitionHook runs after a transition was persisted. A hook error is
// returned to the caller; the persisted change is not rolled back.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// AccountStateMachine decides which account operations are legal and applies
// the ones that change state.
type AccountStateMachine interface {
	InitialState(method ProvisioningMethod) AccountState
	Can(user *User, event AccountEvent) error
	CanSignIn(user *User) error
	CanRequestReset(user *User) error
	CanResendActivation(user *User) error
	Activate(ctx context.Context, actor ActorRef, user *User) (ActivationResult, *User, error)
	ChangePassword(ctx context.Context, actor ActorRef, user *User, passwordHash string) (*User, error)
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineLoggerProvider resolves the logger from provider.
func WithStateMachineLoggerProvider(provider LoggerProvider) StateMachineOption {
	return func(sm *accountStateMachine) {
		_, sm.logger = ResolveLogger("auth.state_machine", provider, sm.logger)
	}
}

// WithTransitionHook adds a hook executed after every persisted transition.
func WithTransitionHook(h TransitionHook) StateMachineOption {
	return func(sm *accountStateMachine) {
		if h != nil {
			sm.hooks = append(sm.hooks, h)
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by store.
func NewAccountStateMachine(store AccountStore, opts ...StateMachineOption) AccountStateMachine {
	_, logger := ResolveLogger("auth.state_machine", nil, nil)

	sm := &accountStateMachine{
		store: store,
		transitions: map[AccountState]map[AccountEvent]AccountState{
			AccountPendingActivation: {
				EventActivate:         AccountActive,
				EventResendActivation: AccountPendingActivation,
			},
			AccountActive: {
				EventSignIn:         AccountActive,
				EventRequestReset:   AccountActive,
				EventChangePassword: AccountActive,
			},
		},
		localOnly: map[AccountEvent]struct{}{
			EventRequestReset:   {},
			EventChangePassword: {},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       logger,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	store        AccountStore
	transitions  map[AccountState]map[AccountEvent]AccountState
	localOnly    map[AccountEvent]struct{}
	hooks        []TransitionHook
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *accountStateMachine) InitialState(method ProvisioningMethod) AccountState {
	if method.IsExternal() {
		return AccountActive
	}
	return AccountPendingActivation
}

// Can returns nil when event is legal for user. Refusals are
// ErrInvalidTransition, or ErrProvisionedExternally for password events on
// externally provisioned users.
func (sm *accountStateMachine) Can(user *User, event AccountEvent) error {
	if user == nil {
		return flowError(ErrInvalidTransition, "", map[string]any{
			"event":  event,
			"reason": "user is nil",
		})
	}

	if _, ok := sm.localOnly[event]; ok && user.IsExternal() {
		return flowError(ErrProvisionedExternally, "", map[string]any{
			"event":    event,
			"provider": user.Provisioning.Provider(),
		})
	}

	from := user.State()
	if _, ok := sm.target(from, event); !ok {
		return flowError(ErrInvalidTransition, "", map[string]any{
			"event": event,
			"state": from,
		})
	}

	return nil
}

func (sm *accountStateMachine) CanSignIn(user *User) error {
	return sm.Can(user, EventSignIn)
}

func (sm *accountStateMachine) CanRequestReset(user *User) error {
	return sm.Can(user, EventRequestReset)
}

func (sm *accountStateMachine) CanResendActivation(user *User) error {
	return sm.Can(user, EventResendActivation)
}

func (sm *accountStateMachine) Activate(ctx context.Context, actor ActorRef, user *User) (ActivationResult, *User, error) {
	if user != nil && user.State() == AccountActive {
		return ActivationAlreadyConfirmed, user, nil
	}

	if err := sm.Can(user, EventActivate); err != nil {
		return "", nil, err
	}

	updated, err := sm.store.Activate(ctx, user)
	if err != nil {
		return "", nil, err
	}

	now := sm.now()
	sm.apply(user, updated)
	user.IsActive = true
	if user.ActivatedAt == nil {
		user.ActivatedAt = &now
	}

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		Event: EventActivate,
		From:  AccountPendingActivation,
		To:    AccountActive,
	}

	sm.record(ctx, tc, ActivityEventUserActivated)

	if err := sm.runHooks(ctx, tc); err != nil {
		return "", nil, err
	}

	return ActivationConfirmed, user, nil
}

func (sm *accountStateMachine) ChangePassword(ctx context.Context, actor ActorRef, user *User, passwordHash string) (*User, error) {
	if err := sm.Can(user, EventChangePassword); err != nil {
		return nil, err
	}

	if passwordHash == "" {
		return nil, ErrNoEmptyString
	}

	updated, err := sm.store.UpdatePassword(ctx, user, passwordHash)
	if err != nil {
		return nil, err
	}

	now := sm.now()
	sm.apply(user, updated)
	user.PasswordHash = passwordHash
	user.PasswordAt = &now

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		Event: EventChangePassword,
		From:  AccountActive,
		To:    AccountActive,
	}

	sm.record(ctx, tc, ActivityEventPasswordChanged)

	if err := sm.runHooks(ctx, tc); err != nil {
		return nil, err
	}

	return user, nil
}

func (sm *accountStateMachine) target(from AccountState, event AccountEvent) (AccountState, bool) {
	allowed, ok := sm.transitions[from]
	if !ok {
		return "", false
	}
	to, ok := allowed[event]
	return to, ok
}

func (sm *accountStateMachine) apply(user, updated *User) {
	if updated == nil || updated == user {
		return
	}
	user.IsActive = updated.IsActive
	user.ActivatedAt = updated.ActivatedAt
	user.PasswordAt = updated.PasswordAt
	user.UpdatedAt = updated.UpdatedAt
}

func (sm *accountStateMachine) runHooks(ctx context.Context, tc TransitionContext) error {
	for _, hook := range sm.hooks {
		if err := hook(ctx, tc); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "account transition hook failed").
				WithMetadata(map[string]any{
					"event": tc.Event,
					"from":  tc.From,
					"to":    tc.To,
				})
		}
	}
	return nil
}

func (sm *accountStateMachine) record(ctx context.Context, tc TransitionContext, eventType ActivityEventType) {
	event := userActivity(eventType, tc.User)
	event.Actor = tc.Actor
	event.FromState = tc.From
	event.ToState = tc.To
	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, event)
}
