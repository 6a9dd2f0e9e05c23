package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	calls []string
}

func (l *captureLogger) Trace(message string, args ...any) { l.calls = append(l.calls, message) }
func (l *captureLogger) Debug(message string, args ...any) { l.calls = append(l.calls, message) }
func (l *captureLogger) Info(message string, args ...any)  { l.calls = append(l.calls, message) }
func (l *captureLogger) Warn(message string, args ...any)  { l.calls = append(l.calls, message) }
func (l *captureLogger) Error(message string, args ...any) { l.calls = append(l.calls, message) }
func (l *captureLogger) Fatal(message string, args ...any) { l.calls = append(l.calls, message) }
func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

type loggerProviderSpy struct {
	logger Logger
	byName map[string]Logger
	names  []string
}

func (p *loggerProviderSpy) GetLogger(name string) Logger {
	p.names = append(p.names, name)
	if p.byName != nil {
		if logger, ok := p.byName[name]; ok {
			return logger
		}
	}
	return p.logger
}

func TestLoggerContractAliasesAndResolve(t *testing.T) {
	base := defaultLogger()
	require.NotNil(t, base)

	var logger Logger = base
	var provider LoggerProvider = glog.ProviderFromLogger(base)

	resolvedProvider, resolvedLogger := ResolveLogger("auth.test", provider, logger)
	require.NotNil(t, resolvedProvider)
	require.NotNil(t, resolvedLogger)
	require.NotNil(t, resolvedProvider.GetLogger("auth.test"))

	fallback := &captureLogger{}
	providerWithNilLogger := &loggerProviderSpy{byName: map[string]Logger{"auth.test": nil}}
	fallbackProvider, fallbackLogger := ResolveLogger("auth.test", providerWithNilLogger, fallback)
	require.Same(t, fallback, fallbackLogger)
	require.Same(t, fallback, fallbackProvider.GetLogger("auth.test"))

	_, def := ResolveLogger("auth.test", nil, nil)
	require.NotNil(t, def)
}

func TestDefaultLoggerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := defLogger{out: &buf}

	logger.Warn("email failed", "recipient", "ana@example.com", "attempt", 2)
	assert.Equal(t, "[WRN] AUTH email failed recipient=ana@example.com attempt=2\n", buf.String())

	buf.Reset()
	logger.Info("odd", "dangling")
	assert.Equal(t, "[INF] AUTH odd dangling\n", buf.String())

	require.NotPanics(t, func() {
		defLogger{}.Error("no writer")
		logger.WithContext(context.Background()).Debug("contextual")
	})
}

func TestComponentsResolveScopedLoggers(t *testing.T) {
	flowsLogger := &captureLogger{}
	machineLogger := &captureLogger{}
	httpLogger := &captureLogger{}
	provider := &loggerProviderSpy{byName: map[string]Logger{
		"auth.flows":         flowsLogger,
		"auth.state_machine": machineLogger,
		"auth.http":          httpLogger,
	}}

	sm := NewAccountStateMachine(nil, WithStateMachineLoggerProvider(provider)).(*accountStateMachine)
	assert.Same(t, machineLogger, sm.logger)

	codec := &TokenCodec{}
	flows, err := NewFlows(NewConfig(), noopStore{}, codec, WithFlowLoggerProvider(provider))
	require.NoError(t, err)
	assert.Same(t, flowsLogger, flows.logger)

	ctrl := NewHTTPController(flows, WithControllerLoggerProvider(provider))
	assert.Same(t, httpLogger, ctrl.Logger)

	assert.Contains(t, provider.names, "auth.flows")
	assert.Contains(t, provider.names, "auth.state_machine")
	assert.Contains(t, provider.names, "auth.http")
}

func TestFlowErrorKeepsKind(t *testing.T) {
	err := flowError(ErrTokenExpired, "Token has expired", map[string]any{"purpose": "reset"})

	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.Equal(t, "Token has expired", err.Message)
	assert.Equal(t, "reset", err.Metadata["purpose"])
	assert.Nil(t, ErrTokenExpired.Metadata["purpose"])

	reg := alreadyRegistered(ProvisioningGoogle, "Already registered through Google")
	assert.Equal(t, "google", reg.Metadata["provider"])
	assert.True(t, errors.Is(reg, ErrAlreadyRegistered))
}

func TestInternalError(t *testing.T) {
	cause := errors.New("connection reset")
	err := internalError(cause, "failed to load user")

	assert.Equal(t, TextCodeInternal, err.TextCode)
	assert.Equal(t, goerrors.CodeInternal, err.Code)
	assert.Equal(t, goerrors.CategoryInternal, err.Category)
	assert.True(t, errors.Is(err, cause))

	assert.Equal(t, TextCodeInternal, internalError(nil, "boom").TextCode)
}

type noopStore struct {
	CredentialStore
}
