package auth

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterRoutes mounts the auth routes on app under the configured prefix.
func RegisterRoutes[T any](app router.Router[T], controller *HTTPController) {
	routes := controller.Routes

	app.Post(routes.SignIn, controller.SignIn).
		SetName("auth.sign-in.post")

	app.Post(routes.SignUp, controller.SignUp).
		SetName("auth.sign-up.post")

	app.Get(routes.Activate+"/:token", controller.Activate).
		SetName("auth.activate.get")

	app.Post(routes.SignInGoogle, controller.SignInGoogle).
		SetName("auth.sign-in-google.post")

	app.Get(routes.ResetPassword, controller.RequestPasswordReset).
		SetName("auth.reset-password.get")
	app.Post(routes.ResetPassword+"/:token", controller.ResetPassword).
		SetName("auth.reset-password.post")

	app.Get(routes.ResendActivation, controller.ResendActivation).
		SetName("auth.resend-activation.get")
}

type HTTPControllerRoutes struct {
	SignIn           string
	SignUp           string
	Activate         string
	SignInGoogle     string
	ResetPassword    string
	ResendActivation string
}

// HTTPController exposes Flows as JSON endpoints.
type HTTPController struct {
	Debug        bool
	Logger       Logger
	Flows        *Flows
	Routes       *HTTPControllerRoutes
	ErrorHandler router.ErrorHandler
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerLoggerProvider(provider LoggerProvider) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		_, c.Logger = ResolveLogger("auth.http", provider, c.Logger)
		return c
	}
}

// WithControllerErrorHandler replaces the JSON error renderer
func WithControllerErrorHandler(handler router.ErrorHandler) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func NewHTTPController(flows *Flows, opts ...HTTPControllerOption) *HTTPController {
	if flows == nil {
		panic("Missing Flows in auth HTTP controller...")
	}

	cfg := flows.Config()
	_, logger := ResolveLogger("auth.http", nil, nil)

	c := &HTTPController{
		Logger: logger,
		Flows:  flows,
		Routes: &HTTPControllerRoutes{
			SignIn:           cfg.Route("/sign_in"),
			SignUp:           cfg.Route("/sign_up"),
			Activate:         cfg.Route("/activate"),
			SignInGoogle:     cfg.Route("/sign_in_google"),
			ResetPassword:    cfg.Route("/reset_password"),
			ResendActivation: cfg.Route("/resend_activation"),
		},
	}
	c.ErrorHandler = c.renderError

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

func (c *HTTPController) SignIn(ctx router.Context) error {
	payload := new(SignInRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.debugPayload("sign_in", map[string]any{"email": payload.Email})

	token, err := c.Flows.SignIn(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, token)
}

func (c *HTTPController) SignUp(ctx router.Context) error {
	payload := new(SignUpRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.debugPayload("sign_up", map[string]any{"email": payload.Email})

	res, err := c.Flows.SignUp(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

func (c *HTTPController) Activate(ctx router.Context) error {
	outcome, err := c.Flows.Activate(ctx.Context(), ctx.Param("token"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if outcome.Redirect != "" {
		return ctx.Redirect(outcome.Redirect, router.StatusSeeOther)
	}

	return ctx.JSON(router.StatusOK, outcome.Ack)
}

func (c *HTTPController) SignInGoogle(ctx router.Context) error {
	payload := new(GoogleSignInRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.debugPayload("sign_in_google", map[string]any{
		"client_id": payload.ClientID,
		"select_by": payload.SelectBy,
	})

	token, err := c.Flows.SignInGoogle(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, token)
}

func (c *HTTPController) RequestPasswordReset(ctx router.Context) error {
	payload := &EmailRequest{Email: ctx.Query("email", "")}
	if err := validatePayload(payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	res, err := c.Flows.RequestPasswordReset(ctx.Context(), payload.Email)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

func (c *HTTPController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	res, err := c.Flows.ResetPassword(ctx.Context(), ctx.Param("token"), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// ResendActivation reads the email from the body and falls back to the
// query string, since GET bodies are dropped by some clients.
func (c *HTTPController) ResendActivation(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Debug("resend activation body ignored", "error", err)
	}

	if payload.Email == "" {
		payload.Email = ctx.Query("email", "")
	}

	if err := validatePayload(payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	res, err := c.Flows.ResendActivation(ctx.Context(), payload.Email)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

type validatable interface {
	Validate() error
}

func (c *HTTPController) bind(ctx router.Context, payload validatable) error {
	if err := ctx.Bind(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Failed to parse request body").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return validatePayload(payload)
}

func validatePayload(payload validatable) error {
	if err := payload.Validate(); err != nil {
		return goerrors.FromOzzoValidation(err, "Invalid request payload").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func (c *HTTPController) debugPayload(route string, payload any) {
	if !c.Debug {
		return
	}
	c.Logger.Debug("auth request", "route", route, "payload", print.MaybePrettyJSON(payload))
}

func (c *HTTPController) renderError(ctx router.Context, err error) error {
	status, body := ErrorResponse(err)

	if status >= goerrors.CodeInternal {
		c.Logger.Error("auth request failed", "error", err)
	} else {
		c.Logger.Debug("auth request rejected", "kind", ErrorKind(err), "error", err)
	}

	if status == router.StatusUnauthorized {
		ctx.SetHeader("WWW-Authenticate", "Bearer")
	}

	return ctx.JSON(status, body)
}

// ErrorResponse maps err to an HTTP status and the JSON error body
// {"status":"error","error":{"kind","detail","fields"}}.
func ErrorResponse(err error) (int, map[string]any) {
	richErr := goerrors.MapToError(err, nil)

	status := richErr.Code
	if status == 0 {
		status = router.StatusBadRequest
		if richErr.Category == goerrors.CategoryInternal {
			status = goerrors.CodeInternal
		}
	}

	kind := richErr.TextCode
	if kind == "" {
		kind = TextCodeInternal
		if status < goerrors.CodeInternal {
			kind = TextCodeValidation
		}
	}

	detail := richErr.Message
	if status >= goerrors.CodeInternal {
		detail = "Internal server error"
	}

	body := map[string]any{
		"kind":   kind,
		"detail": detail,
	}

	if len(richErr.ValidationErrors) > 0 {
		fields := make(map[string]string, len(richErr.ValidationErrors))
		for _, fe := range richErr.ValidationErrors {
			fields[fe.Field] = fe.Message
		}
		body["fields"] = fields
	}

	return status, map[string]any{
		"status": "error",
		"error":  body,
	}
}
