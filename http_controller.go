package auth

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	router "github.com/goliatone/go-router"
)

// CSRFTokenSource mints the token handed to clients by the bootstrap route.
type CSRFTokenSource interface {
	Token(c router.Context) (string, error)
}

// ControllerRoutes holds the mount points for the HTTP surface.
type ControllerRoutes struct {
	CSRF      string
	Providers string
	SignIn    string
	Register  string
	Callback  string
	Session   string
	SignOut   string
}

// Controller exposes the authentication flows over HTTP as a JSON API.
type Controller struct {
	Debug        bool
	Logger       Logger
	Routes       *ControllerRoutes
	ErrorHandler func(c router.Context, err error) error

	manager *Manager
	csrf    CSRFTokenSource
}

// NewController creates the HTTP controller for manager.
func NewController(manager *Manager, csrf CSRFTokenSource) *Controller {
	ctrl := &Controller{
		Logger:  defLogger{},
		manager: manager,
		csrf:    csrf,
		Routes: &ControllerRoutes{
			CSRF:      "/auth/csrf",
			Providers: "/auth/providers",
			SignIn:    "/auth/signin",
			Register:  "/auth/register",
			Callback:  "/auth/callback",
			Session:   "/auth/session",
			SignOut:   "/auth/signout",
		},
	}
	ctrl.ErrorHandler = ctrl.renderError
	return ctrl
}

// RegisterRoutes mounts the controller on app.
func RegisterRoutes[T any](app router.Router[T], ctrl *Controller) {
	app.Get(ctrl.Routes.CSRF, ctrl.CSRFToken)
	app.Get(ctrl.Routes.Providers, ctrl.ListProviders)

	app.Post(fmt.Sprintf("%s/:provider", ctrl.Routes.SignIn), ctrl.SignIn)
	app.Get(fmt.Sprintf("%s/:provider", ctrl.Routes.SignIn), ctrl.SignInRedirect)

	app.Post(fmt.Sprintf("%s/:provider", ctrl.Routes.Register), ctrl.Register)
	app.Get(fmt.Sprintf("%s/:provider", ctrl.Routes.Callback), ctrl.Callback)

	app.Get(ctrl.Routes.Session, ctrl.SessionShow)
	app.Post(ctrl.Routes.SignOut, ctrl.SignOut)
}

// sessionResponse is the flattened body returned by every route that ends in
// an established session.
type sessionResponse struct {
	*Session
	Redirect string `json:"redirect,omitempty"`
}

// SignInPayload is the sign in request body.
type SignInPayload struct {
	Email       string `form:"email" json:"email"`
	Username    string `form:"username" json:"username"`
	Password    string `form:"password" json:"password"`
	CallbackURL string `form:"callback_url" json:"callback_url"`
}

func (p SignInPayload) credentials() Credentials {
	return Credentials{
		Email:    p.Email,
		Username: p.Username,
		Password: p.Password,
	}
}

// CSRFToken hands the client a token to echo back on state-changing calls.
func (ctrl *Controller) CSRFToken(c router.Context) error {
	if ctrl.csrf == nil {
		return c.JSON(router.StatusOK, map[string]any{"csrf_token": ""})
	}

	token, err := ctrl.csrf.Token(c)
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"csrf_token": token})
}

// ListProviders lists the registered providers.
func (ctrl *Controller) ListProviders(c router.Context) error {
	return c.JSON(router.StatusOK, map[string]any{
		"providers": ctrl.manager.Providers(),
	})
}

// SignIn dispatches on the provider type: credentials sign in directly, email
// providers start the magic link flow, and OAuth providers redirect to the
// upstream consent screen.
func (ctrl *Controller) SignIn(c router.Context) error {
	providerID := c.Param("provider")

	provider, err := ctrl.manager.Provider(providerID)
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	payload := SignInPayload{}
	if err := c.Bind(&payload); err != nil {
		return ctrl.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse sign in payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if ctrl.Debug {
		safe := payload
		safe.Password = "[redacted]"
		fmt.Println(print.MaybePrettyJSON(safe))
	}

	switch provider.Type() {
	case ProviderTypeOAuth:
		return ctrl.startOAuth(c, providerID, payload.CallbackURL)
	case ProviderTypeEmail:
		if err := ctrl.manager.StartEmailSignIn(c, providerID, payload.Email); err != nil {
			return ctrl.ErrorHandler(c, err)
		}
		return c.JSON(router.StatusOK, map[string]any{"ok": true})
	default:
		session, redirect, err := ctrl.manager.SignIn(c, providerID, payload.credentials())
		if err != nil {
			return ctrl.ErrorHandler(c, err)
		}
		return c.JSON(router.StatusOK, sessionResponse{Session: session, Redirect: redirect})
	}
}

// SignInRedirect serves GET sign in requests. Only OAuth providers support
// them, by redirecting to the upstream authorization endpoint.
func (ctrl *Controller) SignInRedirect(c router.Context) error {
	providerID := c.Param("provider")

	provider, err := ctrl.manager.Provider(providerID)
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	if provider.Type() != ProviderTypeOAuth {
		return ctrl.ErrorHandler(c, ErrMethodNotAllowed)
	}

	return ctrl.startOAuth(c, providerID, c.Query("callback_url"))
}

func (ctrl *Controller) startOAuth(c router.Context, providerID, callbackURL string) error {
	url, err := ctrl.manager.AuthorizationURL(c, providerID, AuthorizationRequest{
		RedirectURL: sanitizeCallbackURL(callbackURL),
	})
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	return c.Redirect(url, http.StatusFound)
}

// RegisterPayload is the registration request body.
type RegisterPayload struct {
	Email    string `form:"email" json:"email"`
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Name     string `form:"name" json:"name"`
}

// Register creates an account through providers that support registration.
func (ctrl *Controller) Register(c router.Context) error {
	providerID := c.Param("provider")

	payload := RegisterPayload{}
	if err := c.Bind(&payload); err != nil {
		return ctrl.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse register payload").
			WithCode(goerrors.CodeBadRequest))
	}

	creds := Credentials{
		Email:    payload.Email,
		Username: payload.Username,
		Password: payload.Password,
	}
	if payload.Name != "" {
		creds.Attributes = map[string]any{"name": payload.Name}
	}

	session, redirect, err := ctrl.manager.Register(c, providerID, creds)
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusCreated, sessionResponse{Session: session, Redirect: redirect})
}

// Callback completes OAuth and magic link flows.
func (ctrl *Controller) Callback(c router.Context) error {
	providerID := c.Param("provider")

	provider, err := ctrl.manager.Provider(providerID)
	if err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	switch provider.Type() {
	case ProviderTypeEmail:
		session, redirect, err := ctrl.manager.ConsumeEmailToken(c, providerID, c.Query("identifier"), c.Query("token"))
		if err != nil {
			return ctrl.ErrorHandler(c, err)
		}
		return c.JSON(router.StatusOK, sessionResponse{Session: session, Redirect: redirect})
	case ProviderTypeOAuth:
		_, redirect, err := ctrl.manager.HandleOAuthCallback(c, providerID, c.Query("code"), c.Query("state"))
		if err != nil {
			return ctrl.ErrorHandler(c, err)
		}
		return c.Redirect(sanitizeCallbackURL(redirect), http.StatusFound)
	default:
		return ctrl.ErrorHandler(c, ErrMethodNotAllowed)
	}
}

// SessionShow returns the current session, or 401 when no visitor is signed
// in.
func (ctrl *Controller) SessionShow(c router.Context) error {
	session, err := ctrl.manager.ResolveSession(c)
	if err != nil {
		if goerrors.Is(err, ErrRememberTokenStale) {
			err = ErrUnauthenticated
		}
		return ctrl.ErrorHandler(c, err)
	}

	if session == nil {
		return ctrl.ErrorHandler(c, ErrUnauthenticated)
	}

	return c.JSON(router.StatusOK, sessionResponse{Session: session})
}

// SignOut tears down the session.
func (ctrl *Controller) SignOut(c router.Context) error {
	if err := ctrl.manager.SignOut(c); err != nil {
		return ctrl.ErrorHandler(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"ok": true})
}

func (ctrl *Controller) renderError(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	ctrl.Logger.Info(
		"Request error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return c.JSON(HTTPStatus(richErr), map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

// sanitizeCallbackURL constrains post-auth redirects to same-origin paths.
// Anything absolute, protocol-relative, or malformed falls back to the root.
func sanitizeCallbackURL(raw string) string {
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return "/"
	}
	return raw
}
