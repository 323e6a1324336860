package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/middleware"
	"github.com/fromscratch/identity/internal/oauth"
	"github.com/fromscratch/identity/internal/service"
	"github.com/fromscratch/identity/internal/utils"
)

// requestTimeout bounds the store and upstream work of one request.
const requestTimeout = 5 * time.Second

// oauthTimeout covers the code exchange plus the profile calls.
const oauthTimeout = 10 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	Auth      *service.AuthService
	Providers oauth.Registry
	Log       *zap.Logger
}

func NewAuthHandler(cfg config.Config, auth *service.AuthService, providers oauth.Registry, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: auth, Providers: providers, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
type changeReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type sessionResp struct {
	User        *userDTO  `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type meResp struct {
	User         *userDTO         `json:"user"`
	Subscription *subscriptionDTO `json:"subscription"`
	Plan         *planDTO         `json:"plan"`
}

type messageResp struct {
	Message string `json:"message"`
}

// Register: create a credentials account and sign it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Auth.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	h.setSessionCookie(c, sess.Token)
	return c.JSON(http.StatusCreated, toSessionResp(sess))
}

// Login: verify credentials, return the token and set the session cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperr.Validation("email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setSessionCookie(c, sess.Token)
	return c.JSON(http.StatusOK, toSessionResp(sess))
}

// Logout clears the session cookie. Tokens stay valid until they expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, messageResp{Message: "Logged out"})
}

// Me returns the caller with the current subscription and its plan.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Auth.Me(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResp{
		User:         toUser(p.User),
		Subscription: toSubscription(p.Subscription),
		Plan:         toPlan(p.Plan),
	})
}

// ForgotPassword answers the same way whether or not the email is known.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{
		Message: "If an account exists for this email, a reset link has been sent",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: "Password has been reset"})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changeReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, middleware.UserID(c), req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: "Password updated"})
}

// OAuthLogin redirects to the provider's consent page. The state query
// parameter is forwarded untouched and comes back on the callback.
func (h *AuthHandler) OAuthLogin(c echo.Context) error {
	p, err := h.Providers.Get(c.Param("provider"))
	if err != nil {
		return err
	}
	state := c.QueryParam("state")
	if state == "" {
		state = oauth.EncodeState(oauth.State{OK: "/", Err: "/"})
	}
	target, err := p.AuthorizationURL(state)
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, target)
}

// OAuthCallback finishes a provider sign-in and always answers with a
// redirect back to the frontend: the state's ok path with the session
// cookie set, or its err path with an error query parameter.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	state := oauth.ParseState(c.QueryParam("state"))
	fail := func(msg string) error {
		return c.Redirect(http.StatusFound, withErrorParam(h.Cfg.FrontendOrigin+state.Err, msg))
	}

	p, err := h.Providers.Get(c.Param("provider"))
	if err != nil {
		return fail(errorMessage(err))
	}
	if denied := c.QueryParam("error"); denied != "" {
		return fail(denied)
	}
	code := c.QueryParam("code")
	if code == "" {
		return fail("Missing code in callback")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	id, err := p.Exchange(ctx, code)
	if err != nil {
		h.logOAuthFailure(p, err)
		return fail(errorMessage(err))
	}
	sess, err := h.Auth.LoginOrRegisterOAuth(ctx, id)
	if err != nil {
		h.logOAuthFailure(p, err)
		return fail(errorMessage(err))
	}
	h.setSessionCookie(c, sess.Token)
	return c.Redirect(http.StatusFound, h.Cfg.FrontendOrigin+state.OK)
}

func (h *AuthHandler) logOAuthFailure(p oauth.Provider, err error) {
	fields := []zap.Field{zap.String("provider", string(p.Name())), zap.Error(err)}
	if ae, ok := apperr.As(err); ok && ae.UpstreamStatus != 0 {
		fields = append(fields, zap.Int("upstream_status", ae.UpstreamStatus))
	}
	h.Log.Warn("oauth sign-in failed", fields...)
}

func (h *AuthHandler) setSessionCookie(c echo.Context, tok utils.SessionToken) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toSessionResp(s service.Session) sessionResp {
	return sessionResp{User: toUser(s.User), AccessToken: s.Token.Token, ExpiresAt: s.Token.ExpiresAt}
}

// errorMessage is the user-facing text of err.
func errorMessage(err error) string {
	_, body := renderError(err)
	return body.Message
}

func withErrorParam(target, msg string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "error=" + url.QueryEscape(msg)
}
