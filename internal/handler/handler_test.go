package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/mail"
	"github.com/fromscratch/identity/internal/middleware"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/oauth"
	"github.com/fromscratch/identity/internal/repository/memory"
	"github.com/fromscratch/identity/internal/service"
	"github.com/fromscratch/identity/internal/utils"
)

type fakeProvider struct {
	name model.Provider
	id   oauth.Identity
	err  error
}

func (p *fakeProvider) Name() model.Provider { return p.name }

func (p *fakeProvider) AuthorizationURL(state string) (string, error) {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state), nil
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (oauth.Identity, error) {
	if p.err != nil {
		return oauth.Identity{}, p.err
	}
	return p.id, nil
}

type env struct {
	e      *echo.Echo
	auth   *AuthHandler
	google *fakeProvider
	store  *memory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tokens, err := utils.NewTokenService("handler-secret", time.Hour)
	require.NoError(t, err)
	log := zap.NewNop()
	store := memory.New()
	authSvc := service.NewAuthService(store, utils.NewHasher(bcrypt.MinCost), tokens,
		mail.LogSender{Log: log}, nil, log, service.AuthConfig{FrontendOrigin: "https://app.example"})

	google := &fakeProvider{name: model.ProviderGoogle, id: oauth.Identity{
		Provider: model.ProviderGoogle, ProviderID: "g-1", Email: "ada@example.com", FirstName: "Ada",
	}}
	cfg := config.Config{FrontendOrigin: "https://app.example"}
	h := NewAuthHandler(cfg, authSvc, oauth.Registry{model.ProviderGoogle: google}, log)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(log)
	session := middleware.SessionAuth(authSvc)
	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
	e.POST("/logout", h.Logout)
	e.GET("/me", h.Me, session)
	e.GET("/:provider/login", h.OAuthLogin)
	e.GET("/:provider/callback", h.OAuthCallback)
	return &env{e: e, auth: h, google: google, store: store}
}

func (v *env) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func TestRenderError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", service.ErrEmailInUse, http.StatusConflict, "email_in_use"},
		{"wrapped", service.ErrInternal.Wrap(errors.New("db down")), http.StatusInternalServerError, "internal_error"},
		{"validation", apperr.Validation("bad"), http.StatusBadRequest, "validation_failed"},
		{"echo 404", echo.ErrNotFound, http.StatusNotFound, "not_found"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := renderError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRenderError_HidesInternalCause(t *testing.T) {
	_, body := renderError(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.NotContains(t, body.Message, "10.0.0.1")
}

func TestRegisterLoginMe(t *testing.T) {
	v := newEnv(t)

	rec := v.do(http.MethodPost, "/register", `{"email":"ada@example.com","password":"hunter22","firstName":"Ada","lastName":"Lovelace"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg sessionResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = v.do(http.MethodPost, "/register", `{"email":"ada@example.com","password":"other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_in_use", decodeError(t, rec).Error)

	rec = v.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ck := sessionCookie(rec)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(ck)
	me := httptest.NewRecorder()
	v.e.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	var body meResp
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &body))
	assert.Equal(t, reg.User.ID, body.User.ID)
	assert.Nil(t, body.Subscription)
}

func TestLogin_Failures(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusCreated, v.do(http.MethodPost, "/register", `{"email":"ada@example.com","password":"hunter22"}`).Code)

	wrong := v.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope"}`)
	unknown := v.do(http.MethodPost, "/login", `{"email":"bob@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	rec := v.do(http.MethodPost, "/login", `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(http.MethodPost, "/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe_RequiresSession(t *testing.T) {
	v := newEnv(t)
	rec := v.do(http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec = httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	v := newEnv(t)
	rec := v.do(http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ck := sessionCookie(rec)
	require.NotNil(t, ck)
	assert.Empty(t, ck.Value)
	assert.Less(t, ck.MaxAge, 0)
}

func TestOAuthLogin_RedirectsWithState(t *testing.T) {
	v := newEnv(t)
	rec := v.do(http.MethodGet, "/google/login?state=%2Fdashboard", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "idp.example", loc.Host)
	assert.Equal(t, "/dashboard", loc.Query().Get("state"))

	rec = v.do(http.MethodGet, "/gitlab/login", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuthCallback(t *testing.T) {
	state := url.QueryEscape(oauth.EncodeState(oauth.State{OK: "/welcome", Err: "/login?from=oauth"}))

	t.Run("success sets cookie", func(t *testing.T) {
		v := newEnv(t)
		rec := v.do(http.MethodGet, "/google/callback?code=abc&state="+state, "")
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://app.example/welcome", rec.Header().Get(echo.HeaderLocation))
		require.NotNil(t, sessionCookie(rec))
		users, _, _, _ := v.store.Counts()
		assert.Equal(t, 1, users)
	})

	t.Run("missing code", func(t *testing.T) {
		v := newEnv(t)
		rec := v.do(http.MethodGet, "/google/callback?state="+state, "")
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://app.example/login?from=oauth&error=Missing+code+in+callback",
			rec.Header().Get(echo.HeaderLocation))
		assert.Nil(t, sessionCookie(rec))
	})

	t.Run("exchange failure", func(t *testing.T) {
		v := newEnv(t)
		v.google.err = oauth.ErrExchangeFailed.WithUpstream(http.StatusBadRequest, errors.New("bad_verification_code"))
		rec := v.do(http.MethodGet, "/google/callback?code=abc", "")
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		assert.Equal(t, "/", loc.Path)
		assert.Equal(t, oauth.ErrExchangeFailed.Message, loc.Query().Get("error"))
	})

	t.Run("collision with credentials account", func(t *testing.T) {
		v := newEnv(t)
		require.Equal(t, http.StatusCreated, v.do(http.MethodPost, "/register", `{"email":"ada@example.com","password":"hunter22"}`).Code)
		rec := v.do(http.MethodGet, "/google/callback?code=abc&state=%2Faccount", "")
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		assert.Equal(t, "/account", loc.Path)
		assert.Equal(t, service.ErrAccountCollision.Message, loc.Query().Get("error"))
	})

	t.Run("open redirect is neutralized", func(t *testing.T) {
		v := newEnv(t)
		rec := v.do(http.MethodGet, "/google/callback?code=abc&state=%2F%2Fevil.example", "")
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://app.example/", rec.Header().Get(echo.HeaderLocation))
	})
}

func TestWithErrorParam(t *testing.T) {
	assert.Equal(t, "/login?error=a+b", withErrorParam("/login", "a b"))
	assert.Equal(t, "/login?x=1&error=c", withErrorParam("/login?x=1", "c"))
}
