package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/oauth"
	"github.com/fromscratch/identity/internal/queue"
	"github.com/fromscratch/identity/internal/repository"
)

func TestRegister_IssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter22", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderCredentials, s.User.Provider)
	assert.Nil(t, s.User.ProviderID)
	require.NotNil(t, s.User.PasswordHash)
	assert.NotEqual(t, "hunter22", *s.User.PasswordHash)

	uid, err := f.tokens.VerifySession(s.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, uid)
	assert.Equal(t, []queue.EventType{queue.UserRegistered}, f.events.types())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	for _, in := range []RegisterInput{
		{Email: "", Password: "x"},
		{Email: "no-at-sign", Password: "x"},
		{Email: "a@example.com", Password: "   "},
	} {
		_, err := f.auth.Register(context.Background(), in)
		ae, ok := apperr.As(err)
		require.True(t, ok, in.Email)
		assert.Equal(t, apperr.ValidationFailure, ae.Kind)
	}
}

func TestRegister_EmailInUse(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "pw")

	_, err := f.auth.Register(context.Background(), RegisterInput{Email: "ada@example.com", Password: "other"})
	assert.ErrorIs(t, err, ErrEmailInUse)

	// emails are case-sensitive as stored
	_, err = f.auth.Register(context.Background(), RegisterInput{Email: "Ada@example.com", Password: "other"})
	assert.NoError(t, err)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auth.Register(context.Background(), RegisterInput{Email: "race@example.com", Password: "pw"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrEmailInUse)
	}
	assert.Equal(t, 1, ok)
	users, _, _, _ := f.store.Counts()
	assert.Equal(t, 1, users)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "ada@example.com", "correct horse")

	s, err := f.auth.Login(context.Background(), "ada@example.com", "correct horse")
	require.NoError(t, err)
	uid, err := f.tokens.VerifySession(s.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com", "correct horse")
	_, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "1", Email: "gh@example.com"})
	require.NoError(t, err)

	_, wrongPassword := f.auth.Login(ctx, "ada@example.com", "battery staple")
	_, unknownEmail := f.auth.Login(ctx, "nobody@example.com", "correct horse")
	_, oauthOnly := f.auth.Login(ctx, "gh@example.com", "anything")

	for _, err := range []error{wrongPassword, unknownEmail, oauthOnly} {
		require.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}
}

func TestLoginOrRegisterOAuth_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g-1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}

	first, err := f.auth.LoginOrRegisterOAuth(ctx, id)
	require.NoError(t, err)
	second, err := f.auth.LoginOrRegisterOAuth(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Nil(t, first.User.PasswordHash)
	users, _, _, _ := f.store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, []queue.EventType{queue.UserRegistered}, f.events.types())
}

func TestLoginOrRegisterOAuth_ConcurrentFirstSignIn(t *testing.T) {
	f := newFixture(t)
	id := oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "42", Email: "octo@example.com"}

	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.auth.LoginOrRegisterOAuth(context.Background(), id)
			if assert.NoError(t, err) {
				ids[i] = s.User.ID
			}
		}(i)
	}
	wg.Wait()
	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
}

func TestLoginOrRegisterOAuth_CredentialsCollision(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "pw")

	_, err := f.auth.LoginOrRegisterOAuth(context.Background(), oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g-1", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrAccountCollision)
	users, _, _, _ := f.store.Counts()
	assert.Equal(t, 1, users)
}

func TestLoginOrRegisterOAuth_LinksOtherProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g-1", Email: "ada@example.com"})
	require.NoError(t, err)

	gh, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "99", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, g.User.ID, gh.User.ID)
	assert.Equal(t, model.ProviderGitHub, gh.User.Provider)

	stored, err := f.store.Repos().Users.GetByProvider(ctx, model.ProviderGitHub, "99")
	require.NoError(t, err)
	assert.Equal(t, g.User.ID, stored.ID)
}

func TestLoginOrRegisterOAuth_SameProviderOtherSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g-1", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g-2", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrAccountCollision)

	stored, err := f.store.Repos().Users.GetByProvider(ctx, model.ProviderGoogle, "g-1")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, stored.ID)
	_, err = f.store.Repos().Users.GetByProvider(ctx, model.ProviderGoogle, "g-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoginOrRegisterOAuth_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGitHub, Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrMissingProviderID)

	_, err = f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "7"})
	assert.ErrorIs(t, err, ErrEmailRequired)

	users, _, _, _ := f.store.Counts()
	assert.Equal(t, 0, users)
}

func TestLoginOrRegisterOAuth_DefaultNames(t *testing.T) {
	f := newFixture(t)
	s, err := f.auth.LoginOrRegisterOAuth(context.Background(), oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "7", Email: "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "User", s.User.FirstName)
	assert.Equal(t, "", s.User.LastName)
}

func TestForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com", "pw")
	_, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGoogle, ProviderID: "g", Email: "g@example.com"})
	require.NoError(t, err)

	require.NoError(t, f.auth.ForgotPassword(ctx, "nobody@example.com"))
	require.NoError(t, f.auth.ForgotPassword(ctx, "g@example.com"))
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ada@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].HTML, "https://app.example/auth/reset-password?token=")

	_, tokens, _, _ := f.store.Counts()
	assert.Equal(t, 1, tokens)
}

func TestForgotPassword_MailFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "pw")
	f.mailer.err = errBoom

	err := f.auth.ForgotPassword(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, ErrMailDelivery)
}

// lastResetToken extracts the token from the most recent reset email.
func lastResetToken(t *testing.T, f *fixture) string {
	t.Helper()
	require.NotEmpty(t, f.mailer.sent)
	html := f.mailer.sent[len(f.mailer.sent)-1].HTML
	i := strings.Index(html, "token=")
	require.GreaterOrEqual(t, i, 0)
	return html[i+len("token=") : i+len("token=")+64]
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com", "old")
	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	tok := lastResetToken(t, f)

	require.NoError(t, f.auth.ResetPassword(ctx, tok, "new"))
	_, err := f.auth.Login(ctx, "ada@example.com", "new")
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, tok, "newer")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	_, err = f.auth.Login(ctx, "ada@example.com", "new")
	assert.NoError(t, err)
}

func TestResetPassword_ConcurrentConsumeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com", "old")
	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	tok := lastResetToken(t, f)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.auth.ResetPassword(ctx, tok, "new")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com", "old")
	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	tok := lastResetToken(t, f)

	f.clock = f.clock.Add(15*time.Minute + time.Second)
	err := f.auth.ResetPassword(ctx, tok, "new")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = f.auth.Login(ctx, "ada@example.com", "old")
	assert.NoError(t, err)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.auth.ResetPassword(context.Background(), "deadbeef", "new"), ErrInvalidOrExpiredToken)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ada@example.com", "old")
	gh, err := f.auth.LoginOrRegisterOAuth(ctx, oauth.Identity{Provider: model.ProviderGitHub, ProviderID: "1", Email: "gh@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		oldPw   string
		newPw   string
		wantErr error
	}{
		{"unknown user", "missing", "old", "new", ErrUserNotFound},
		{"oauth account", gh.User.ID, "old", "new", ErrNotAvailable},
		{"wrong old password", u.ID, "nope", "new", ErrIncorrectPassword},
		{"blank new password", u.ID, "old", "  ", apperr.Validation("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.auth.ChangePassword(ctx, tt.userID, tt.oldPw, tt.newPw), tt.wantErr)
		})
	}

	require.NoError(t, f.auth.ChangePassword(ctx, u.ID, "old", "new"))
	_, err = f.auth.Login(ctx, "ada@example.com", "new")
	assert.NoError(t, err)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ada@example.com", "pw")

	p, err := f.auth.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.User.ID)
	assert.Nil(t, p.Subscription)

	plan := f.seedPlan(t, "Pro", 2900)
	_, err = f.subs.Subscribe(ctx, SubscribeInput{UserID: u.ID, PlanID: plan.ID})
	require.NoError(t, err)

	p, err = f.auth.Me(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Plan)
	assert.Equal(t, "Pro", p.Plan.Name)

	_, err = f.auth.Me(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
