package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/mail"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/oauth"
	"github.com/fromscratch/identity/internal/queue"
	"github.com/fromscratch/identity/internal/repository"
	"github.com/fromscratch/identity/internal/utils"
)

// DefaultResetTTL is how long a password reset link stays valid.
const DefaultResetTTL = 15 * time.Minute

// AuthConfig holds the AuthService settings taken from config.Config.
type AuthConfig struct {
	FrontendOrigin string
	ResetTTL       time.Duration
}

// AuthService runs registration, login, OAuth sign-in and password
// recovery.
type AuthService struct {
	store  repository.Store
	hasher *utils.Hasher
	tokens *utils.TokenService
	mailer mail.Sender
	events queue.Publisher
	log    *zap.Logger
	cfg    AuthConfig
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(store repository.Store, hasher *utils.Hasher, tokens *utils.TokenService,
	mailer mail.Sender, events queue.Publisher, log *zap.Logger, cfg AuthConfig) *AuthService {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &AuthService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		events: events,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Session is an authenticated user and the bearer token issued for it.
type Session struct {
	User  *model.User
	Token utils.SessionToken
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a credentials account. Emails are compared exactly as
// given after trimming surrounding whitespace.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := strings.TrimSpace(in.Email)
	if !validEmail(email) {
		return Session{}, apperr.Validation("A valid email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return Session{}, apperr.Validation("Password is required")
	}

	users := s.store.Repos().Users
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return Session{}, ErrEmailInUse
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Session{}, internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, internal(err)
	}
	u := &model.User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: &hash,
		Provider:     model.ProviderCredentials,
	}
	if err := users.Create(ctx, u); err != nil {
		// a concurrent registration won the unique key
		if errors.Is(err, repository.ErrEmailExists) {
			return Session{}, ErrEmailInUse
		}
		return Session{}, internal(err)
	}

	emit(ctx, s.events, s.log, queue.Event{Type: queue.UserRegistered, UserID: u.ID, Provider: string(u.Provider)})
	return s.issue(u)
}

// Login checks email and password. Unknown email, OAuth-only account and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	u, err := s.store.Repos().Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.burnVerify(password)
		return Session{}, ErrInvalidCredentials
	case err != nil:
		return Session{}, internal(err)
	}
	if !u.UsesPassword() {
		s.burnVerify(password)
		return Session{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, *u.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(u)
}

// burnVerify spends one bcrypt comparison so that rejected lookups take
// about as long as a wrong password.
func (s *AuthService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	_ = s.hasher.Verify(password, s.dummyHash)
}

// LoginOrRegisterOAuth resolves an external identity to a user: by
// (provider, providerId) first, then by email for an account created with
// another OAuth provider, else a new account. A credentials account with
// the same email is never taken over.
func (s *AuthService) LoginOrRegisterOAuth(ctx context.Context, id oauth.Identity) (Session, error) {
	if strings.TrimSpace(id.ProviderID) == "" {
		return Session{}, ErrMissingProviderID
	}
	if id.Provider != model.ProviderGoogle && id.Provider != model.ProviderGitHub {
		return Session{}, apperr.Validation("Unsupported sign-in provider")
	}
	id.Email = strings.TrimSpace(id.Email)

	var (
		u       *model.User
		created bool
		err     error
	)
	// Two first-time sign-ins for the same identity race on the unique keys;
	// the loser retries and finds the winner's row.
	for attempt := 0; attempt < 2; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
			var txErr error
			u, created, txErr = s.resolveOAuth(ctx, r, id)
			return txErr
		})
		if !errors.Is(err, repository.ErrDuplicate) && !errors.Is(err, repository.ErrEmailExists) {
			break
		}
	}
	if err != nil {
		return Session{}, internal(err)
	}

	if created {
		emit(ctx, s.events, s.log, queue.Event{Type: queue.UserRegistered, UserID: u.ID, Provider: string(u.Provider)})
	}
	return s.issue(u)
}

func (s *AuthService) resolveOAuth(ctx context.Context, r repository.Repos, id oauth.Identity) (*model.User, bool, error) {
	u, err := r.Users.GetByProvider(ctx, id.Provider, id.ProviderID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	if id.Email == "" {
		return nil, false, ErrEmailRequired
	}

	existing, err := r.Users.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		// Only another provider's account is relinked; a second subject of
		// the same provider must not take over the first one.
		if existing.Provider == model.ProviderCredentials || existing.Provider == id.Provider {
			return nil, false, ErrAccountCollision
		}
		if err := r.Users.LinkProvider(ctx, existing.ID, id.Provider, id.ProviderID); err != nil {
			return nil, false, err
		}
		pid := id.ProviderID
		existing.Provider, existing.ProviderID = id.Provider, &pid
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, err
	}

	first := strings.TrimSpace(id.FirstName)
	if first == "" {
		first = "User"
	}
	pid := id.ProviderID
	nu := &model.User{
		Email:      id.Email,
		FirstName:  first,
		LastName:   strings.TrimSpace(id.LastName),
		Provider:   id.Provider,
		ProviderID: &pid,
	}
	if err := r.Users.Create(ctx, nu); err != nil {
		return nil, false, err
	}
	return nu, true, nil
}

// ForgotPassword mails a reset link to credentials accounts. Unknown emails
// and OAuth accounts succeed silently. A delivery failure is returned; the
// token row has already been written by then and simply expires.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	r := s.store.Repos()
	u, err := r.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internal(err)
	}
	if !u.UsesPassword() {
		return nil
	}

	raw, err := utils.GenerateResetToken()
	if err != nil {
		return internal(err)
	}
	tok := &model.PasswordResetToken{
		UserID:    u.ID,
		Token:     raw,
		ExpiresAt: s.now().UTC().Add(s.cfg.ResetTTL),
	}
	if err := r.ResetTokens.Create(ctx, tok); err != nil {
		return internal(err)
	}

	msg, err := mail.PasswordReset(u.Email, s.cfg.FrontendOrigin, raw, s.cfg.ResetTTL)
	if err != nil {
		return internal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("password reset email not sent", zap.String("user_id", u.ID), zap.Error(err))
		return ErrMailDelivery.Wrap(err)
	}
	return nil
}

// ResetPassword consumes token and sets the new password in one
// transaction.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("New password is required")
	}
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal(err)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		t, err := r.ResetTokens.GetByToken(ctx, token)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		if !t.Usable(s.now()) {
			return ErrInvalidOrExpiredToken
		}
		if err := r.ResetTokens.MarkUsed(ctx, t.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		return r.Users.UpdatePasswordHash(ctx, t.UserID, hash)
	})
	return internal(err)
}

// ChangePassword replaces the password of a signed-in credentials account.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("New password is required")
	}
	users := s.store.Repos().Users
	u, err := users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return internal(err)
	}
	if !u.UsesPassword() {
		return ErrNotAvailable
	}
	if !s.hasher.Verify(oldPassword, *u.PasswordHash) {
		return ErrIncorrectPassword
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal(err)
	}
	return internal(users.UpdatePasswordHash(ctx, u.ID, hash))
}

// Profile is the signed-in user with the current subscription, if any.
type Profile struct {
	User         *model.User
	Subscription *model.Subscription
	Plan         *model.SubscriptionPlan
}

// Me loads the profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (Profile, error) {
	r := s.store.Repos()
	u, err := r.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Profile{}, ErrUserNotFound
	}
	if err != nil {
		return Profile{}, internal(err)
	}
	sub, err := currentSubscription(ctx, r, userID)
	if err != nil {
		return Profile{}, internal(err)
	}
	p := Profile{User: u, Subscription: sub}
	if sub != nil {
		p.Plan = sub.Plan
	}
	return p, nil
}

// VerifySession resolves a bearer token to its user id.
func (s *AuthService) VerifySession(token string) (string, error) {
	return s.tokens.VerifySession(token)
}

func (s *AuthService) issue(u *model.User) (Session, error) {
	tok, err := s.tokens.SignSession(u.ID)
	if err != nil {
		return Session{}, internal(err)
	}
	return Session{User: u, Token: tok}, nil
}

func validEmail(e string) bool {
	at := strings.IndexByte(e, '@')
	return at > 0 && at < len(e)-1 && !strings.ContainsAny(e, " \t\r\n")
}
