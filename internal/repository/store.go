package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/fromscratch/identity/internal/dbx"
	"github.com/fromscratch/identity/internal/model"
)

// UserRepository persists identity records.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	LinkProvider(ctx context.Context, id string, provider model.Provider, providerID string) error
}

// ResetTokenRepository persists password reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, t *model.PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*model.PasswordResetToken, error)
	// MarkUsed flips used to true only if it is still false; otherwise it
	// returns ErrNotFound so two concurrent consumers cannot both succeed.
	MarkUsed(ctx context.Context, id string) error
}

// PlanRepository reads the plan catalog and supports administrative seeding.
type PlanRepository interface {
	ListActive(ctx context.Context) ([]model.SubscriptionPlan, error)
	GetByID(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	UpsertByName(ctx context.Context, p *model.SubscriptionPlan) (created bool, err error)
}

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, s *model.Subscription) error
	GetActiveByUser(ctx context.Context, userID string) (*model.Subscription, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*model.Subscription, error)
	Cancel(ctx context.Context, id string, at time.Time) error
	CancelActiveByUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// PaymentRepository persists recorded charges.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByExternalID(ctx context.Context, externalID string) (*model.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]model.Payment, error)
}

// Repos bundles the repositories bound to one handle (pool or transaction).
type Repos struct {
	Users         UserRepository
	ResetTokens   ResetTokenRepository
	Plans         PlanRepository
	Subscriptions SubscriptionRepository
	Payments      PaymentRepository
}

// Store hands out repositories. WithTx runs fn against repositories that
// share a single transaction: all writes commit together or none do.
type Store interface {
	Repos() Repos
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// MySQLStore is the Store backed by a MySQL connection pool.
type MySQLStore struct{ db *sql.DB }

// NewMySQLStore returns a Store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// Repos returns repositories running on the pool.
func (s *MySQLStore) Repos() Repos { return reposOn(s.db) }

// WithTx runs fn inside one transaction.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, reposOn(tx))
	})
}

func reposOn(db dbx.DBTX) Repos {
	return Repos{
		Users:         NewUserRepo(db),
		ResetTokens:   NewResetTokenRepo(db),
		Plans:         NewPlanRepo(db),
		Subscriptions: NewSubscriptionRepo(db),
		Payments:      NewPaymentRepo(db),
	}
}
