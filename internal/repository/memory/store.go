// Package memory is an in-process repository.Store. It enforces the same
// unique keys as the MySQL schema and gives WithTx all-or-nothing semantics
// by running the unit of work on a copy of the data. Service and HTTP tests
// run on it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/repository"
)

type state struct {
	users         map[string]model.User
	tokens        map[string]model.PasswordResetToken
	plans         map[string]model.SubscriptionPlan
	subscriptions map[string]model.Subscription
	payments      map[string]model.Payment
}

func newState() *state {
	return &state{
		users:         map[string]model.User{},
		tokens:        map[string]model.PasswordResetToken{},
		plans:         map[string]model.SubscriptionPlan{},
		subscriptions: map[string]model.Subscription{},
		payments:      map[string]model.Payment{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store { return &Store{st: newState()} }

// Repos returns repositories whose every call is atomic on its own.
func (s *Store) Repos() repository.Repos {
	return reposFor(func(fn func(*state) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.st)
	})
}

// WithTx serializes units of work; fn runs on a copy that replaces the live
// data only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	r := reposFor(func(f func(*state) error) error { return f(work) })
	if err := fn(ctx, r); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Counts reports row counts, for assertions in tests.
func (s *Store) Counts() (users, tokens, subscriptions, payments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.users), len(s.st.tokens), len(s.st.subscriptions), len(s.st.payments)
}

type runner func(func(*state) error) error

func reposFor(run runner) repository.Repos {
	return repository.Repos{
		Users:         userRepo{run},
		ResetTokens:   tokenRepo{run},
		Plans:         planRepo{run},
		Subscriptions: subscriptionRepo{run},
		Payments:      paymentRepo{run},
	}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func now() time.Time { return time.Now().UTC() }

func sortPlans(p []model.SubscriptionPlan) {
	sort.SliceStable(p, func(i, j int) bool {
		if p[i].PriceCents != p[j].PriceCents {
			return p[i].PriceCents < p[j].PriceCents
		}
		return p[i].Name < p[j].Name
	})
}
