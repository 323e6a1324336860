package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/repository"
)

var _ repository.Store = (*Store)(nil)

func TestStore_WithTx_AllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		require.NoError(t, r.Payments.Create(ctx, &model.Payment{UserID: "u1", ExternalPaymentID: "cs_1"}))
		return errors.New("subscription failed")
	})
	require.Error(t, err)
	_, _, _, payments := s.Counts()
	assert.Equal(t, 0, payments)

	err = s.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		return r.Payments.Create(ctx, &model.Payment{UserID: "u1", ExternalPaymentID: "cs_1"})
	})
	require.NoError(t, err)
	_, _, _, payments = s.Counts()
	assert.Equal(t, 1, payments)
}

func TestStore_UniqueKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Repos()
	gh := "42"

	require.NoError(t, r.Users.Create(ctx, &model.User{Email: "a@example.com", Provider: model.ProviderGitHub, ProviderID: &gh}))
	assert.ErrorIs(t, r.Users.Create(ctx, &model.User{Email: "a@example.com", Provider: model.ProviderCredentials}), repository.ErrEmailExists)
	assert.ErrorIs(t, r.Users.Create(ctx, &model.User{Email: "b@example.com", Provider: model.ProviderGitHub, ProviderID: &gh}), repository.ErrDuplicate)

	// email is case-sensitive as stored
	require.NoError(t, r.Users.Create(ctx, &model.User{Email: "A@example.com", Provider: model.ProviderCredentials}))

	require.NoError(t, r.Subscriptions.Create(ctx, &model.Subscription{UserID: "u1", Status: model.SubscriptionActive, StartDate: time.Now()}))
	assert.ErrorIs(t, r.Subscriptions.Create(ctx, &model.Subscription{UserID: "u1", Status: model.SubscriptionActive, StartDate: time.Now()}), repository.ErrDuplicate)
}

func TestStore_ListActivePlansSortedByPrice(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Repos()
	for _, p := range []model.SubscriptionPlan{
		{Name: "Team", PriceCents: 9900, IsActive: true},
		{Name: "Starter", PriceCents: 0, IsActive: true},
		{Name: "Legacy", PriceCents: 500, IsActive: false},
		{Name: "Pro", PriceCents: 2900, IsActive: true},
	} {
		p := p
		_, err := r.Plans.UpsertByName(ctx, &p)
		require.NoError(t, err)
	}

	plans, err := r.Plans.ListActive(ctx)
	require.NoError(t, err)
	var names []string
	for _, p := range plans {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Starter", "Pro", "Team"}, names)

	created, err := r.Plans.UpsertByName(ctx, &model.SubscriptionPlan{Name: "Pro", PriceCents: 3900, IsActive: true})
	require.NoError(t, err)
	assert.False(t, created)
}
