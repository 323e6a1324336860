package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/repository"
)

type userRepo struct{ run runner }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	return r.run(func(st *state) error {
		for _, ex := range st.users {
			if ex.Email == u.Email {
				return repository.ErrEmailExists
			}
			if u.ProviderID != nil && ex.ProviderID != nil && ex.Provider == u.Provider && *ex.ProviderID == *u.ProviderID {
				return repository.ErrDuplicate
			}
		}
		u.ID = newID(u.ID)
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now()
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r userRepo) find(match func(model.User) bool) (*model.User, error) {
	var out *model.User
	err := r.run(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				cp := u
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r userRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r userRepo) GetByProvider(_ context.Context, provider model.Provider, providerID string) (*model.User, error) {
	return r.find(func(u model.User) bool {
		return u.Provider == provider && u.ProviderID != nil && *u.ProviderID == providerID
	})
}

func (r userRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.run(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		h := hash
		u.PasswordHash = &h
		st.users[id] = u
		return nil
	})
}

func (r userRepo) LinkProvider(_ context.Context, id string, provider model.Provider, providerID string) error {
	return r.run(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		for _, ex := range st.users {
			if ex.ID != id && ex.Provider == provider && ex.ProviderID != nil && *ex.ProviderID == providerID {
				return repository.ErrDuplicate
			}
		}
		pid := providerID
		u.Provider = provider
		u.ProviderID = &pid
		st.users[id] = u
		return nil
	})
}

type tokenRepo struct{ run runner }

func (r tokenRepo) Create(_ context.Context, t *model.PasswordResetToken) error {
	return r.run(func(st *state) error {
		for _, ex := range st.tokens {
			if ex.Token == t.Token {
				return repository.ErrDuplicate
			}
		}
		t.ID = newID(t.ID)
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		st.tokens[t.ID] = *t
		return nil
	})
}

func (r tokenRepo) GetByToken(_ context.Context, token string) (*model.PasswordResetToken, error) {
	var out *model.PasswordResetToken
	err := r.run(func(st *state) error {
		for _, t := range st.tokens {
			if t.Token == token {
				cp := t
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r tokenRepo) MarkUsed(_ context.Context, id string) error {
	return r.run(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || t.Used {
			return repository.ErrNotFound
		}
		t.Used = true
		st.tokens[id] = t
		return nil
	})
}

type planRepo struct{ run runner }

func (r planRepo) ListActive(_ context.Context) ([]model.SubscriptionPlan, error) {
	out := []model.SubscriptionPlan{}
	err := r.run(func(st *state) error {
		for _, p := range st.plans {
			if p.IsActive {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPlans(out)
	return out, err
}

func (r planRepo) GetByID(_ context.Context, id string) (*model.SubscriptionPlan, error) {
	var out *model.SubscriptionPlan
	err := r.run(func(st *state) error {
		p, ok := st.plans[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r planRepo) UpsertByName(_ context.Context, p *model.SubscriptionPlan) (bool, error) {
	created := false
	err := r.run(func(st *state) error {
		for id, ex := range st.plans {
			if ex.Name == p.Name {
				p.ID = id
				p.CreatedAt = ex.CreatedAt
				st.plans[id] = *p
				return nil
			}
		}
		p.ID = newID(p.ID)
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now()
		}
		st.plans[p.ID] = *p
		created = true
		return nil
	})
	return created, err
}

type subscriptionRepo struct{ run runner }

func (r subscriptionRepo) Create(_ context.Context, s *model.Subscription) error {
	return r.run(func(st *state) error {
		if s.Status == model.SubscriptionActive {
			for _, ex := range st.subscriptions {
				if ex.UserID == s.UserID && ex.Status == model.SubscriptionActive {
					return repository.ErrDuplicate
				}
			}
		}
		s.ID = newID(s.ID)
		cp := *s
		cp.Plan = nil
		st.subscriptions[s.ID] = cp
		return nil
	})
}

func (r subscriptionRepo) latest(match func(model.Subscription) bool) (*model.Subscription, error) {
	var out *model.Subscription
	err := r.run(func(st *state) error {
		var all []model.Subscription
		for _, s := range st.subscriptions {
			if match(s) {
				all = append(all, s)
			}
		}
		if len(all) == 0 {
			return repository.ErrNotFound
		}
		sort.Slice(all, func(i, j int) bool { return all[i].StartDate.After(all[j].StartDate) })
		out = &all[0]
		return nil
	})
	return out, err
}

func (r subscriptionRepo) GetActiveByUser(_ context.Context, userID string) (*model.Subscription, error) {
	return r.latest(func(s model.Subscription) bool {
		return s.UserID == userID && s.Status == model.SubscriptionActive
	})
}

func (r subscriptionRepo) GetByPaymentID(_ context.Context, paymentID string) (*model.Subscription, error) {
	return r.latest(func(s model.Subscription) bool {
		return s.PaymentID != nil && *s.PaymentID == paymentID
	})
}

func (r subscriptionRepo) Cancel(_ context.Context, id string, at time.Time) error {
	return r.run(func(st *state) error {
		s, ok := st.subscriptions[id]
		if !ok || s.Status != model.SubscriptionActive {
			return repository.ErrNotFound
		}
		st.subscriptions[id] = canceled(s, at)
		return nil
	})
}

func (r subscriptionRepo) CancelActiveByUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	err := r.run(func(st *state) error {
		for id, s := range st.subscriptions {
			if s.UserID == userID && s.Status == model.SubscriptionActive {
				st.subscriptions[id] = canceled(s, at)
				n++
			}
		}
		return nil
	})
	return n, err
}

func canceled(s model.Subscription, at time.Time) model.Subscription {
	end := at.UTC()
	s.Status = model.SubscriptionCanceled
	s.AutoRenew = false
	s.EndDate = &end
	return s
}

type paymentRepo struct{ run runner }

func (r paymentRepo) Create(_ context.Context, p *model.Payment) error {
	return r.run(func(st *state) error {
		for _, ex := range st.payments {
			if ex.ExternalPaymentID == p.ExternalPaymentID {
				return repository.ErrDuplicate
			}
		}
		p.ID = newID(p.ID)
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now()
		}
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepo) GetByExternalID(_ context.Context, externalID string) (*model.Payment, error) {
	var out *model.Payment
	err := r.run(func(st *state) error {
		for _, p := range st.payments {
			if p.ExternalPaymentID == externalID {
				cp := p
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r paymentRepo) ListByUser(_ context.Context, userID string) ([]model.Payment, error) {
	out := []model.Payment{}
	err := r.run(func(st *state) error {
		for _, p := range st.payments {
			if p.UserID == userID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}
