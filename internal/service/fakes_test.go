package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fromscratch/identity/internal/mail"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/payment"
	"github.com/fromscratch/identity/internal/queue"
	"github.com/fromscratch/identity/internal/repository/memory"
	"github.com/fromscratch/identity/internal/utils"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	created   []payment.CheckoutRequest
	sessions  map[string]payment.SessionDetails
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]payment.SessionDetails{}}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.CheckoutSession{}, g.createErr
	}
	g.created = append(g.created, req)
	return payment.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (payment.SessionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.sessions[id]
	if !ok {
		return payment.SessionDetails{}, payment.ErrSessionNotFound
	}
	return d, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store  *memory.Store
	tokens *utils.TokenService
	mailer *fakeMailer
	gw     *fakeGateway
	events *recordingPublisher
	auth   *AuthService
	subs   *SubscriptionService
	plans  *PlanService
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := utils.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	f := &fixture{
		store:  memory.New(),
		tokens: tokens,
		mailer: &fakeMailer{},
		gw:     newFakeGateway(),
		events: &recordingPublisher{},
		clock:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	log := zap.NewNop()
	f.auth = NewAuthService(f.store, utils.NewHasher(bcrypt.MinCost), tokens, f.mailer, f.events, log,
		AuthConfig{FrontendOrigin: "https://app.example"})
	f.subs = NewSubscriptionService(f.store, f.gw, f.events, log, "usd")
	f.plans = NewPlanService(f.store, log)

	now := func() time.Time { return f.clock }
	f.auth.now = now
	f.subs.now = now
	return f
}

func (f *fixture) seedPlan(t *testing.T, name string, cents int64) *model.SubscriptionPlan {
	t.Helper()
	p := &model.SubscriptionPlan{
		Name:          name,
		PriceCents:    cents,
		BillingPeriod: "month",
		Description:   []string{"Unlimited projects", "PDF export"},
		IsActive:      true,
		Config:        model.PlanConfig{Projects: 10, PDFExport: true},
	}
	_, err := f.store.Repos().Plans.UpsertByName(context.Background(), p)
	require.NoError(t, err)
	return p
}

func (f *fixture) register(t *testing.T, email, password string) *model.User {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterInput{Email: email, Password: password, FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	return s.User
}

var errBoom = errors.New("boom")
