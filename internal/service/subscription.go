package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/payment"
	"github.com/fromscratch/identity/internal/queue"
	"github.com/fromscratch/identity/internal/repository"
)

const (
	// checkoutMonthDays is the length of one purchased month.
	checkoutMonthDays = 30
	maxCheckoutMonths = 36

	sessionPlaceholder = "session_id={CHECKOUT_SESSION_ID}"

	metaUserID  = "userId"
	metaPlanID  = "planId"
	metaEndDate = "endDate"
)

// isoMillis matches the metadata timestamp layout, e.g.
// 2026-01-30T12:00:00.000Z.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// SubscriptionService owns subscriptions and payments.
type SubscriptionService struct {
	store    repository.Store
	gateway  payment.Gateway
	events   queue.Publisher
	log      *zap.Logger
	currency string
	now      func() time.Time
}

func NewSubscriptionService(store repository.Store, gateway payment.Gateway, events queue.Publisher,
	log *zap.Logger, currency string) *SubscriptionService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &SubscriptionService{
		store:    store,
		gateway:  gateway,
		events:   events,
		log:      log,
		currency: strings.ToLower(currency),
		now:      time.Now,
	}
}

type SubscribeInput struct {
	UserID    string
	PlanID    string
	PaymentID *string
	EndDate   *time.Time
	AutoRenew bool
}

// Subscribe activates a plan for a user. Any subscription still active for
// the user is canceled in the same transaction, so at most one stays active.
func (s *SubscriptionService) Subscribe(ctx context.Context, in SubscribeInput) (*model.Subscription, error) {
	var (
		sub *model.Subscription
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
			var txErr error
			sub, txErr = s.subscribe(ctx, r, in)
			return txErr
		})
		// a concurrent subscribe activated a row between cancel and insert
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrSubscriptionConflict.Wrap(err)
	}
	if err != nil {
		return nil, internal(err)
	}
	s.emitActivated(ctx, sub)
	return sub, nil
}

func (s *SubscriptionService) subscribe(ctx context.Context, r repository.Repos, in SubscribeInput) (*model.Subscription, error) {
	plan, err := getPlan(ctx, r, in.PlanID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if _, err := r.Subscriptions.CancelActiveByUser(ctx, in.UserID, now); err != nil {
		return nil, err
	}
	sub := &model.Subscription{
		UserID:    in.UserID,
		PlanID:    plan.ID,
		Status:    model.SubscriptionActive,
		StartDate: now,
		EndDate:   in.EndDate,
		AutoRenew: in.AutoRenew,
		PaymentID: in.PaymentID,
	}
	if err := r.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}
	sub.Plan = plan
	return sub, nil
}

// SubscribeFree activates a free plan for a user. Paid plans are refused
// with ErrCheckoutRequired; they are only activated by ConfirmCheckout.
func (s *SubscriptionService) SubscribeFree(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	plan, err := getPlan(ctx, s.store.Repos(), planID)
	if err != nil {
		return nil, internal(err)
	}
	if !plan.IsFree() {
		return nil, ErrCheckoutRequired
	}
	return s.Subscribe(ctx, SubscribeInput{UserID: userID, PlanID: plan.ID, AutoRenew: true})
}

// Cancel ends the user's active subscription.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		cur, err := r.Subscriptions.GetActiveByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := r.Subscriptions.Cancel(ctx, cur.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNoActiveSubscription
			}
			return err
		}
		cur.Status = model.SubscriptionCanceled
		cur.AutoRenew = false
		cur.EndDate = &now
		if p, err := r.Plans.GetByID(ctx, cur.PlanID); err == nil {
			cur.Plan = p
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	emit(ctx, s.events, s.log, queue.Event{
		Type: queue.SubscriptionCanceled, UserID: sub.UserID,
		SubscriptionID: sub.ID, PlanID: sub.PlanID, EndDate: sub.EndDate,
	})
	return sub, nil
}

// Current returns the user's active subscription with its plan, or nil.
func (s *SubscriptionService) Current(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := currentSubscription(ctx, s.store.Repos(), userID)
	return sub, internal(err)
}

// PlanConfigForUser returns the capability grant of the user's active plan,
// or nil without one.
func (s *SubscriptionService) PlanConfigForUser(ctx context.Context, userID string) (*model.PlanConfig, error) {
	sub, err := s.Current(ctx, userID)
	if err != nil || sub == nil || sub.Plan == nil {
		return nil, err
	}
	cfg := sub.Plan.Config
	return &cfg, nil
}

// Payments lists the user's recorded payments, newest first.
func (s *SubscriptionService) Payments(ctx context.Context, userID string) ([]model.Payment, error) {
	list, err := s.store.Repos().Payments.ListByUser(ctx, userID)
	return list, internal(err)
}

func currentSubscription(ctx context.Context, r repository.Repos, userID string) (*model.Subscription, error) {
	sub, err := r.Subscriptions.GetActiveByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := r.Plans.GetByID(ctx, sub.PlanID)
	switch {
	case err == nil:
		sub.Plan = p
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return sub, nil
}

type CheckoutInput struct {
	UserID     string
	PlanID     string
	SuccessURL string
	CancelURL  string
	Months     int
}

// CheckoutResult is where to send the buyer. SessionID is nil when the plan
// was free and the subscription was activated directly.
type CheckoutResult struct {
	CheckoutURL  string
	SessionID    *string
	Subscription *model.Subscription
}

// CreateCheckoutSession starts a purchase of months of a plan. Free plans
// are activated immediately without contacting the gateway.
func (s *SubscriptionService) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if strings.TrimSpace(in.SuccessURL) == "" || strings.TrimSpace(in.CancelURL) == "" {
		return CheckoutResult{}, apperr.Validation("Please provide successUrl and cancelUrl")
	}
	if in.Months == 0 {
		in.Months = 1
	}
	if in.Months < 1 || in.Months > maxCheckoutMonths {
		return CheckoutResult{}, apperr.Validation(fmt.Sprintf("months must be between 1 and %d", maxCheckoutMonths))
	}

	plan, err := getPlan(ctx, s.store.Repos(), in.PlanID)
	if err != nil {
		return CheckoutResult{}, internal(err)
	}

	if plan.IsFree() {
		sub, err := s.Subscribe(ctx, SubscribeInput{UserID: in.UserID, PlanID: plan.ID, AutoRenew: true})
		if err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{CheckoutURL: in.SuccessURL, Subscription: sub}, nil
	}

	endDate := s.now().UTC().Add(time.Duration(in.Months*checkoutMonthDays) * 24 * time.Hour)
	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		ProductName:        plan.Name,
		ProductDescription: productDescription(plan),
		UnitAmount:         plan.PriceCents * int64(in.Months),
		Currency:           s.currency,
		SuccessURL:         withSessionPlaceholder(in.SuccessURL),
		CancelURL:          in.CancelURL,
		Metadata: map[string]string{
			metaUserID:  in.UserID,
			metaPlanID:  plan.ID,
			metaEndDate: endDate.Format(isoMillis),
		},
	})
	if err != nil {
		return CheckoutResult{}, internal(err)
	}
	id := sess.ID
	return CheckoutResult{CheckoutURL: sess.URL, SessionID: &id}, nil
}

// ConfirmResult is the outcome of ConfirmCheckout. Replayed is true when
// the session had already been confirmed and nothing new was written.
type ConfirmResult struct {
	Payment      *model.Payment
	Subscription *model.Subscription
	Replayed     bool
}

// ConfirmCheckout records the payment of a paid checkout session and
// activates the purchased plan, both in one transaction. Confirming the same
// session again returns the rows written the first time. callerID, when
// set, must match the session's buyer.
func (s *SubscriptionService) ConfirmCheckout(ctx context.Context, callerID, sessionID string) (ConfirmResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ConfirmResult{}, apperr.Validation("Missing sessionId")
	}
	d, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, internal(err)
	}

	userID, planID := d.Metadata[metaUserID], d.Metadata[metaPlanID]
	if userID == "" || planID == "" {
		return ConfirmResult{}, ErrMissingMetadata
	}
	raw := d.Metadata[metaEndDate]
	if raw == "" {
		return ConfirmResult{}, ErrMissingMetadata
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return ConfirmResult{}, ErrMissingMetadata.WithMessage("Malformed endDate in checkout session")
	}
	t = t.UTC()
	endDate := &t
	if callerID != "" && callerID != userID {
		return ConfirmResult{}, payment.ErrSessionNotFound
	}
	if !d.Paid {
		return ConfirmResult{}, ErrPaymentNotCompleted
	}

	var res ConfirmResult
	for attempt := 0; attempt < 2; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
			var txErr error
			res, txErr = s.confirm(ctx, r, d, userID, planID, endDate)
			return txErr
		})
		// a concurrent confirmation inserted the payment first
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return ConfirmResult{}, internal(err)
	}

	if !res.Replayed {
		p := res.Payment
		emit(ctx, s.events, s.log, queue.Event{
			Type: queue.PaymentRecorded, UserID: p.UserID, PaymentID: p.ID,
			AmountCents: p.AmountCents, Currency: p.Currency,
		})
		s.emitActivated(ctx, res.Subscription)
	}
	return res, nil
}

func (s *SubscriptionService) confirm(ctx context.Context, r repository.Repos, d payment.SessionDetails,
	userID, planID string, endDate *time.Time) (ConfirmResult, error) {
	existing, err := r.Payments.GetByExternalID(ctx, d.ID)
	if err == nil {
		sub, err := r.Subscriptions.GetByPaymentID(ctx, existing.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return ConfirmResult{}, err
		}
		if sub != nil {
			if p, err := r.Plans.GetByID(ctx, sub.PlanID); err == nil {
				sub.Plan = p
			}
		}
		return ConfirmResult{Payment: existing, Subscription: sub, Replayed: true}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return ConfirmResult{}, err
	}

	currency := strings.ToLower(d.Currency)
	if currency == "" {
		currency = s.currency
	}
	pay := &model.Payment{
		UserID:            userID,
		AmountCents:       d.AmountTotal,
		Currency:          currency,
		ExternalPaymentID: d.ID,
	}
	if err := r.Payments.Create(ctx, pay); err != nil {
		return ConfirmResult{}, err
	}
	payID := pay.ID
	sub, err := s.subscribe(ctx, r, SubscribeInput{
		UserID:    userID,
		PlanID:    planID,
		PaymentID: &payID,
		EndDate:   endDate,
		AutoRenew: true,
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Payment: pay, Subscription: sub}, nil
}

func (s *SubscriptionService) emitActivated(ctx context.Context, sub *model.Subscription) {
	ev := queue.Event{
		Type: queue.SubscriptionActivated, UserID: sub.UserID,
		SubscriptionID: sub.ID, PlanID: sub.PlanID, EndDate: sub.EndDate,
	}
	if sub.PaymentID != nil {
		ev.PaymentID = *sub.PaymentID
	}
	emit(ctx, s.events, s.log, ev)
}

// productDescription renders "29.00$ /month" followed by the plan's
// feature list.
func productDescription(p *model.SubscriptionPlan) string {
	head := fmt.Sprintf("%d.%02d$ /%s", p.PriceCents/100, p.PriceCents%100, p.BillingPeriod)
	return head + "\n\n" + strings.Join(p.Description, " - ")
}

// withSessionPlaceholder lets the gateway substitute the session id into
// the success URL.
func withSessionPlaceholder(u string) string {
	sep := "&"
	if !strings.Contains(u, "?") {
		sep = "?"
	}
	return u + sep + sessionPlaceholder
}
