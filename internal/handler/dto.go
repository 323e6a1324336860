package handler

import (
	"time"

	"github.com/fromscratch/identity/internal/model"
)

// Response shapes. Secrets (password hashes, reset tokens) never leave the
// service; prices are rendered in major units next to the stored cents.

type userDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUser(u *model.User) *userDTO {
	if u == nil {
		return nil
	}
	return &userDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Provider:  string(u.Provider),
		CreatedAt: u.CreatedAt,
	}
}

type planDTO struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         float64          `json:"price"`
	PriceCents    int64            `json:"priceCents"`
	OldPrice      *float64         `json:"oldPrice"`
	BillingPeriod string           `json:"billingPeriod"`
	Description   []string         `json:"description"`
	IsPopular     bool             `json:"isPopular"`
	Config        model.PlanConfig `json:"config"`
}

func toPlan(p *model.SubscriptionPlan) *planDTO {
	if p == nil {
		return nil
	}
	d := &planDTO{
		ID:            p.ID,
		Name:          p.Name,
		Price:         major(p.PriceCents),
		PriceCents:    p.PriceCents,
		BillingPeriod: p.BillingPeriod,
		Description:   p.Description,
		IsPopular:     p.IsPopular,
		Config:        p.Config,
	}
	if d.Description == nil {
		d.Description = []string{}
	}
	if p.OldPriceCents != nil {
		old := major(*p.OldPriceCents)
		d.OldPrice = &old
	}
	return d
}

func toPlans(ps []model.SubscriptionPlan) []*planDTO {
	out := make([]*planDTO, 0, len(ps))
	for i := range ps {
		out = append(out, toPlan(&ps[i]))
	}
	return out
}

type subscriptionDTO struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	PlanID    string     `json:"planId"`
	Status    string     `json:"status"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	AutoRenew bool       `json:"autoRenew"`
	PaymentID *string    `json:"paymentId"`
	Plan      *planDTO   `json:"plan,omitempty"`
}

func toSubscription(s *model.Subscription) *subscriptionDTO {
	if s == nil {
		return nil
	}
	return &subscriptionDTO{
		ID:        s.ID,
		UserID:    s.UserID,
		PlanID:    s.PlanID,
		Status:    string(s.Status),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		AutoRenew: s.AutoRenew,
		PaymentID: s.PaymentID,
		Plan:      toPlan(s.Plan),
	}
}

type paymentDTO struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Amount            float64   `json:"amount"`
	AmountCents       int64     `json:"amountCents"`
	Currency          string    `json:"currency"`
	ExternalPaymentID string    `json:"externalPaymentId"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toPayment(p *model.Payment) *paymentDTO {
	if p == nil {
		return nil
	}
	return &paymentDTO{
		ID:                p.ID,
		UserID:            p.UserID,
		Amount:            major(p.AmountCents),
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		ExternalPaymentID: p.ExternalPaymentID,
		CreatedAt:         p.CreatedAt,
	}
}

func major(cents int64) float64 { return float64(cents) / 100 }
