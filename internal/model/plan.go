package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// SubscriptionPlan is a catalog entry in `subscription_plans`. Prices are
// kept in minor currency units to avoid float rounding; the table stores
// DECIMAL(10,2) major units.
type SubscriptionPlan struct {
	ID            string     // subscription_plans.id
	Name          string     // subscription_plans.name
	PriceCents    int64      // subscription_plans.price * 100
	OldPriceCents *int64     // subscription_plans.old_price * 100 (nullable)
	BillingPeriod string     // subscription_plans.billing_period, e.g. "month"
	Description   []string   // subscription_plans.description (JSON array)
	IsActive      bool       // subscription_plans.is_active
	IsPopular     bool       // subscription_plans.is_popular
	Config        PlanConfig // subscription_plans.config (JSON)
	CreatedAt     time.Time  // subscription_plans.created_at
}

// IsFree reports whether checkout can skip the payment gateway.
func (p *SubscriptionPlan) IsFree() bool { return p.PriceCents == 0 }

// PlanConfig is the capability grant attached to a plan.
type PlanConfig struct {
	Projects     int       `json:"nbrProjects"`
	AllowPages   PageGrant `json:"allowPages"`
	PDFExport    bool      `json:"pdfExport"`
	GitHubExport bool      `json:"githubExport"`
	ChatTokens   int       `json:"chatTokens"`
}

// PageGrant is either "all pages" (JSON true), "no pages" (JSON false) or an
// explicit list of page names.
type PageGrant struct {
	All   bool
	Pages []string
}

// Allows reports whether page is granted.
func (g PageGrant) Allows(page string) bool {
	if g.All {
		return true
	}
	for _, p := range g.Pages {
		if p == page {
			return true
		}
	}
	return false
}

func (g PageGrant) MarshalJSON() ([]byte, error) {
	if g.Pages == nil {
		return json.Marshal(g.All)
	}
	return json.Marshal(g.Pages)
}

func (g *PageGrant) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*g = PageGrant{}
		return nil
	}
	if b[0] == '[' {
		var pages []string
		if err := json.Unmarshal(b, &pages); err != nil {
			return err
		}
		*g = PageGrant{Pages: pages}
		return nil
	}
	var all bool
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	*g = PageGrant{All: all}
	return nil
}
