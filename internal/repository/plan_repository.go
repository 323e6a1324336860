package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fromscratch/identity/internal/dbx"
	"github.com/fromscratch/identity/internal/model"
)

// Prices are DECIMAL(10,2) in the table and minor units in Go.
const planColumns = `id, name, CAST(ROUND(price*100) AS SIGNED), CAST(ROUND(old_price*100) AS SIGNED),
	billing_period, description, is_active, is_popular, config, created_at`

// PlanRepo reads and seeds `subscription_plans`.
type PlanRepo struct{ db dbx.DBTX }

func NewPlanRepo(db dbx.DBTX) *PlanRepo { return &PlanRepo{db: db} }

// ListActive returns active plans ordered by ascending price.
func (r *PlanRepo) ListActive(ctx context.Context) ([]model.SubscriptionPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+planColumns+" FROM subscription_plans WHERE is_active=1 ORDER BY price ASC, name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []model.SubscriptionPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// GetByID fetches a plan regardless of its active flag.
func (r *PlanRepo) GetByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM subscription_plans WHERE id=? LIMIT 1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpsertByName updates the plan with the same name or inserts a new one.
// p.ID is set to the stored row's id.
func (r *PlanRepo) UpsertByName(ctx context.Context, p *model.SubscriptionPlan) (bool, error) {
	desc, err := json.Marshal(nonNilStrings(p.Description))
	if err != nil {
		return false, fmt.Errorf("encode description: %w", err)
	}
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return false, fmt.Errorf("encode config: %w", err)
	}
	var oldPrice any
	if p.OldPriceCents != nil {
		oldPrice = centsToDecimal(*p.OldPriceCents)
	}

	var existingID string
	err = r.db.QueryRowContext(ctx, "SELECT id FROM subscription_plans WHERE name=? LIMIT 1", p.Name).Scan(&existingID)
	switch {
	case err == nil:
		p.ID = existingID
		_, err = r.db.ExecContext(ctx,
			`UPDATE subscription_plans SET price=?, old_price=?, billing_period=?, description=?,
			 is_active=?, is_popular=?, config=? WHERE id=?`,
			centsToDecimal(p.PriceCents), oldPrice, p.BillingPeriod, desc, p.IsActive, p.IsPopular, cfg, p.ID)
		return false, err
	case errors.Is(err, sql.ErrNoRows):
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO subscription_plans (id, name, price, old_price, billing_period, description,
			 is_active, is_popular, config, created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			p.ID, p.Name, centsToDecimal(p.PriceCents), oldPrice, p.BillingPeriod, desc,
			p.IsActive, p.IsPopular, cfg, p.CreatedAt)
		return err == nil, err
	default:
		return false, err
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*model.SubscriptionPlan, error) {
	var (
		p        model.SubscriptionPlan
		oldPrice sql.NullInt64
		desc     []byte
		cfg      []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &oldPrice, &p.BillingPeriod,
		&desc, &p.IsActive, &p.IsPopular, &cfg, &p.CreatedAt); err != nil {
		return nil, err
	}
	if oldPrice.Valid {
		v := oldPrice.Int64
		p.OldPriceCents = &v
	}
	if len(desc) > 0 {
		if err := json.Unmarshal(desc, &p.Description); err != nil {
			return nil, fmt.Errorf("decode plan %s description: %w", p.ID, err)
		}
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &p.Config); err != nil {
			return nil, fmt.Errorf("decode plan %s config: %w", p.ID, err)
		}
	}
	return &p, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// centsToDecimal renders minor units as a DECIMAL literal, e.g. 2900 -> "29.00".
func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
