package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fromscratch/identity/internal/dbx"
	"github.com/fromscratch/identity/internal/model"
)

const paymentColumns = "id, user_id, CAST(ROUND(amount*100) AS SIGNED), currency, external_payment_id, created_at"

// PaymentRepo persists `payments`. external_payment_id is unique, which
// makes checkout confirmation idempotent per gateway session.
type PaymentRepo struct{ db dbx.DBTX }

func NewPaymentRepo(db dbx.DBTX) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts p; a repeated external id yields ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO payments (id, user_id, amount, currency, external_payment_id, created_at) VALUES (?,?,?,?,?,?)",
		p.ID, p.UserID, centsToDecimal(p.AmountCents), p.Currency, p.ExternalPaymentID, p.CreatedAt)
	if err != nil {
		if _, ok := duplicateKey(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByExternalID fetches the payment recorded for a gateway session.
func (r *PaymentRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE external_payment_id=? LIMIT 1", externalID).
		Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Currency, &p.ExternalPaymentID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByUser returns a user's payments, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID string) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id=? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Payment{}
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Currency, &p.ExternalPaymentID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
