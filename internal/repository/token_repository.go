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

// ResetTokenRepo persists password reset tokens (`password_reset_tokens`).
type ResetTokenRepo struct{ db dbx.DBTX }

func NewResetTokenRepo(db dbx.DBTX) *ResetTokenRepo { return &ResetTokenRepo{db: db} }

// Create inserts a token row.
func (r *ResetTokenRepo) Create(ctx context.Context, t *model.PasswordResetToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, created_at) VALUES (?,?,?,?,?,?)",
		t.ID, t.UserID, t.Token, t.ExpiresAt.UTC(), t.Used, t.CreatedAt)
	if err != nil {
		if _, ok := duplicateKey(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByToken looks a token up by its opaque value.
func (r *ResetTokenRepo) GetByToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, used, created_at FROM password_reset_tokens WHERE token=? LIMIT 1",
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MarkUsed consumes the token if it has not been consumed yet.
func (r *ResetTokenRepo) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used=1 WHERE id=? AND used=0", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
