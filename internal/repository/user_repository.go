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

const userColumns = "id,email,first_name,last_name,password_hash,provider,provider_id,created_at"

// UserRepo stores users in the `users` table.
type UserRepo struct{ db dbx.DBTX }

func NewUserRepo(db dbx.DBTX) *UserRepo { return &UserRepo{db: db} }

// Create inserts u, assigning ID and CreatedAt when empty. A violated email
// key yields ErrEmailExists; a violated provider key yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?)",
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Provider), u.ProviderID, u.CreatedAt)
	if err != nil {
		if key, ok := duplicateKey(err); ok {
			if key == "uq_users_email" {
				return ErrEmailExists
			}
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByProvider fetches the user linked to an external identity.
func (r *UserRepo) GetByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	return r.getOne(ctx,
		"SELECT "+userColumns+" FROM users WHERE provider=? AND provider_id=? LIMIT 1",
		string(provider), providerID)
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// LinkProvider attaches an external identity to an existing user.
func (r *UserRepo) LinkProvider(ctx context.Context, id string, provider model.Provider, providerID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET provider=?, provider_id=? WHERE id=?",
		string(provider), providerID, id)
	if err != nil {
		if _, ok := duplicateKey(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return requireAffected(res)
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	var (
		u          model.User
		hash       sql.NullString
		provider   string
		providerID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &hash, &provider, &providerID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Provider = model.Provider(provider)
	if hash.Valid {
		h := hash.String
		u.PasswordHash = &h
	}
	if providerID.Valid {
		p := providerID.String
		u.ProviderID = &p
	}
	return &u, nil
}

// requireAffected maps a zero-row update to ErrNotFound. MySQL reports rows
// changed rather than matched, so the DSN sets clientFoundRows=true.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
