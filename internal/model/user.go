package model

import "time"

// Provider names the credential source a user signs in with.
type Provider string

const (
	ProviderCredentials Provider = "credentials"
	ProviderGoogle      Provider = "google"
	ProviderGitHub      Provider = "github"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderCredentials, ProviderGoogle, ProviderGitHub:
		return true
	}
	return false
}

// User represents an identity record as stored in the `users` table.
// Exactly one row exists per email and per (provider, provider_id) pair.
// PasswordHash is set only for credentials accounts and ProviderID only for
// OAuth accounts.
type User struct {
	ID           string    // users.id
	Email        string    // users.email
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	PasswordHash *string   // users.password_hash (nullable)
	Provider     Provider  // users.provider
	ProviderID   *string   // users.provider_id (nullable)
	CreatedAt    time.Time // users.created_at
}

// UsesPassword reports whether the account signs in with email+password.
func (u *User) UsesPassword() bool {
	return u.Provider == ProviderCredentials && u.PasswordHash != nil && *u.PasswordHash != ""
}

// PasswordResetToken models a row in `password_reset_tokens`. A token is
// honored only while Used is false and ExpiresAt is in the future.
type PasswordResetToken struct {
	ID        string    // password_reset_tokens.id
	UserID    string    // password_reset_tokens.user_id
	Token     string    // password_reset_tokens.token (unique)
	ExpiresAt time.Time // password_reset_tokens.expires_at
	Used      bool      // password_reset_tokens.used
	CreatedAt time.Time // password_reset_tokens.created_at
}

// Usable reports whether the token may still be consumed at now.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
