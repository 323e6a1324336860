// Package service holds the identity and subscription orchestrators. Every
// failure leaving this package is an *apperr.Error from the list below or
// from the oauth and payment packages.
package service

import "github.com/fromscratch/identity/internal/apperr"

var (
	ErrEmailInUse            = apperr.New(apperr.Conflict, "email_in_use", "Email is already in use")
	ErrInvalidCredentials    = apperr.New(apperr.InvalidCredentials, "invalid_credentials", "Invalid credentials")
	ErrAccountCollision      = apperr.New(apperr.Conflict, "account_collision", "An account with this email already exists")
	ErrMissingProviderID     = apperr.New(apperr.ValidationFailure, "missing_provider_id", "OAuth user is missing a provider id")
	ErrEmailRequired         = apperr.New(apperr.ValidationFailure, "email_required", "Email is required to create an account")
	ErrInvalidOrExpiredToken = apperr.New(apperr.InvalidOrExpiredToken, "invalid_or_expired_token", "Invalid or expired reset token")
	ErrUserNotFound          = apperr.New(apperr.NotFound, "user_not_found", "User not found")
	ErrNotAvailable          = apperr.New(apperr.ValidationFailure, "password_change_not_available", "Password change is not available for this account")
	ErrIncorrectPassword     = apperr.New(apperr.InvalidCredentials, "incorrect_password", "Current password is incorrect")
	ErrMailDelivery          = apperr.New(apperr.Internal, "mail_delivery_failed", "Could not send the email, try again later")

	ErrPlanNotFound         = apperr.New(apperr.NotFound, "plan_not_found", "Subscription plan not found")
	ErrNoActiveSubscription = apperr.New(apperr.NotFound, "no_active_subscription", "No active subscription")
	ErrMissingMetadata      = apperr.New(apperr.ValidationFailure, "missing_metadata", "Missing metadata in checkout session")
	ErrPaymentNotCompleted  = apperr.New(apperr.ValidationFailure, "payment_not_completed", "Checkout session has not been paid")
	ErrCheckoutRequired     = apperr.New(apperr.Conflict, "checkout_required", "Paid plans must be purchased through checkout")
	ErrSubscriptionConflict = apperr.New(apperr.Conflict, "subscription_conflict", "Another subscription change is in progress, try again")

	ErrInternal = apperr.New(apperr.Internal, "internal_error", "Internal server error")
)

// internal wraps an unexpected failure (store, hashing, signing) so the
// boundary reports a generic 500 while logs keep the cause.
func internal(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return ErrInternal.Wrap(err)
}
