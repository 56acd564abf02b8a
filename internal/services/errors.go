package services

import "errors"

// Outcomes of the account workflows. Every one is caller-visible; only
// ErrStoreUnavailable implies the operation had no effect.
var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrNotVerified        = errors.New("account is not verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrCodeMismatch       = errors.New("verification code is incorrect")
	ErrAlreadyVerified    = errors.New("account is already verified")
	ErrNotAccepting       = errors.New("user is not accepting messages")
	ErrInvalidMessage     = errors.New("message content is invalid")
	ErrDeliveryFailed     = errors.New("failed to deliver verification email")
	ErrStoreUnavailable   = errors.New("identity store unavailable")
	ErrSessionNotFound    = errors.New("session not found")
)
