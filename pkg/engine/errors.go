package engine

import "errors"

var (
	// ErrCredentialMissing is returned when a pairing has no access token (or no connection at all)
	ErrCredentialMissing = errors.New("credential missing")

	// ErrCredentialExpired is returned when the access token expired and no refresh token is stored
	ErrCredentialExpired = errors.New("credential expired")

	// ErrSecretWriteFailed is returned when the secret store rejects a write
	ErrSecretWriteFailed = errors.New("secret write failed")

	// ErrConflictAlreadyResolved is returned when resolving a conflict that is not unresolved
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")

	// ErrRetryExhausted marks a retry job that used all of its attempts
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrNoConnectedProvider is reported when ledger sync finds no usable connection
	ErrNoConnectedProvider = errors.New("no connected provider")

	// ErrAccountLabelRequired is returned when saving credentials without an account label
	ErrAccountLabelRequired = errors.New("account label is required")

	// ErrConflictNotFound is returned for an unknown conflict id
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrWebhookEventNotFound is returned for an unknown webhook event id
	ErrWebhookEventNotFound = errors.New("webhook event not found")

	// ErrWebhookEventTerminal is returned when moving a webhook event out of a terminal state
	ErrWebhookEventTerminal = errors.New("webhook event already in a terminal state")

	// ErrUnknownResolution is returned for a resolution other than keep_local or accept_remote
	ErrUnknownResolution = errors.New("unknown conflict resolution")

	// ErrInvalidLedgerEvent is returned when a recorded ledger event is missing its item or type
	ErrInvalidLedgerEvent = errors.New("invalid ledger event")
)
