package domain

import "errors"

// Sentinel errors shared across the ledger, gate and transport layers.
// Callers match them with errors.Is.
var (
	// ErrInvalidInput rejects an event before any aggregate mutation
	// (unknown image tier, negative quantity, unknown event kind).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates no durable record exists for an identity.
	ErrNotFound = errors.New("ledger record not found")

	// ErrMalformedRecord indicates a durable record exists but cannot be
	// decoded. The registry treats it like an absent record.
	ErrMalformedRecord = errors.New("ledger record malformed")

	// ErrNoAllowance indicates an identity outside the allow-list asked for
	// budget outside a group context, where no guest pool applies.
	ErrNoAllowance = errors.New("identity has no allowance")

	// ErrNotAllowed rejects relayed requests from identities the allow-list
	// does not admit.
	ErrNotAllowed = errors.New("identity not allowed")

	// ErrBudgetExceeded rejects a relayed request once the identity's
	// remaining budget reaches zero.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrProviderError marks failures returned by the model provider.
	ErrProviderError = errors.New("model provider error")

	// ErrNotImplemented marks endpoints whose provider is not configured.
	ErrNotImplemented = errors.New("not implemented")
)

// GuestIdentity is the shared ledger billed for group-chat traffic from
// identities outside the allow-list.
const GuestIdentity = "guests"

// GuestDisplayName labels the shared guest ledger.
const GuestDisplayName = "all guest users in group chats"

// StorageError wraps a failed durable-storage operation. The in-memory
// ledger keeps its mutation even when the write behind it failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }
