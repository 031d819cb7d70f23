package vbot

import "github.com/Jikima/VBot/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput   = domain.ErrInvalidInput
	ErrNotFound       = domain.ErrNotFound
	ErrNoAllowance    = domain.ErrNoAllowance
	ErrNotAllowed     = domain.ErrNotAllowed
	ErrBudgetExceeded = domain.ErrBudgetExceeded
)

// StorageError wraps a failed durable write. The in-memory ledger keeps
// the billed event even when the write behind it failed, so a receipt
// returned alongside a *StorageError is still valid.
// Use errors.As() to check.
type StorageError = domain.StorageError
