package domain

import "errors"

// Sentinel errors returned by the storage layer. The service layer maps
// them onto the apperror taxonomy; repositories stay free of HTTP concerns.
var (
	ErrInsufficientFunds       = errors.New("insufficient available balance")
	ErrInsufficientLockedFunds = errors.New("insufficient locked balance")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrVersionConflict         = errors.New("transaction version conflict")
)
