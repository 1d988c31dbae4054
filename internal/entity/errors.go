package entity

import "errors"

var (
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrProviderUnavailable = errors.New("exchange rate provider unavailable")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	ErrInvalidRate         = errors.New("invalid exchange rate")

	// ErrStaleFallbackUsed is a warning, not a failure: the conversion succeeded
	// with a cached rate because the refresh failed.
	ErrStaleFallbackUsed = errors.New("stale exchange rate used as fallback")
)
