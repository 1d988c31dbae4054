package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeRate struct {
	From      CurrencyCode    `json:"from"`
	To        CurrencyCode    `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
	// StoredAt is the local time the rate was written to the cache. FetchedAt
	// may be the provider's publication time.
	StoredAt  time.Time       `json:"stored_at,omitzero"`
	Source    string          `json:"source,omitempty"`
}

func (r ExchangeRate) Pair() CurrencyPair {
	return CurrencyPair{From: r.From, To: r.To}
}

func (r ExchangeRate) Validate() error {
	if r.From == "" || r.To == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidRate)
	}
	if !r.Rate.IsPositive() {
		return fmt.Errorf("%w: rate %s for %s must be positive", ErrInvalidRate, r.Rate, r.Pair())
	}
	if r.FetchedAt.IsZero() {
		return fmt.Errorf("%w: missing fetch time for %s", ErrInvalidRate, r.Pair())
	}
	return nil
}

// RateCacheEntry is a cached rate with its ages computed at read time.
// AgeSeconds counts from FetchedAt, StoredAgeSeconds from StoredAt (or
// FetchedAt for entries written without a store time).
type RateCacheEntry struct {
	Rate             ExchangeRate
	AgeSeconds       int64
	StoredAgeSeconds int64
}

func NewRateCacheEntry(rate ExchangeRate, now time.Time) RateCacheEntry {
	storedAt := rate.StoredAt
	if storedAt.IsZero() {
		storedAt = rate.FetchedAt
	}
	return RateCacheEntry{
		Rate:             rate,
		AgeSeconds:       AgeSeconds(rate.FetchedAt, now),
		StoredAgeSeconds: AgeSeconds(storedAt, now),
	}
}

// AgeSeconds is now - fetchedAt in whole seconds, clamped to 0 on clock skew.
func AgeSeconds(fetchedAt, now time.Time) int64 {
	age := int64(now.Sub(fetchedAt) / time.Second)
	if age < 0 {
		return 0
	}
	return age
}

type RateStatus struct {
	Pair       CurrencyPair    `json:"pair"`
	Rate       decimal.Decimal `json:"rate"`
	FetchedAt  time.Time       `json:"fetched_at"`
	AgeSeconds int64           `json:"age_seconds"`
	Level      FreshnessLevel  `json:"level"`
	RefreshDue bool            `json:"refresh_due"`
}
