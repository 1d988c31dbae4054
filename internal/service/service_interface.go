package service

import (
	"context"

	"lifeos-currency/internal/entity"
)

// RateProvider fetches one ordered pair from an upstream source. A call is a
// single attempt; failures wrap entity.ErrProviderUnavailable.
type RateProvider interface {
	FetchRate(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error)
}
