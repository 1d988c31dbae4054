package ratecache

import (
	"context"
	"errors"

	"lifeos-currency/internal/entity"
)

var ErrNotFound = errors.New("rate not cached")

// RateCache holds the last fetched rate per ordered currency pair.
// Entries are overwritten on every Put and never evicted.
type RateCache interface {
	Get(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error)
	Put(ctx context.Context, rate entity.ExchangeRate) error
	List(ctx context.Context) ([]entity.ExchangeRate, error)
}
