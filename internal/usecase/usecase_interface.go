package usecase

import (
	"context"

	"lifeos-currency/internal/entity"

	"github.com/shopspring/decimal"
)

type RateUsecase interface {
	Convert(ctx context.Context, from, to, amount string) (*ConversionResponse, error)
	Format(ctx context.Context, currency, amount string) (*FormatResponse, error)
	Currencies(ctx context.Context) []CurrencyResponse
	Freshness(ctx context.Context, from, to string) (*FreshnessResponse, error)
	Refresh(ctx context.Context, from, to string) (*RateResponse, error)
	RefreshAll(ctx context.Context) (*RefreshAllResponse, error)
	CachedRates(ctx context.Context) ([]FreshnessResponse, error)
}

type CurrencyService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to entity.CurrencyCode) (*entity.Conversion, error)
	Freshness(ctx context.Context, from, to entity.CurrencyCode) (*entity.RateStatus, error)
	Refresh(ctx context.Context, from, to entity.CurrencyCode) (*entity.ExchangeRate, error)
	RefreshAll(ctx context.Context) (int, error)
	CachedRates(ctx context.Context) ([]entity.RateStatus, error)
}

type MoneyFormatter interface {
	Format(amount decimal.Decimal, code entity.CurrencyCode) (string, error)
}
