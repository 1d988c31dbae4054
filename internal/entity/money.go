package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency CurrencyCode    `json:"currency"`
}

type SymbolPosition string

const (
	SymbolBefore SymbolPosition = "before"
	SymbolAfter  SymbolPosition = "after"
)

// DisplayOptions drives MoneyFormatter. When Locale is set the separators are
// taken from CLDR data for that locale instead of the explicit fields.
type DisplayOptions struct {
	SymbolPosition     SymbolPosition `mapstructure:"symbol_position"`
	SymbolSeparator    string         `mapstructure:"symbol_separator"`
	ThousandsSeparator string         `mapstructure:"thousands_separator"`
	DecimalSeparator   string         `mapstructure:"decimal_separator"`
	Locale             string         `mapstructure:"locale"`
}

func DefaultDisplayOptions() DisplayOptions {
	return DisplayOptions{
		SymbolPosition:     SymbolBefore,
		SymbolSeparator:    " ",
		ThousandsSeparator: ",",
		DecimalSeparator:   ".",
	}
}

// Conversion is the result of converting Source into the target currency.
// Approximate is set when a cached rate was used because a refresh failed;
// Warning then holds ErrStaleFallbackUsed.
type Conversion struct {
	Source      Money
	Result      Money
	Rate        decimal.Decimal
	FetchedAt   time.Time
	Freshness   FreshnessLevel
	Approximate bool
	Warning     error
}
