package entity

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/text/currency"
)

const maxDecimals = 8

func DefaultCurrencies() []Currency {
	return []Currency{
		{Code: "MKD", Name: "Macedonian Denar", Symbol: "ден", Decimals: 2},
		{Code: "USD", Name: "US Dollar", Symbol: "$", Decimals: 2},
		{Code: "EUR", Name: "Euro", Symbol: "€", Decimals: 2},
		{Code: "GBP", Name: "British Pound", Symbol: "£", Decimals: 2},
		{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$", Decimals: 2},
		{Code: "AUD", Name: "Australian Dollar", Symbol: "A$", Decimals: 2},
		{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Decimals: 0},
		{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF", Decimals: 2},
		{Code: "RSD", Name: "Serbian Dinar", Symbol: "дин.", Decimals: 2},
		{Code: "BGN", Name: "Bulgarian Lev", Symbol: "лв", Decimals: 2},
	}
}

// Registry is the immutable set of supported currencies.
type Registry struct {
	currencies map[CurrencyCode]Currency
	codes      []CurrencyCode
}

// NewRegistry validates every entry and reports all problems at once.
func NewRegistry(currencies []Currency) (*Registry, error) {
	if len(currencies) == 0 {
		return nil, fmt.Errorf("currency registry is empty")
	}

	r := &Registry{
		currencies: make(map[CurrencyCode]Currency, len(currencies)),
	}

	var errs error
	for _, c := range currencies {
		c.Code = NormalizeCode(string(c.Code))

		if len(c.Code) != 3 {
			errs = multierr.Append(errs, fmt.Errorf("currency %q: code must have 3 letters", c.Code))
			continue
		}
		if _, err := currency.ParseISO(string(c.Code)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("currency %q: not an ISO 4217 code: %w", c.Code, err))
			continue
		}
		if c.Decimals < 0 || c.Decimals > maxDecimals {
			errs = multierr.Append(errs, fmt.Errorf("currency %q: decimals must be between 0 and %d", c.Code, maxDecimals))
			continue
		}
		if c.Symbol == "" {
			errs = multierr.Append(errs, fmt.Errorf("currency %q: symbol is required", c.Code))
			continue
		}
		if _, dup := r.currencies[c.Code]; dup {
			errs = multierr.Append(errs, fmt.Errorf("currency %q: duplicate entry", c.Code))
			continue
		}
		if c.Name == "" {
			c.Name = string(c.Code)
		}

		r.currencies[c.Code] = c
		r.codes = append(r.codes, c.Code)
	}

	if errs != nil {
		return nil, errs
	}

	sort.Slice(r.codes, func(i, j int) bool { return r.codes[i] < r.codes[j] })
	return r, nil
}

func (r *Registry) Lookup(code CurrencyCode) (Currency, error) {
	c, ok := r.currencies[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

func (r *Registry) Supports(code CurrencyCode) bool {
	_, ok := r.currencies[code]
	return ok
}

// Codes returns the supported codes in alphabetical order.
func (r *Registry) Codes() []CurrencyCode {
	out := make([]CurrencyCode, len(r.codes))
	copy(out, r.codes)
	return out
}

func (r *Registry) Currencies() []Currency {
	out := make([]Currency, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, r.currencies[code])
	}
	return out
}
