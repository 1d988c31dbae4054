package usecase

import "time"

type MoneyResponse struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

type ConversionResponse struct {
	From        MoneyResponse `json:"from"`
	To          MoneyResponse `json:"to"`
	Rate        string        `json:"rate"`
	FetchedAt   time.Time     `json:"fetched_at"`
	Freshness   string        `json:"freshness"`
	Approximate bool          `json:"approximate"`
	Warning     string        `json:"warning,omitempty"`
}

type FormatResponse struct {
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

type CurrencyResponse struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

type FreshnessResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Rate       string    `json:"rate"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds int64     `json:"age_seconds"`
	Freshness  string    `json:"freshness"`
	RefreshDue bool      `json:"refresh_due"`
}

type RateResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rate      string    `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source,omitempty"`
}

type RefreshAllResponse struct {
	Refreshed int      `json:"refreshed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
