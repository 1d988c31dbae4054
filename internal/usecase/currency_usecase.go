package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"lifeos-currency/internal/entity"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var ErrInvalidInput = errors.New("invalid input")

var charCodeRegexp = regexp.MustCompile(`^[A-Z]{3}$`)

type CurrencyUsecase struct {
	service   CurrencyService
	formatter MoneyFormatter
	registry  *entity.Registry
	logger    *logrus.Logger
}

func NewCurrencyUsecase(service CurrencyService, formatter MoneyFormatter, registry *entity.Registry, logger *logrus.Logger) *CurrencyUsecase {
	return &CurrencyUsecase{
		service:   service,
		formatter: formatter,
		registry:  registry,
		logger:    logger,
	}
}

func parseCode(field, raw string) (entity.CurrencyCode, error) {
	code := entity.NormalizeCode(raw)
	if !charCodeRegexp.MatchString(string(code)) {
		return "", fmt.Errorf("%w: '%s' must be a 3-letter currency code, got %q", ErrInvalidInput, field, raw)
	}
	return code, nil
}

func parsePair(from, to string) (entity.CurrencyCode, entity.CurrencyCode, error) {
	fromCode, err := parseCode("from", from)
	if err != nil {
		return "", "", err
	}
	toCode, err := parseCode("to", to)
	if err != nil {
		return "", "", err
	}
	return fromCode, toCode, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: 'amount' is required", ErrInvalidInput)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: 'amount' must be a decimal number, got %q", ErrInvalidInput, raw)
	}
	return amount, nil
}

// displayAmount pads to the currency's decimals but never hides extra precision.
func (uc *CurrencyUsecase) displayAmount(amount decimal.Decimal, code entity.CurrencyCode) string {
	currency, err := uc.registry.Lookup(code)
	if err != nil || !amount.Equal(amount.Round(currency.Decimals)) {
		return amount.String()
	}
	return amount.StringFixed(currency.Decimals)
}

func (uc *CurrencyUsecase) money(m entity.Money) MoneyResponse {
	formatted, err := uc.formatter.Format(m.Amount, m.Currency)
	if err != nil {
		uc.logger.WithError(err).Warnf("Failed to format %s %s", m.Amount, m.Currency)
	}
	return MoneyResponse{
		Amount:    uc.displayAmount(m.Amount, m.Currency),
		Currency:  m.Currency.String(),
		Formatted: formatted,
	}
}

func (uc *CurrencyUsecase) Convert(ctx context.Context, from, to, amount string) (*ConversionResponse, error) {
	fromCode, toCode, err := parsePair(from, to)
	if err != nil {
		uc.logger.WithError(err).Debug("Rejected conversion request")
		return nil, err
	}

	value := decimal.NewFromInt(1)
	if amount != "" {
		if value, err = parseAmount(amount); err != nil {
			return nil, err
		}
	}

	conversion, err := uc.service.Convert(ctx, value, fromCode, toCode)
	if err != nil {
		uc.logger.WithError(err).Errorf("Failed to convert %s %s to %s", value, fromCode, toCode)
		return nil, err
	}

	resp := &ConversionResponse{
		From:        uc.money(conversion.Source),
		To:          uc.money(conversion.Result),
		Rate:        conversion.Rate.String(),
		FetchedAt:   conversion.FetchedAt,
		Freshness:   conversion.Freshness.String(),
		Approximate: conversion.Approximate,
	}
	if conversion.Warning != nil {
		resp.Warning = conversion.Warning.Error()
	}

	uc.logger.Debugf("Converted %s %s to %s %s", resp.From.Amount, fromCode, resp.To.Amount, toCode)
	return resp, nil
}

func (uc *CurrencyUsecase) Format(ctx context.Context, currency, amount string) (*FormatResponse, error) {
	code, err := parseCode("currency", currency)
	if err != nil {
		return nil, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	formatted, err := uc.formatter.Format(value, code)
	if err != nil {
		return nil, err
	}

	return &FormatResponse{
		Currency:  code.String(),
		Amount:    value.String(),
		Formatted: formatted,
	}, nil
}

func (uc *CurrencyUsecase) Currencies(ctx context.Context) []CurrencyResponse {
	currencies := uc.registry.Currencies()
	result := make([]CurrencyResponse, 0, len(currencies))
	for _, c := range currencies {
		result = append(result, CurrencyResponse{
			Code:     c.Code.String(),
			Name:     c.Name,
			Symbol:   c.Symbol,
			Decimals: c.Decimals,
		})
	}
	return result
}

func toFreshnessResponse(status entity.RateStatus) FreshnessResponse {
	return FreshnessResponse{
		From:       status.Pair.From.String(),
		To:         status.Pair.To.String(),
		Rate:       status.Rate.String(),
		FetchedAt:  status.FetchedAt,
		AgeSeconds: status.AgeSeconds,
		Freshness:  status.Level.String(),
		RefreshDue: status.RefreshDue,
	}
}

func (uc *CurrencyUsecase) Freshness(ctx context.Context, from, to string) (*FreshnessResponse, error) {
	fromCode, toCode, err := parsePair(from, to)
	if err != nil {
		return nil, err
	}

	status, err := uc.service.Freshness(ctx, fromCode, toCode)
	if err != nil {
		uc.logger.WithError(err).Debugf("No freshness for %s/%s", fromCode, toCode)
		return nil, err
	}

	resp := toFreshnessResponse(*status)
	return &resp, nil
}

func (uc *CurrencyUsecase) Refresh(ctx context.Context, from, to string) (*RateResponse, error) {
	fromCode, toCode, err := parsePair(from, to)
	if err != nil {
		return nil, err
	}

	rate, err := uc.service.Refresh(ctx, fromCode, toCode)
	if err != nil {
		uc.logger.WithError(err).Errorf("Manual refresh of %s/%s failed", fromCode, toCode)
		return nil, err
	}

	uc.logger.Infof("Manually refreshed %s: %s", rate.Pair(), rate.Rate)
	return &RateResponse{
		From:      rate.From.String(),
		To:        rate.To.String(),
		Rate:      rate.Rate.String(),
		FetchedAt: rate.FetchedAt,
		Source:    rate.Source,
	}, nil
}

// RefreshAll reports per-pair provider failures in the response; any other
// failure aborts with an error.
func (uc *CurrencyUsecase) RefreshAll(ctx context.Context) (*RefreshAllResponse, error) {
	refreshed, err := uc.service.RefreshAll(ctx)

	resp := &RefreshAllResponse{Refreshed: refreshed}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, entity.ErrProviderUnavailable) {
			uc.logger.WithError(err).Error("Refreshing cached rates failed")
			return nil, err
		}
		resp.Errors = append(resp.Errors, e.Error())
	}
	resp.Failed = len(resp.Errors)

	return resp, nil
}

func (uc *CurrencyUsecase) CachedRates(ctx context.Context) ([]FreshnessResponse, error) {
	statuses, err := uc.service.CachedRates(ctx)
	if err != nil {
		uc.logger.WithError(err).Error("Failed to list cached rates")
		return nil, err
	}

	result := make([]FreshnessResponse, 0, len(statuses))
	for _, status := range statuses {
		result = append(result, toFreshnessResponse(status))
	}
	return result, nil
}
