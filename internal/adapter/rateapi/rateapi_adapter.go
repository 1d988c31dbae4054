package rateapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lifeos-currency/internal/entity"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	Source         = "rateapi"
	DefaultBaseURL = "https://api.exchangerate.host"

	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL      string
	URLTemplate  string
	APIKey       string
	APIKeyHeader string
	// RatePath is a dotted path into the JSON body, e.g. "rates.{to}".
	RatePath      string
	TimestampPath string
	Timeout       time.Duration
}

// Client fetches a single ordered pair from a JSON rate API. It makes exactly
// one request per call and never retries.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logrus.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Client) FetchRate(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	rate, err := c.fetch(ctx, pair)
	if err != nil {
		c.logger.WithError(err).WithField("pair", pair.String()).Warn("Rate API request failed")
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrProviderUnavailable, pair, err)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	reqURL := c.buildURL(pair)
	c.logger.WithField("pair", pair.String()).Debugf("Fetching rate from %s", redact(reqURL, c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKeyHeader != "" && c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	decoder.UseNumber()

	var body any
	if err := decoder.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	value, err := c.extractRate(body, pair)
	if err != nil {
		return nil, err
	}

	rate := &entity.ExchangeRate{
		From:      pair.From,
		To:        pair.To,
		Rate:      value,
		FetchedAt: c.extractTimestamp(body, pair),
		Source:    Source,
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"pair": pair.String(),
		"rate": rate.Rate.String(),
	}).Info("Fetched exchange rate")

	return rate, nil
}

func (c *Client) buildURL(pair entity.CurrencyPair) string {
	return strings.NewReplacer(
		"{base_url}", strings.TrimRight(c.cfg.BaseURL, "/"),
		"{from}", url.QueryEscape(pair.From.String()),
		"{to}", url.QueryEscape(pair.To.String()),
		"{api_key}", url.QueryEscape(c.cfg.APIKey),
	).Replace(c.cfg.URLTemplate)
}

func expandPath(path string, pair entity.CurrencyPair) string {
	return strings.NewReplacer("{from}", pair.From.String(), "{to}", pair.To.String()).Replace(path)
}

func (c *Client) extractRate(body any, pair entity.CurrencyPair) (decimal.Decimal, error) {
	path := expandPath(c.cfg.RatePath, pair)

	raw, err := lookup(body, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate for %s: %w", pair, err)
	}

	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return decimal.Zero, fmt.Errorf("rate at %q is %T, not a number", path, raw)
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", text, err)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate %s for %s", entity.ErrInvalidRate, value, pair)
	}

	return value, nil
}

// extractTimestamp returns the provider's timestamp when one is configured and
// readable, otherwise the local fetch time.
func (c *Client) extractTimestamp(body any, pair entity.CurrencyPair) time.Time {
	fetchedAt := c.now().UTC()
	if c.cfg.TimestampPath == "" {
		return fetchedAt
	}

	raw, err := lookup(body, expandPath(c.cfg.TimestampPath, pair))
	if err != nil {
		c.logger.WithError(err).Debug("No provider timestamp, using fetch time")
		return fetchedAt
	}

	switch v := raw.(type) {
	case json.Number:
		if secs, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts.UTC()
		}
		if ts, err := time.Parse(time.DateOnly, v); err == nil {
			return ts.UTC()
		}
	}

	c.logger.Debugf("Unreadable provider timestamp %v, using fetch time", raw)
	return fetchedAt
}

var errPathNotFound = errors.New("path not found in response")

func lookup(body any, path string) (any, error) {
	current := body
	for _, key := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errPathNotFound, path)
		}
		current, ok = object[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errPathNotFound, path)
		}
	}
	return current, nil
}

func redact(rawURL, secret string) string {
	if secret == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, url.QueryEscape(secret), "***")
}
