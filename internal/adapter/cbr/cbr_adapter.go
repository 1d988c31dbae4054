package cbr

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lifeos-currency/internal/entity"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding/charmap"
)

const (
	Source         = "cbr"
	DefaultBaseURL = "https://www.cbr.ru/scripts"

	// RUB is the quote currency of the daily list.
	RUB entity.CurrencyCode = "RUB"

	crossPrecision = 12
)

// Client turns the Central Bank of Russia daily list into cross rates. Every
// currency is quoted in RUB per unit, so FROM/TO = perUnit(FROM) / perUnit(TO).
// This is the bank's own published cross rate, not an inversion of another pair.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
	now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Client) FetchRate(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	valCurs, err := c.FetchDaily(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrProviderUnavailable, pair, err)
	}

	table, err := perUnitTable(valCurs)
	if err != nil {
		c.logger.WithError(err).Warn("Some CBR entries could not be parsed")
	}

	value, err := crossRate(table, pair)
	if err != nil {
		c.logger.WithError(err).WithField("pair", pair.String()).Warn("CBR cross rate unavailable")
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrProviderUnavailable, pair, err)
	}

	c.logger.WithFields(logrus.Fields{
		"pair": pair.String(),
		"rate": value.String(),
		"date": valCurs.Date,
	}).Info("Fetched CBR cross rate")

	return &entity.ExchangeRate{
		From:      pair.From,
		To:        pair.To,
		Rate:      value,
		FetchedAt: c.now().UTC(),
		Source:    Source,
	}, nil
}

// FetchDaily downloads and decodes today's XML_daily list.
func (c *Client) FetchDaily(ctx context.Context) (*ValCurs, error) {
	url := fmt.Sprintf("%s/XML_daily.asp", c.baseURL)

	c.logger.Debugf("Fetching rates from URL: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "lifeos-currency/1.0")
	req.Header.Set("Accept", "application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CBR returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	c.logger.Debugf("Response body length: %d bytes", len(body))

	valCurs, err := decodeValCurs(body)
	if err != nil {
		c.logger.Debugf("First 200 chars: %s", string(body)[:min(200, len(body))])
		return nil, err
	}

	if len(valCurs.Valutes) == 0 {
		return nil, errors.New("no valutes in response")
	}
	c.logger.Debugf("Parsed %d currencies for %s", len(valCurs.Valutes), valCurs.Date)

	return valCurs, nil
}

func decodeValCurs(body []byte) (*ValCurs, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "windows-1251", "cp1251":
			return charmap.Windows1251.NewDecoder().Reader(input), nil
		case "utf-8", "utf8":
			return input, nil
		}
		return nil, fmt.Errorf("unsupported charset: %s", charset)
	}

	var valCurs ValCurs
	if err := decoder.Decode(&valCurs); err != nil {
		return nil, fmt.Errorf("parse XML: %w", err)
	}
	return &valCurs, nil
}

// perUnitTable maps each listed code to its RUB price per unit. Entries that
// fail to parse are left out and reported together.
func perUnitTable(valCurs *ValCurs) (map[entity.CurrencyCode]decimal.Decimal, error) {
	table := make(map[entity.CurrencyCode]decimal.Decimal, len(valCurs.Valutes)+1)
	table[RUB] = decimal.NewFromInt(1)

	var errs error
	for _, v := range valCurs.Valutes {
		perUnit, err := v.PerUnit()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		table[entity.NormalizeCode(v.CharCode)] = perUnit
	}
	return table, errs
}

func crossRate(table map[entity.CurrencyCode]decimal.Decimal, pair entity.CurrencyPair) (decimal.Decimal, error) {
	from, ok := table[pair.From]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s is not quoted by CBR", pair.From)
	}
	to, ok := table[pair.To]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s is not quoted by CBR", pair.To)
	}

	rate := from.DivRound(to, crossPrecision)
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("cross rate %s for %s is not positive", rate, pair)
	}
	return rate, nil
}
