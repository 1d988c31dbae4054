package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifeos-currency/internal/adapter/ratecache"
	"lifeos-currency/internal/entity"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const ratesTable = "exchange_rates"

const createRatesTable = `
CREATE TABLE IF NOT EXISTS exchange_rates (
    from_currency CHAR(3)         NOT NULL,
    to_currency   CHAR(3)         NOT NULL,
    rate          NUMERIC     NOT NULL CHECK (rate > 0),
    fetched_at    TIMESTAMPTZ NOT NULL,
    stored_at     TIMESTAMPTZ,
    source        TEXT        NOT NULL DEFAULT '',
    PRIMARY KEY (from_currency, to_currency)
)`

var (
	psql        = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	rateColumns = []string{"from_currency", "to_currency", "rate::text", "fetched_at", "stored_at", "source"}
)

// PostgresRepo is a persistent RateCache backed by the exchange_rates table.
type PostgresRepo struct {
	pool   Pool
	logger *logrus.Logger
}

func NewPostgresRepo(pool Pool, logger *logrus.Logger) *PostgresRepo {
	return &PostgresRepo{
		pool:   pool,
		logger: logger,
	}
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createRatesTable); err != nil {
		r.logger.WithError(err).Error("Failed to create exchange_rates table")
		return fmt.Errorf("create table: %w", err)
	}
	r.logger.Info("Exchange rate table is ready")
	return nil
}

func buildGetQuery(pair entity.CurrencyPair) (string, []any, error) {
	return psql.
		Select(rateColumns...).
		From(ratesTable).
		Where(sq.Eq{"from_currency": pair.From.String(), "to_currency": pair.To.String()}).
		Limit(1).
		ToSql()
}

func buildPutQuery(rate entity.ExchangeRate) (string, []any, error) {
	return psql.Insert(ratesTable).
		Columns("from_currency", "to_currency", "rate", "fetched_at", "stored_at", "source").
		Values(rate.From.String(), rate.To.String(), rate.Rate.String(), rate.FetchedAt.UTC(), nullableTime(rate.StoredAt), rate.Source).
		Suffix(`
            ON CONFLICT (from_currency, to_currency) DO UPDATE SET
                rate = EXCLUDED.rate,
                fetched_at = EXCLUDED.fetched_at,
                stored_at = EXCLUDED.stored_at,
                source = EXCLUDED.source
        `).
		ToSql()
}

func buildListQuery() (string, []any, error) {
	return psql.
		Select(rateColumns...).
		From(ratesTable).
		OrderBy("from_currency", "to_currency").
		ToSql()
}

func (r *PostgresRepo) Get(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	query, args, err := buildGetQuery(pair)
	if err != nil {
		r.logger.WithError(err).Error("Failed to build select query")
		return nil, fmt.Errorf("build select: %w", err)
	}

	rate, err := scanRate(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WithField("pair", pair.String()).Debug("Rate not found in DB")
			return nil, ratecache.ErrNotFound
		}
		r.logger.WithError(err).WithField("pair", pair.String()).Error("Failed to query rate")
		return nil, fmt.Errorf("query rate: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"pair":       pair.String(),
		"rate":       rate.Rate.String(),
		"fetched_at": rate.FetchedAt,
	}).Debug("Successfully retrieved cached rate")

	return rate, nil
}

func (r *PostgresRepo) Put(ctx context.Context, rate entity.ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}

	query, args, err := buildPutQuery(rate)
	if err != nil {
		return fmt.Errorf("build insert for %s: %w", rate.Pair(), err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		r.logger.WithError(err).WithField("pair", rate.Pair().String()).Error("Failed to store rate")
		return fmt.Errorf("store rate %s: %w", rate.Pair(), err)
	}

	r.logger.WithFields(logrus.Fields{
		"pair": rate.Pair().String(),
		"rate": rate.Rate.String(),
	}).Info("Stored exchange rate")

	return nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]entity.ExchangeRate, error) {
	query, args, err := buildListQuery()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list cached rates")
		return nil, fmt.Errorf("query rates: %w", err)
	}
	defer rows.Close()

	var rates []entity.ExchangeRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		rates = append(rates, *rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rates: %w", err)
	}

	return rates, nil
}

func scanRate(row pgx.Row) (*entity.ExchangeRate, error) {
	var (
		from, to, rateText, source string
		fetchedAt                  time.Time
		storedAt                   *time.Time
	)
	if err := row.Scan(&from, &to, &rateText, &fetchedAt, &storedAt, &source); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(rateText)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rateText, err)
	}

	rate := &entity.ExchangeRate{
		From:      entity.NormalizeCode(from),
		To:        entity.NormalizeCode(to),
		Rate:      value,
		FetchedAt: fetchedAt,
		Source:    source,
	}
	if storedAt != nil {
		rate.StoredAt = *storedAt
	}
	return rate, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
