package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifeos-currency/internal/adapter/ratecache"
	"lifeos-currency/internal/entity"
	"lifeos-currency/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

const IdentitySource = "identity"

type Settings struct {
	// CacheTTL is the minimum time between provider refreshes of a pair whose
	// rate is no longer Fresh. Fresh rates are always served from the cache
	// and entries are never evicted.
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
	// RefreshAttempts is the number of provider calls per refresh, 1 means no retry.
	RefreshAttempts int
}

type RateService struct {
	registry *entity.Registry
	cache    ratecache.RateCache
	provider RateProvider
	policy   FreshnessPolicy
	settings Settings
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	group   singleflight.Group
	now     func() time.Time
	backoff func() backoff.BackOff
}

func NewRateService(
	registry *entity.Registry,
	cache ratecache.RateCache,
	provider RateProvider,
	policy FreshnessPolicy,
	settings Settings,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *RateService {
	if settings.RefreshAttempts < 1 {
		settings.RefreshAttempts = 1
	}
	return &RateService{
		registry: registry,
		cache:    cache,
		provider: provider,
		policy:   policy,
		settings: settings,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

func (s *RateService) Registry() *entity.Registry {
	return s.registry
}

func (s *RateService) Policy() FreshnessPolicy {
	return s.policy
}

func (s *RateService) lookupPair(from, to entity.CurrencyCode) (entity.Currency, entity.Currency, error) {
	fromCur, err := s.registry.Lookup(from)
	if err != nil {
		return entity.Currency{}, entity.Currency{}, err
	}
	toCur, err := s.registry.Lookup(to)
	if err != nil {
		return entity.Currency{}, entity.Currency{}, err
	}
	return fromCur, toCur, nil
}

func (s *RateService) identityRate(pair entity.CurrencyPair) entity.ExchangeRate {
	return entity.ExchangeRate{
		From:      pair.From,
		To:        pair.To,
		Rate:      decimal.NewFromInt(1),
		FetchedAt: s.now().UTC(),
		Source:    IdentitySource,
	}
}

// Convert converts amount from one currency to another, rounding once to the
// target currency's decimals. A conversion served from a cached rate after a
// failed refresh is marked Approximate and carries ErrStaleFallbackUsed.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to entity.CurrencyCode) (*entity.Conversion, error) {
	_, toCur, err := s.lookupPair(from, to)
	if err != nil {
		s.metrics.Conversion(metrics.OutcomeFailed)
		return nil, err
	}

	pair := entity.NewPair(from, to)
	if pair.IsIdentity() {
		s.metrics.Conversion(metrics.OutcomeIdentity)
		return &entity.Conversion{
			Source:    entity.Money{Amount: amount, Currency: from},
			Result:    entity.Money{Amount: amount, Currency: to},
			Rate:      decimal.NewFromInt(1),
			FetchedAt: s.now().UTC(),
			Freshness: entity.Fresh,
		}, nil
	}

	entry, approximate, err := s.currentRate(ctx, pair)
	if err != nil {
		s.metrics.Conversion(metrics.OutcomeFailed)
		return nil, err
	}

	rate := entry.Rate
	conversion := &entity.Conversion{
		Source:      entity.Money{Amount: amount, Currency: from},
		Result:      entity.Money{Amount: amount.Mul(rate.Rate).Round(toCur.Decimals), Currency: to},
		Rate:        rate.Rate,
		FetchedAt:   rate.FetchedAt,
		Freshness:   s.policy.Classify(entry.AgeSeconds),
		Approximate: approximate,
	}

	if approximate {
		conversion.Warning = entity.ErrStaleFallbackUsed
		s.metrics.Conversion(metrics.OutcomeApproximate)
		s.logger.WithFields(logrus.Fields{
			"pair":       pair.String(),
			"fetched_at": rate.FetchedAt,
			"freshness":  conversion.Freshness.String(),
		}).Warn("Converted with cached rate after failed refresh")
	} else {
		s.metrics.Conversion(metrics.OutcomeExact)
	}

	return conversion, nil
}

// currentRate returns a rate for the pair, reporting whether it is a fallback.
func (s *RateService) currentRate(ctx context.Context, pair entity.CurrencyPair) (*entity.RateCacheEntry, bool, error) {
	cached := s.readCache(ctx, pair)
	if cached != nil {
		if s.usable(*cached) {
			s.metrics.CacheLookup(metrics.CacheHit)
			s.logger.WithField("pair", pair.String()).Debugf("Using cached rate, age %ds", cached.AgeSeconds)
			return cached, false, nil
		}
		s.metrics.CacheLookup(metrics.CacheStale)
		s.logger.WithField("pair", pair.String()).Debugf("Cached rate too old (%ds), refreshing", cached.AgeSeconds)
	}

	fetched, err := s.fetch(ctx, pair)
	if err == nil {
		entry := entity.NewRateCacheEntry(*fetched, s.now())
		return &entry, false, nil
	}

	if cached != nil {
		return cached, true, nil
	}

	return nil, false, fmt.Errorf("%w: %s: %w", entity.ErrRateUnavailable, pair, err)
}

// usable reports whether a cached entry can be served without asking the
// provider: it is Fresh, or it was stored less than CacheTTL ago.
func (s *RateService) usable(entry entity.RateCacheEntry) bool {
	if s.policy.Classify(entry.AgeSeconds) == entity.Fresh {
		return true
	}
	if s.settings.CacheTTL <= 0 {
		return false
	}
	return time.Duration(entry.StoredAgeSeconds)*time.Second < s.settings.CacheTTL
}

// readCache treats read failures as a miss so a broken cache degrades to
// provider calls.
func (s *RateService) readCache(ctx context.Context, pair entity.CurrencyPair) *entity.RateCacheEntry {
	rate, err := s.cache.Get(ctx, pair)
	switch {
	case err == nil:
		entry := entity.NewRateCacheEntry(*rate, s.now())
		return &entry
	case errors.Is(err, ratecache.ErrNotFound):
		s.metrics.CacheLookup(metrics.CacheMiss)
	default:
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.WithError(err).WithField("pair", pair.String()).Error("Rate cache read failed")
	}
	return nil
}

// fetch calls the provider once per pair at a time and stores the result.
// The shared call is detached from the caller's cancellation, so a caller
// that gives up only stops waiting for itself.
func (s *RateService) fetch(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	ch := s.group.DoChan(pair.String(), func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)

		rate, err := s.fetchWithRetry(shared, pair)
		if err != nil {
			return nil, err
		}
		putCtx := shared
		if s.settings.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			putCtx, cancel = context.WithTimeout(shared, s.settings.ProviderTimeout)
			defer cancel()
		}

		rate.StoredAt = s.now().UTC()
		if err := s.cache.Put(putCtx, *rate); err != nil {
			s.logger.WithError(err).WithField("pair", pair.String()).Error("Rate cache write failed")
		}
		return rate, nil
	})

	select {
	case <-ctx.Done():
		s.logger.WithField("pair", pair.String()).Debug("Caller left before provider fetch finished")
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrProviderUnavailable, pair, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.WithField("pair", pair.String()).Debug("Shared in-flight provider fetch")
		}
		rate := *res.Val.(*entity.ExchangeRate)
		return &rate, nil
	}
}

func (s *RateService) fetchWithRetry(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	attempt := 0
	operation := func() (*entity.ExchangeRate, error) {
		attempt++

		callCtx := ctx
		if s.settings.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.settings.ProviderTimeout)
			defer cancel()
		}

		start := time.Now()
		rate, err := s.provider.FetchRate(callCtx, pair)
		s.metrics.ProviderFetch(err, time.Since(start))
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"pair":    pair.String(),
				"attempt": attempt,
			}).Warn("Provider fetch failed")
			return nil, err
		}

		if rate.Pair() != pair {
			return nil, backoff.Permanent(fmt.Errorf("%w: asked for %s, got %s",
				entity.ErrProviderUnavailable, pair, rate.Pair()))
		}
		if err := rate.Validate(); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", entity.ErrProviderUnavailable, err))
		}
		return rate, nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(s.backoff(), uint64(s.settings.RefreshAttempts-1)),
		ctx,
	)

	rate, err := backoff.RetryWithData(operation, b)
	if err != nil {
		if !errors.Is(err, entity.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %s: %w", entity.ErrProviderUnavailable, pair, err)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"pair":   pair.String(),
		"rate":   rate.Rate.String(),
		"source": rate.Source,
	}).Info("Exchange rate refreshed")

	return rate, nil
}

func (s *RateService) status(rate entity.ExchangeRate) entity.RateStatus {
	entry := entity.NewRateCacheEntry(rate, s.now())
	return entity.RateStatus{
		Pair:       rate.Pair(),
		Rate:       rate.Rate,
		FetchedAt:  rate.FetchedAt,
		AgeSeconds: entry.AgeSeconds,
		Level:      s.policy.Classify(entry.AgeSeconds),
		RefreshDue: !s.usable(entry),
	}
}

// Freshness reports how old the cached rate for the pair is. It never calls
// the provider.
func (s *RateService) Freshness(ctx context.Context, from, to entity.CurrencyCode) (*entity.RateStatus, error) {
	if _, _, err := s.lookupPair(from, to); err != nil {
		return nil, err
	}

	pair := entity.NewPair(from, to)
	if pair.IsIdentity() {
		st := s.status(s.identityRate(pair))
		return &st, nil
	}

	rate, err := s.cache.Get(ctx, pair)
	if errors.Is(err, ratecache.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has never been fetched", entity.ErrRateUnavailable, pair)
	}
	if err != nil {
		s.logger.WithError(err).WithField("pair", pair.String()).Error("Rate cache read failed")
		return nil, fmt.Errorf("read cached rate %s: %w", pair, err)
	}

	st := s.status(*rate)
	return &st, nil
}

// Refresh fetches the pair from the provider and overwrites the cache,
// regardless of the age of the cached value.
func (s *RateService) Refresh(ctx context.Context, from, to entity.CurrencyCode) (*entity.ExchangeRate, error) {
	if _, _, err := s.lookupPair(from, to); err != nil {
		return nil, err
	}

	pair := entity.NewPair(from, to)
	if pair.IsIdentity() {
		rate := s.identityRate(pair)
		return &rate, nil
	}

	s.logger.WithField("pair", pair.String()).Info("Manual rate refresh")
	return s.fetch(ctx, pair)
}

// RefreshAll refreshes every cached pair and returns how many succeeded.
// Pairs whose currencies are no longer supported are skipped.
func (s *RateService) RefreshAll(ctx context.Context) (int, error) {
	rates, err := s.cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cached rates: %w", err)
	}

	var (
		refreshed int
		errs      error
	)
	for _, rate := range rates {
		pair := rate.Pair()
		if !s.registry.Supports(pair.From) || !s.registry.Supports(pair.To) {
			s.logger.WithField("pair", pair.String()).Warn("Skipping cached pair with unsupported currency")
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if _, err := s.fetch(ctx, pair); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		refreshed++
	}

	s.logger.Infof("Refreshed %d of %d cached rates", refreshed, len(rates))
	return refreshed, errs
}

func (s *RateService) CachedRates(ctx context.Context) ([]entity.RateStatus, error) {
	rates, err := s.cache.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cached rates: %w", err)
	}

	statuses := make([]entity.RateStatus, 0, len(rates))
	for _, rate := range rates {
		statuses = append(statuses, s.status(rate))
	}
	return statuses, nil
}
