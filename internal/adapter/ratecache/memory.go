package ratecache

import (
	"context"
	"sort"
	"sync"

	"lifeos-currency/internal/entity"

	"github.com/sirupsen/logrus"
)

type MemoryCache struct {
	rates  map[entity.CurrencyPair]entity.ExchangeRate
	mutex  sync.RWMutex
	logger *logrus.Logger
}

func NewMemoryCache(logger *logrus.Logger) *MemoryCache {
	return &MemoryCache{
		rates:  make(map[entity.CurrencyPair]entity.ExchangeRate),
		logger: logger,
	}
}

func (c *MemoryCache) Get(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	rate, found := c.rates[pair]
	if !found {
		c.logger.WithField("pair", pair.String()).Debug("Cache miss")
		return nil, ErrNotFound
	}

	c.logger.WithField("pair", pair.String()).Debug("Cache hit")
	return &rate, nil
}

func (c *MemoryCache) Put(ctx context.Context, rate entity.ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.rates[rate.Pair()] = rate
	c.logger.WithFields(logrus.Fields{
		"pair": rate.Pair().String(),
		"rate": rate.Rate.String(),
	}).Debug("Cache set")

	return nil
}

func (c *MemoryCache) List(ctx context.Context) ([]entity.ExchangeRate, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	rates := make([]entity.ExchangeRate, 0, len(c.rates))
	for _, rate := range c.rates {
		rates = append(rates, rate)
	}
	SortRates(rates)

	return rates, nil
}

// SortRates orders rates by pair so listings are stable across cache drivers.
func SortRates(rates []entity.ExchangeRate) {
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].From != rates[j].From {
			return rates[i].From < rates[j].From
		}
		return rates[i].To < rates[j].To
	})
}
