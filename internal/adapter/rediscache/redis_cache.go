package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lifeos-currency/internal/adapter/ratecache"
	"lifeos-currency/internal/entity"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const scanCount = 100

// RedisCache stores one JSON document per ordered pair under <prefix><FROM>:<TO>.
// Keys carry no expiry; staleness is decided by the caller from fetched_at
// and stored_at.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, prefix string, logger *logrus.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (c *RedisCache) key(pair entity.CurrencyPair) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, pair.From, pair.To)
}

func (c *RedisCache) Get(ctx context.Context, pair entity.CurrencyPair) (*entity.ExchangeRate, error) {
	key := c.key(pair)

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.logger.WithField("key", key).Debug("Redis cache miss")
		return nil, ratecache.ErrNotFound
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Redis cache get error")
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rate entity.ExchangeRate
	if err := json.Unmarshal([]byte(val), &rate); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Redis cache unmarshal error")
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	c.logger.WithFields(logrus.Fields{"key": key, "rate": rate.Rate.String()}).Debug("Redis cache hit")
	return &rate, nil
}

func (c *RedisCache) Put(ctx context.Context, rate entity.ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}

	key := c.key(rate.Pair())
	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, string(data), 0).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Redis cache set error")
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	c.logger.WithFields(logrus.Fields{"key": key, "rate": rate.Rate.String()}).Debug("Redis cache set")
	return nil
}

func (c *RedisCache) List(ctx context.Context) ([]entity.ExchangeRate, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}

	if len(keys) == 0 {
		return []entity.ExchangeRate{}, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	rates := make([]entity.ExchangeRate, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		var rate entity.ExchangeRate
		if err := json.Unmarshal([]byte(raw), &rate); err != nil {
			c.logger.WithError(err).WithField("key", keys[i]).Warn("Skipping undecodable cache entry")
			continue
		}
		rates = append(rates, rate)
	}
	ratecache.SortRates(rates)

	return rates, nil
}
