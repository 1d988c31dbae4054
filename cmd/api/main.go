package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeos-currency/internal/adapter/cbr"
	"lifeos-currency/internal/adapter/postgres"
	"lifeos-currency/internal/adapter/rateapi"
	"lifeos-currency/internal/adapter/ratecache"
	"lifeos-currency/internal/adapter/rediscache"
	"lifeos-currency/internal/handler"
	"lifeos-currency/internal/metrics"
	"lifeos-currency/internal/service"
	"lifeos-currency/internal/usecase"
	"lifeos-currency/pkg/config"
	"lifeos-currency/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.Format)

	log.Infof("Starting %s...", cfg.App.Name)

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatalf("Failed to build currency registry: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	ctx := context.Background()

	cache, closeCache, err := newCache(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize %s rate cache: %v", cfg.Cache.Driver, err)
	}
	defer closeCache()
	log.Infof("Initialized %s rate cache", cfg.Cache.Driver)

	provider := newProvider(cfg, log)
	log.Infof("Initialized %s rate provider", cfg.Provider.Kind)

	policy, err := service.NewFreshnessPolicy(cfg.Freshness.StaleAfterSeconds, cfg.Freshness.WarningAfterSeconds)
	if err != nil {
		log.Fatalf("Invalid freshness policy: %v", err)
	}

	rateService := service.NewRateService(registry, cache, provider, policy, service.Settings{
		CacheTTL:        cfg.CacheTTL(),
		ProviderTimeout: cfg.ProviderTimeout(),
		RefreshAttempts: cfg.Provider.RefreshAttempts,
	}, m, log)
	log.Info("Initialized service layer")

	formatter, err := service.NewMoneyFormatter(registry, cfg.Display)
	if err != nil {
		log.Fatalf("Invalid display options: %v", err)
	}

	currencyUsecase := usecase.NewCurrencyUsecase(rateService, formatter, registry, log)
	log.Info("Initialized usecase layer")

	currencyHandler := handler.NewRateHandler(currencyUsecase, log)

	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(currencyHandler, m, reg, cfg.App.AllowOrigins, log)

	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: r,
	}

	go func() {
		log.Infof("Server starting on port %s...", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Got shutdown signal...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error server shutdown: %v", err)
	}
	log.Info("Server stopped")
}

func newCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) (ratecache.RateCache, func(), error) {
	switch cfg.Cache.Driver {
	case config.CachePostgres:
		pool, err := postgres.InitDBPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewPostgresRepo(pool, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return rediscache.NewRedisCache(client, cfg.Redis.Prefix, log), func() { _ = client.Close() }, nil

	default:
		return ratecache.NewMemoryCache(log), func() {}, nil
	}
}

func newProvider(cfg *config.Config, log *logrus.Logger) service.RateProvider {
	if cfg.Provider.Kind == config.ProviderCBR {
		return cbr.NewClient(cfg.Provider.BaseURL, cfg.ProviderTimeout(), log)
	}
	return rateapi.NewClient(rateapi.Config{
		BaseURL:       cfg.Provider.BaseURL,
		URLTemplate:   cfg.Provider.URLTemplate,
		APIKey:        cfg.Provider.APIKey,
		APIKeyHeader:  cfg.Provider.APIKeyHeader,
		RatePath:      cfg.Provider.RatePath,
		TimestampPath: cfg.Provider.TimestampPath,
		Timeout:       cfg.ProviderTimeout(),
	}, log)
}
