package handler

import (
	"context"
	"errors"
	"net/http"

	"lifeos-currency/internal/entity"
	"lifeos-currency/internal/metrics"
	"lifeos-currency/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type CurrencyHandler struct {
	usecase usecase.RateUsecase
	logger  *logrus.Logger
}

func NewRateHandler(usecase usecase.RateUsecase, logger *logrus.Logger) *CurrencyHandler {
	return &CurrencyHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// NewRouter wires the currency routes, health and metrics endpoints.
func NewRouter(h *CurrencyHandler, m *metrics.Metrics, gatherer prometheus.Gatherer, allowOrigins []string, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), Metrics(m))

	if len(allowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: false,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	currency := r.Group("/currency")
	{
		currency.GET("/convert", h.Convert)
		currency.GET("/format", h.Format)
		currency.GET("/currencies", h.Currencies)
		currency.GET("/rates", h.CachedRates)
		currency.POST("/rates/refresh", h.RefreshAll)
		currency.GET("/rates/:from/:to", h.Freshness)
		currency.POST("/rates/:from/:to/refresh", h.Refresh)
	}

	return r
}

// statusFor maps domain errors to HTTP codes. rateUnavailable differs between
// conversions (503) and freshness lookups (404).
func statusFor(err error, rateUnavailable int) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput), errors.Is(err, entity.ErrUnknownCurrency):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrRateUnavailable):
		return rateUnavailable
	case errors.Is(err, entity.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *CurrencyHandler) fail(c *gin.Context, err error, rateUnavailable int) {
	status := statusFor(err, rateUnavailable)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": requestID(c),
		"status":     status,
	}).Errorf("%s %s failed", c.Request.Method, c.FullPath())

	c.JSON(status, ErrorResponse{Error: message})
}

func (h *CurrencyHandler) Convert(c *gin.Context) {
	var q ConvertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameters 'from' and 'to' are required"})
		return
	}

	result, err := h.usecase.Convert(c.Request.Context(), q.From, q.To, q.Amount)
	if err != nil {
		h.fail(c, err, http.StatusServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CurrencyHandler) Format(c *gin.Context) {
	var q FormatQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameters 'currency' and 'amount' are required"})
		return
	}

	result, err := h.usecase.Format(c.Request.Context(), q.Currency, q.Amount)
	if err != nil {
		h.fail(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CurrencyHandler) Currencies(c *gin.Context) {
	c.JSON(http.StatusOK, h.usecase.Currencies(c.Request.Context()))
}

func (h *CurrencyHandler) Freshness(c *gin.Context) {
	var p PairURI
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.usecase.Freshness(c.Request.Context(), p.From, p.To)
	if err != nil {
		h.fail(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CurrencyHandler) Refresh(c *gin.Context) {
	var p PairURI
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.usecase.Refresh(c.Request.Context(), p.From, p.To)
	if err != nil {
		h.fail(c, err, http.StatusBadGateway)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CurrencyHandler) RefreshAll(c *gin.Context) {
	result, err := h.usecase.RefreshAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, http.StatusBadGateway)
		return
	}

	status := http.StatusOK
	if result.Refreshed == 0 && result.Failed > 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

func (h *CurrencyHandler) CachedRates(c *gin.Context) {
	result, err := h.usecase.CachedRates(c.Request.Context())
	if err != nil {
		h.fail(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, result)
}
