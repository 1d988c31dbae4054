package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifeos-currency/internal/entity"
	"lifeos-currency/internal/metrics"
	"lifeos-currency/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fetchedAt = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

type mockRateUsecase struct {
	mock.Mock
}

func (m *mockRateUsecase) Convert(ctx context.Context, from, to, amount string) (*usecase.ConversionResponse, error) {
	args := m.Called(ctx, from, to, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ConversionResponse), args.Error(1)
}

func (m *mockRateUsecase) Format(ctx context.Context, currency, amount string) (*usecase.FormatResponse, error) {
	args := m.Called(ctx, currency, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.FormatResponse), args.Error(1)
}

func (m *mockRateUsecase) Currencies(ctx context.Context) []usecase.CurrencyResponse {
	args := m.Called(ctx)
	return args.Get(0).([]usecase.CurrencyResponse)
}

func (m *mockRateUsecase) Freshness(ctx context.Context, from, to string) (*usecase.FreshnessResponse, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.FreshnessResponse), args.Error(1)
}

func (m *mockRateUsecase) Refresh(ctx context.Context, from, to string) (*usecase.RateResponse, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RateResponse), args.Error(1)
}

func (m *mockRateUsecase) RefreshAll(ctx context.Context) (*usecase.RefreshAllResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RefreshAllResponse), args.Error(1)
}

func (m *mockRateUsecase) CachedRates(ctx context.Context) ([]usecase.FreshnessResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]usecase.FreshnessResponse), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestHandler() (*CurrencyHandler, *mockRateUsecase, *logrus.Logger, *test.Hook) {
	mockUsecase := new(mockRateUsecase)
	logger, hook := test.NewNullLogger()
	handler := NewRateHandler(mockUsecase, logger)
	return handler, mockUsecase, logger, hook
}

func setupTestRouter() (*gin.Engine, *mockRateUsecase, *prometheus.Registry, *test.Hook) {
	handler, mockUsecase, logger, hook := setupTestHandler()
	reg := prometheus.NewRegistry()
	router := NewRouter(handler, metrics.NewMetrics(reg), reg, []string{"http://localhost:8080"}, logger)
	return router, mockUsecase, reg, hook
}

func serve(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestConvert_Success(t *testing.T) {
	handler, mockUsecase, _, _ := setupTestHandler()

	expected := &usecase.ConversionResponse{
		From:      usecase.MoneyResponse{Amount: "100.00", Currency: "EUR", Formatted: "€ 100.00"},
		To:        usecase.MoneyResponse{Amount: "6150.00", Currency: "MKD", Formatted: "ден 6,150.00"},
		Rate:      "61.5",
		FetchedAt: fetchedAt,
		Freshness: "fresh",
	}
	mockUsecase.On("Convert", mock.Anything, "EUR", "MKD", "100").Return(expected, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/currency/convert?from=EUR&to=MKD&amount=100", nil)

	handler.Convert(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp usecase.ConversionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, *expected, resp)
	mockUsecase.AssertExpectations(t)
}

func TestConvert_MissingParams(t *testing.T) {
	handler, mockUsecase, _, _ := setupTestHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/currency/convert?from=EUR", nil)

	handler.Convert(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "'from' and 'to' are required")
	mockUsecase.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConvert_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid input", fmt.Errorf("%w: bad amount", usecase.ErrInvalidInput), http.StatusBadRequest, "bad amount"},
		{"unknown currency", fmt.Errorf("%w: XYZ", entity.ErrUnknownCurrency), http.StatusBadRequest, "XYZ"},
		{"rate unavailable", fmt.Errorf("%w: EUR/MKD", entity.ErrRateUnavailable), http.StatusServiceUnavailable, "EUR/MKD"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline"},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockUsecase, _, hook := setupTestRouter()
			mockUsecase.On("Convert", mock.Anything, "EUR", "MKD", "").Return(nil, tt.err)

			w := serve(router, http.MethodGet, "/currency/convert?from=EUR&to=MKD")

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, decodeError(t, w), tt.message)

			var logged bool
			for _, entry := range hook.AllEntries() {
				if entry.Level == logrus.ErrorLevel {
					logged = true
					assert.NotEmpty(t, entry.Data["request_id"])
				}
			}
			assert.True(t, logged)
		})
	}
}

func TestFormat(t *testing.T) {
	router, mockUsecase, _, _ := setupTestRouter()

	mockUsecase.On("Format", mock.Anything, "USD", "1234.5").
		Return(&usecase.FormatResponse{Currency: "USD", Amount: "1234.5", Formatted: "$ 1,234.50"}, nil)

	w := serve(router, http.MethodGet, "/currency/format?currency=USD&amount=1234.5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"formatted":"$ 1,234.50"`)

	w = serve(router, http.MethodGet, "/currency/format?currency=USD")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrencies(t *testing.T) {
	router, mockUsecase, _, _ := setupTestRouter()

	mockUsecase.On("Currencies", mock.Anything).Return([]usecase.CurrencyResponse{
		{Code: "EUR", Name: "Euro", Symbol: "€", Decimals: 2},
		{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Decimals: 0},
	})

	w := serve(router, http.MethodGet, "/currency/currencies")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []usecase.CurrencyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, int32(0), resp[1].Decimals)
}

func TestFreshness(t *testing.T) {
	router, mockUsecase, _, _ := setupTestRouter()

	mockUsecase.On("Freshness", mock.Anything, "EUR", "MKD").Return(&usecase.FreshnessResponse{
		From:       "EUR",
		To:         "MKD",
		Rate:       "61.5",
		FetchedAt:  fetchedAt,
		AgeSeconds: 90000,
		Freshness:  "stale",
		RefreshDue: true,
	}, nil)
	mockUsecase.On("Freshness", mock.Anything, "USD", "MKD").
		Return(nil, fmt.Errorf("%w: no cached rate for USD/MKD", entity.ErrRateUnavailable))

	w := serve(router, http.MethodGet, "/currency/rates/EUR/MKD")
	require.Equal(t, http.StatusOK, w.Code)
	var resp usecase.FreshnessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stale", resp.Freshness)
	assert.True(t, resp.RefreshDue)

	w = serve(router, http.MethodGet, "/currency/rates/USD/MKD")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefresh(t *testing.T) {
	router, mockUsecase, _, _ := setupTestRouter()

	mockUsecase.On("Refresh", mock.Anything, "EUR", "MKD").Return(&usecase.RateResponse{
		From: "EUR", To: "MKD", Rate: "61.55", FetchedAt: fetchedAt, Source: "rateapi",
	}, nil)
	mockUsecase.On("Refresh", mock.Anything, "USD", "MKD").
		Return(nil, fmt.Errorf("%w: rateapi: status 500", entity.ErrProviderUnavailable))

	w := serve(router, http.MethodPost, "/currency/rates/EUR/MKD/refresh")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rate":"61.55"`)

	w = serve(router, http.MethodPost, "/currency/rates/USD/MKD/refresh")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeError(t, w), "status 500")
}

func TestRefreshAll(t *testing.T) {
	tests := []struct {
		name   string
		resp   *usecase.RefreshAllResponse
		status int
	}{
		{"all ok", &usecase.RefreshAllResponse{Refreshed: 3}, http.StatusOK},
		{"partial", &usecase.RefreshAllResponse{Refreshed: 2, Failed: 1, Errors: []string{"timeout"}}, http.StatusOK},
		{"all failed", &usecase.RefreshAllResponse{Failed: 2, Errors: []string{"a", "b"}}, http.StatusBadGateway},
		{"nothing cached", &usecase.RefreshAllResponse{}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockUsecase, _, _ := setupTestRouter()
			mockUsecase.On("RefreshAll", mock.Anything).Return(tt.resp, nil)

			w := serve(router, http.MethodPost, "/currency/rates/refresh")
			assert.Equal(t, tt.status, w.Code)

			var resp usecase.RefreshAllResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, *tt.resp, resp)
		})
	}
}

func TestCachedRates(t *testing.T) {
	router, mockUsecase, _, _ := setupTestRouter()

	mockUsecase.On("CachedRates", mock.Anything).Return(nil, errors.New("redis: connection refused")).Once()
	w := serve(router, http.MethodGet, "/currency/rates")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w))

	mockUsecase.On("CachedRates", mock.Anything).Return([]usecase.FreshnessResponse{
		{From: "EUR", To: "MKD", Rate: "61.5", Freshness: "fresh"},
	}, nil).Once()
	w = serve(router, http.MethodGet, "/currency/rates")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"from":"EUR"`)
}

func TestRouter_HealthRequestIDAndMetrics(t *testing.T) {
	router, _, reg, hook := setupTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "req-42", entry.Data["request_id"])

	w = serve(router, http.MethodGet, "/health")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.NotEqual(t, "req-42", w.Header().Get(RequestIDHeader))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if strings.HasSuffix(mf.GetName(), "http_requests_total") {
			found = true
		}
	}
	assert.True(t, found)

	w = serve(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
