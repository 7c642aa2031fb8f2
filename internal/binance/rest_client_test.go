package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"supertrend-bot-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:    client,
		apiKey:    "test_api_key",
		secretKey: "test_secret_key",
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		timeout:   5 * time.Second,
	}

	return rc, server
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		expectedTime := time.Now().UnixMilli()
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime(context.Background())

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})
}

func TestGetKlines(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange: two daily bars in the exchange's mixed-type row format.
		mockResponse := `[
			[1700000000000, "100.0", "105.0", "99.0", "104.0", "12.5", 1700086399999, "0", 10, "0", "0", "0"],
			[1700086400000, "104.0", "110.0", "103.0", "109.5", "8.25", 1700172799999, "0", 11, "0", "0", "0"]
		]`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/klines", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1d", r.URL.Query().Get("interval"))
			assert.Equal(t, "750", r.URL.Query().Get("limit"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		klines, err := rc.GetKlines(context.Background(), "BTCUSDT", "1d", 750)

		// Assert
		assert.NoError(t, err)
		if assert.Len(t, klines, 2) {
			assert.Equal(t, int64(1700000000000), klines[0].OpenTime)
			assert.Equal(t, 104.0, klines[0].Close)
			assert.Equal(t, 109.5, klines[1].Close)
			assert.Equal(t, 8.25, klines[1].Volume)
		}
	})

	t.Run("MalformedRow", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[[1700000000000, "100.0"]]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetKlines(context.Background(), "BTCUSDT", "1d", 750)
		assert.Error(t, err)
	})
}

func TestGetTickerPrice(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "50000.42"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	price, err := rc.GetTickerPrice(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, 50000.42, price)
}

func TestGetBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balances": [
			{"asset": "BTC", "free": "0.5", "locked": "0.1"},
			{"asset": "USDT", "free": "1000.0", "locked": "0"}
		]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	balance, err := rc.GetBalance(context.Background(), "BTC")
	assert.NoError(t, err)
	assert.Equal(t, 0.5, balance.Free)
	assert.Equal(t, 0.1, balance.Locked)

	// An asset the account never held reports as zero, not as an error.
	balance, err = rc.GetBalance(context.Background(), "DOGE")
	assert.NoError(t, err)
	assert.Equal(t, Balance{}, balance)
}

func TestGetSymbolFilters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangeInfo", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbols": [{
			"symbol": "BTCUSDT",
			"status": "TRADING",
			"filters": [
				{"filterType": "LOT_SIZE", "minQty": "0.00001", "maxQty": "9000", "stepSize": "0.00001"},
				{"filterType": "NOTIONAL", "minNotional": "10.00000000"}
			]
		}]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	filters, err := rc.GetSymbolFilters(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, "0.00001", filters.StepSize)
	assert.Equal(t, "10.00000000", filters.MinNotional)
}

func TestCreateOrder_NoRetryOnFailure(t *testing.T) {
	// Arrange: the exchange fails the order. The client must not retry: a
	// timed-out or errored market order is not known to be unfilled.
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/order", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code": -1001, "msg": "Internal error"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	// Act
	order, err := rc.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 0.01)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateOrder_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"orderId": 12345,
			"executedQty": "0.01000000",
			"cummulativeQuoteQty": "500.00000000",
			"status": "FILLED",
			"side": "BUY"
		}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	order, err := rc.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 0.01)
	assert.NoError(t, err)
	if assert.NotNil(t, order) {
		assert.Equal(t, int64(12345), order.OrderID)
		assert.Equal(t, "0.01000000", order.ExecutedQuantity)
	}
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true}
		logger := zap.NewNop()
		rc := NewRestClient(cfg, logger)
		assert.NotNil(t, rc)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{Testnet: false}
		logger := zap.NewNop()
		rc := NewRestClient(cfg, logger)
		assert.NotNil(t, rc)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})
}
