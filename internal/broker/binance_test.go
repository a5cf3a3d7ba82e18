package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	apperrors "futures_orchestrator/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{})                 {}
func (noopLogger) Info(msg string, fields ...interface{})                  {}
func (noopLogger) Warn(msg string, fields ...interface{})                  {}
func (noopLogger) Error(msg string, fields ...interface{})                 {}
func (noopLogger) Fatal(msg string, fields ...interface{})                 {}
func (n noopLogger) WithField(key string, value interface{}) core.ILogger  { return n }
func (n noopLogger) WithFields(fields map[string]interface{}) core.ILogger { return n }

func newTestBroker(t *testing.T, baseURL string) *BinanceBroker {
	t.Helper()
	return NewBinanceBroker(config.BrokerConfig{
		APIKey:     "test-api-key",
		SecretKey:  "test-secret",
		BaseURL:    baseURL,
		RecvWindow: 5000,
		RateLimit:  100,
	}, noopLogger{})
}

func TestGetPositions_SignedAndFiltered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))

		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.500","entryPrice":"50000","markPrice":"51000"},
			{"symbol":"ETHUSDT","positionAmt":"-2","entryPrice":"3000","markPrice":"2950"},
			{"symbol":"SOLUSDT","positionAmt":"0","entryPrice":"0","markPrice":"150"}
		]`))
	}))
	defer server.Close()

	positions, err := newTestBroker(t, server.URL).GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2, "flat positions are dropped")

	long := positions[0]
	assert.Equal(t, "BTCUSDT", long.Instrument)
	assert.Equal(t, core.SideLong, long.Side)
	assert.True(t, long.Size.Equal(decimal.NewFromFloat(0.5)))

	short := positions[1]
	assert.Equal(t, core.SideShort, short.Side)
	assert.True(t, short.Size.Equal(decimal.NewFromInt(2)), "size is reported unsigned")
}

func TestGetOpenOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"orderId":123,"clientOrderId":"fo-1","symbol":"BTCUSDT","side":"BUY","type":"LIMIT","price":"50000","stopPrice":"0","origQty":"0.5","reduceOnly":false,"time":1756500000000},
			{"orderId":124,"clientOrderId":"","symbol":"BTCUSDT","side":"SELL","type":"STOP_MARKET","price":"0","stopPrice":"49000","origQty":"0","closePosition":true,"time":1756500000000}
		]`))
	}))
	defer server.Close()

	orders, err := newTestBroker(t, server.URL).GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "123", orders[0].ID)
	assert.Equal(t, "fo-1", orders[0].ClientID)
	assert.Equal(t, core.SideLong, orders[0].Side)
	assert.Equal(t, "LIMIT", orders[0].Type)

	assert.Equal(t, "STOP_MARKET", orders[1].Type)
	assert.True(t, orders[1].ReduceOnly, "closePosition implies reduce-only")
	assert.True(t, orders[1].StopPrice.Equal(decimal.NewFromInt(49000)))
}

func TestPlaceOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "50000", q.Get("price"))
		assert.Equal(t, "0.5", q.Get("quantity"))
		assert.Equal(t, "fo-abc", q.Get("newClientOrderId"))

		_, _ = w.Write([]byte(`{"orderId":555,"clientOrderId":"fo-abc","symbol":"BTCUSDT","side":"BUY","type":"LIMIT","price":"50000","stopPrice":"0","origQty":"0.5","time":1756500000000}`))
	}))
	defer server.Close()

	order, err := newTestBroker(t, server.URL).PlaceOrder(context.Background(), core.OrderSpec{
		Instrument:    "BTCUSDT",
		Side:          core.SideLong,
		Entry:         decimal.NewFromInt(50000),
		Stop:          decimal.NewFromInt(49000),
		Quantity:      decimal.NewFromFloat(0.5),
		ClientOrderID: "fo-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "555", order.ID)
}

func TestModifyStop_ReplacesExistingStop(t *testing.T) {
	var cancelled []string
	var placedStop string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fapi/v1/openOrders":
			_, _ = w.Write([]byte(`[
				{"orderId":200,"symbol":"BTCUSDT","side":"SELL","type":"STOP_MARKET","price":"0","stopPrice":"49000","origQty":"0","closePosition":true,"time":1756500000000},
				{"orderId":201,"symbol":"BTCUSDT","side":"SELL","type":"TAKE_PROFIT_MARKET","price":"0","stopPrice":"52000","origQty":"0","closePosition":true,"time":1756500000000}
			]`))
		case r.Method == http.MethodDelete:
			cancelled = append(cancelled, r.URL.Query().Get("orderId"))
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost:
			q := r.URL.Query()
			assert.Equal(t, "SELL", q.Get("side"))
			assert.Equal(t, "STOP_MARKET", q.Get("type"))
			assert.Equal(t, "true", q.Get("closePosition"))
			placedStop = q.Get("stopPrice")
			_, _ = w.Write([]byte(`{"orderId":300,"symbol":"BTCUSDT","side":"SELL","type":"STOP_MARKET","price":"0","stopPrice":"50000","origQty":"0","time":1756500000000}`))
		}
	}))
	defer server.Close()

	err := newTestBroker(t, server.URL).ModifyStop(context.Background(),
		"BTCUSDT", core.SideLong, decimal.NewFromFloat(0.5), decimal.NewFromInt(50000))
	require.NoError(t, err)

	assert.Equal(t, []string{"200"}, cancelled, "only the stop order is replaced, take-profits stay")
	assert.Equal(t, "50000", placedStop)
}

func TestPlaceTakeProfit_ReplacesExistingTakeProfit(t *testing.T) {
	var cancelled []string
	var placedTrigger string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fapi/v1/openOrders":
			_, _ = w.Write([]byte(`[
				{"orderId":200,"symbol":"BTCUSDT","side":"SELL","type":"STOP_MARKET","price":"0","stopPrice":"49000","origQty":"0","closePosition":true,"time":1756500000000},
				{"orderId":201,"symbol":"BTCUSDT","side":"SELL","type":"TAKE_PROFIT_MARKET","price":"0","stopPrice":"52000","origQty":"0","closePosition":true,"time":1756500000000}
			]`))
		case r.Method == http.MethodDelete:
			cancelled = append(cancelled, r.URL.Query().Get("orderId"))
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost:
			q := r.URL.Query()
			assert.Equal(t, "SELL", q.Get("side"))
			assert.Equal(t, "TAKE_PROFIT_MARKET", q.Get("type"))
			assert.Equal(t, "true", q.Get("closePosition"))
			placedTrigger = q.Get("stopPrice")
			_, _ = w.Write([]byte(`{"orderId":301,"symbol":"BTCUSDT","side":"SELL","type":"TAKE_PROFIT_MARKET","price":"0","stopPrice":"53000","origQty":"0","time":1756500000000}`))
		}
	}))
	defer server.Close()

	err := newTestBroker(t, server.URL).PlaceTakeProfit(context.Background(),
		"BTCUSDT", core.SideLong, decimal.NewFromFloat(0.5), decimal.NewFromInt(53000))
	require.NoError(t, err)

	assert.Equal(t, []string{"201"}, cancelled, "only the take-profit is replaced, stops stay")
	assert.Equal(t, "53000", placedTrigger)
}

func TestGetKlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"), "public endpoint is unsigned")
		assert.Equal(t, "15m", r.URL.Query().Get("interval"))

		_, _ = w.Write([]byte(`[
			[1756500000000,"50000","50100","49900","50050","1234.5",1756500899999,"0",100,"0","0","0"],
			[1756500900000,"50050","50200","50000","50150","2345.6",1756501799999,"0",110,"0","0","0"]
		]`))
	}))
	defer server.Close()

	candles, err := newTestBroker(t, server.URL).GetKlines(context.Background(), "BTCUSDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Open.Equal(decimal.NewFromInt(50000)))
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(50150)))
	assert.Equal(t, int64(1756500000), candles[0].OpenTime.Unix())
}

func TestMapError_AuthCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	}))
	defer server.Close()

	_, err := newTestBroker(t, server.URL).GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticationFailed))
}

func TestMapError_OrderNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	}))
	defer server.Close()

	err := newTestBroker(t, server.URL).CancelOrder(context.Background(), "BTCUSDT", "999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOrderNotFound))
}

func TestGetAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"totalMarginBalance":"12345.67"}`))
	}))
	defer server.Close()

	account, err := newTestBroker(t, server.URL).GetAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, account.Equity.Equal(decimal.NewFromFloat(12345.67)))
}
