// Package broker provides Binance USDT-M futures connectivity
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	apperrors "futures_orchestrator/pkg/errors"
	httpclient "futures_orchestrator/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const requestTimeout = 15 * time.Second

// BinanceBroker implements core.Broker against the USDT-M futures REST API.
// Authenticated and public endpoints go through separate clients so public
// calls never carry credentials.
type BinanceBroker struct {
	signed  *httpclient.Client
	public  *httpclient.Client
	limiter *rate.Limiter
	logger  core.ILogger
}

// NewBinanceBroker creates a Binance futures broker adapter
func NewBinanceBroker(cfg config.BrokerConfig, logger core.ILogger) *BinanceBroker {
	return &BinanceBroker{
		signed:  httpclient.NewClient(cfg.BaseURL, requestTimeout, newHMACSigner(cfg)),
		public:  httpclient.NewClient(cfg.BaseURL, requestTimeout, nil),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit*2),
		logger:  logger.WithField("component", "broker"),
	}
}

// GetName returns the broker identifier
func (b *BinanceBroker) GetName() string {
	return "binance"
}

// CheckHealth pings the REST endpoint
func (b *BinanceBroker) CheckHealth(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.public.Get(ctx, "/fapi/v1/ping", nil); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err)
	}
	return nil
}

type positionRisk struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	EntryPrice  string `json:"entryPrice"`
	MarkPrice   string `json:"markPrice"`
}

// GetPositions returns open positions with nonzero size. The Stop field is
// left zero here; callers derive the working stop from open orders.
func (b *BinanceBroker) GetPositions(ctx context.Context) ([]core.OpenPosition, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := b.signed.Get(ctx, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, b.mapError(err)
	}

	var raw []positionRisk
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}

	var positions []core.OpenPosition
	for _, p := range raw {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}

		side := core.SideLong
		if amt.IsNegative() {
			side = core.SideShort
		}

		entry, _ := decimal.NewFromString(p.EntryPrice)
		mark, _ := decimal.NewFromString(p.MarkPrice)

		positions = append(positions, core.OpenPosition{
			Instrument: p.Symbol,
			Side:       side,
			Entry:      entry,
			Size:       amt.Abs(),
			MarkPrice:  mark,
		})
	}

	return positions, nil
}

type rawOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
	Time          int64  `json:"time"`
}

func (r rawOrder) toBrokerOrder() core.BrokerOrder {
	price, _ := decimal.NewFromString(r.Price)
	stopPrice, _ := decimal.NewFromString(r.StopPrice)
	qty, _ := decimal.NewFromString(r.OrigQty)

	side := core.SideLong
	if r.Side == "SELL" {
		side = core.SideShort
	}

	return core.BrokerOrder{
		ID:         fmt.Sprintf("%d", r.OrderID),
		ClientID:   r.ClientOrderID,
		Instrument: r.Symbol,
		Side:       side,
		Type:       r.Type,
		Price:      price,
		StopPrice:  stopPrice,
		Quantity:   qty,
		ReduceOnly: r.ReduceOnly || r.ClosePosition,
		CreatedAt:  time.UnixMilli(r.Time).UTC(),
	}
}

// GetOpenOrders returns all working orders across instruments
func (b *BinanceBroker) GetOpenOrders(ctx context.Context) ([]core.BrokerOrder, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := b.signed.Get(ctx, "/fapi/v1/openOrders", nil)
	if err != nil {
		return nil, b.mapError(err)
	}

	var raw []rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse open orders: %w", err)
	}

	orders := make([]core.BrokerOrder, 0, len(raw))
	for _, r := range raw {
		orders = append(orders, r.toBrokerOrder())
	}
	return orders, nil
}

// GetAccount returns the margin balance used for position sizing
func (b *BinanceBroker) GetAccount(ctx context.Context) (core.AccountSummary, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return core.AccountSummary{}, err
	}

	body, err := b.signed.Get(ctx, "/fapi/v2/account", nil)
	if err != nil {
		return core.AccountSummary{}, b.mapError(err)
	}

	var raw struct {
		TotalMarginBalance string `json:"totalMarginBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.AccountSummary{}, fmt.Errorf("failed to parse account: %w", err)
	}

	equity, err := decimal.NewFromString(raw.TotalMarginBalance)
	if err != nil {
		return core.AccountSummary{}, fmt.Errorf("failed to parse margin balance %q: %w", raw.TotalMarginBalance, err)
	}

	return core.AccountSummary{Equity: equity}, nil
}

// PlaceOrder places a GTC limit entry order
func (b *BinanceBroker) PlaceOrder(ctx context.Context, spec core.OrderSpec) (core.BrokerOrder, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return core.BrokerOrder{}, err
	}

	params := map[string]string{
		"symbol":      spec.Instrument,
		"side":        orderSide(spec.Side),
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"price":       spec.Entry.String(),
		"quantity":    spec.Quantity.String(),
	}
	if spec.ClientOrderID != "" {
		params["newClientOrderId"] = spec.ClientOrderID
	}

	body, err := b.signed.PostForm(ctx, "/fapi/v1/order", params)
	if err != nil {
		return core.BrokerOrder{}, b.mapError(err)
	}

	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.BrokerOrder{}, fmt.Errorf("failed to parse order response: %w", err)
	}

	order := raw.toBrokerOrder()
	b.logger.Info("Order placed", "instrument", spec.Instrument, "side", spec.Side,
		"price", spec.Entry, "quantity", spec.Quantity, "order_id", order.ID)
	return order, nil
}

// CancelOrder cancels a working order by broker id
func (b *BinanceBroker) CancelOrder(ctx context.Context, instrument, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := b.signed.Delete(ctx, "/fapi/v1/order", map[string]string{
		"symbol":  instrument,
		"orderId": orderID,
	})
	if err != nil {
		return b.mapError(err)
	}

	b.logger.Info("Order cancelled", "instrument", instrument, "order_id", orderID)
	return nil
}

// ModifyStop replaces the protective stop for a position: any working
// close-side stop order is cancelled, then a new close-position stop is
// placed at the given price.
func (b *BinanceBroker) ModifyStop(ctx context.Context, instrument string, side core.Side, size, price decimal.Decimal) error {
	orders, err := b.GetOpenOrders(ctx)
	if err != nil {
		return err
	}

	closeSide := side.Opposite()
	for _, o := range orders {
		if o.Instrument != instrument || o.Type != "STOP_MARKET" || o.Side != closeSide {
			continue
		}
		if err := b.CancelOrder(ctx, instrument, o.ID); err != nil && !errors.Is(err, apperrors.ErrOrderNotFound) {
			return fmt.Errorf("failed to cancel prior stop %s: %w", o.ID, err)
		}
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = b.signed.PostForm(ctx, "/fapi/v1/order", map[string]string{
		"symbol":        instrument,
		"side":          orderSide(closeSide),
		"type":          "STOP_MARKET",
		"stopPrice":     price.String(),
		"closePosition": "true",
	})
	if err != nil {
		return b.mapError(err)
	}

	b.logger.Info("Stop repositioned", "instrument", instrument, "side", side, "stop", price)
	return nil
}

// PlaceTakeProfit replaces the take-profit for a position: any working
// close-side take-profit order is cancelled, then a new close-position
// take-profit is placed at the given trigger price.
func (b *BinanceBroker) PlaceTakeProfit(ctx context.Context, instrument string, side core.Side, size, price decimal.Decimal) error {
	orders, err := b.GetOpenOrders(ctx)
	if err != nil {
		return err
	}

	closeSide := side.Opposite()
	for _, o := range orders {
		if o.Instrument != instrument || o.Type != "TAKE_PROFIT_MARKET" || o.Side != closeSide {
			continue
		}
		if err := b.CancelOrder(ctx, instrument, o.ID); err != nil && !errors.Is(err, apperrors.ErrOrderNotFound) {
			return fmt.Errorf("failed to cancel prior take-profit %s: %w", o.ID, err)
		}
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = b.signed.PostForm(ctx, "/fapi/v1/order", map[string]string{
		"symbol":        instrument,
		"side":          orderSide(closeSide),
		"type":          "TAKE_PROFIT_MARKET",
		"stopPrice":     price.String(),
		"closePosition": "true",
	})
	if err != nil {
		return b.mapError(err)
	}

	b.logger.Info("Take-profit placed", "instrument", instrument, "side", side, "price", price)
	return nil
}

type rawKline [12]json.RawMessage

// GetKlines fetches OHLCV bars for an interval
func (b *BinanceBroker) GetKlines(ctx context.Context, instrument, interval string, limit int) ([]core.Candle, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := b.public.Get(ctx, "/fapi/v1/klines", map[string]string{
		"symbol":   instrument,
		"interval": interval,
		"limit":    fmt.Sprintf("%d", limit),
	})
	if err != nil {
		return nil, b.mapError(err)
	}

	var raw []rawKline
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse klines: %w", err)
	}

	candles := make([]core.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(k rawKline) (core.Candle, error) {
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return core.Candle{}, fmt.Errorf("failed to parse kline open time: %w", err)
	}

	fields := make([]decimal.Decimal, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return core.Candle{}, fmt.Errorf("failed to parse kline field %d: %w", i, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return core.Candle{}, fmt.Errorf("failed to parse kline value %q: %w", s, err)
		}
		fields[i-1] = d
	}

	return core.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// GetLatestPrice fetches the current ticker price
func (b *BinanceBroker) GetLatestPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	body, err := b.public.Get(ctx, "/fapi/v1/ticker/price", map[string]string{"symbol": instrument})
	if err != nil {
		return decimal.Zero, b.mapError(err)
	}

	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse ticker: %w", err)
	}

	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price %q: %w", raw.Price, err)
	}
	return price, nil
}

func orderSide(s core.Side) string {
	if s == core.SideShort {
		return "SELL"
	}
	return "BUY"
}

// mapError translates API failures into the shared error taxonomy
func (b *BinanceBroker) mapError(err error) error {
	var apiErr *httpclient.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}

	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if jsonErr := json.Unmarshal(apiErr.Body, &errResp); jsonErr == nil {
		switch errResp.Code {
		case -2015, -2014, -1022:
			return apperrors.ErrAuthenticationFailed
		case -2010:
			return apperrors.ErrInsufficientFunds
		case -1003:
			return apperrors.ErrRateLimitExceeded
		case -1121:
			return apperrors.ErrInvalidSymbol
		case -2011, -2013:
			return apperrors.ErrOrderNotFound
		}
		if errResp.Code != 0 {
			return fmt.Errorf("binance error %d: %s", errResp.Code, errResp.Msg)
		}
	}

	switch apiErr.StatusCode {
	case 401, 403:
		return apperrors.ErrAuthenticationFailed
	case 429:
		return apperrors.ErrRateLimitExceeded
	}
	return err
}
