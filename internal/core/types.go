// Package core defines the shared data model and interfaces for the orchestrator
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing side for a position side
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Direction is the advisory signal direction. Unlike Side it has an explicit
// "none" value meaning the model sees no trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Side converts a tradable direction to an order side. Only valid for
// DirectionLong and DirectionShort.
func (d Direction) Side() Side {
	if d == DirectionShort {
		return SideShort
	}
	return SideLong
}

// OrderStatus tracks the lifecycle of a managed order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING" // sent, broker id not yet confirmed
	OrderStatusWorking   OrderStatus = "WORKING" // resting on the broker's book
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Candle is one OHLCV bar
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// AdvisorySuggestion is one model output for one instrument in one cycle.
// It is produced fresh each cycle, never mutated, and discarded if not acted
// upon.
type AdvisorySuggestion struct {
	Instrument string
	Direction  Direction
	Entry      decimal.Decimal
	Stop       decimal.Decimal
	Targets    []decimal.Decimal // ordered, nearest first
	Confidence float64           // 0..10
	RiskReward float64           // reward distance / risk distance
	Rationale  string
	Timestamp  time.Time
}

// ManagedOrder is the orchestrator's local bookkeeping record for an order it
// believes it placed. The broker is the source of truth for existence and
// status; this record is a hint that lets pruning and breakeven state survive
// restarts.
type ManagedOrder struct {
	Key           string            `json:"key"` // instrument-side, e.g. "ETHUSDT-LONG"
	BrokerOrderID string            `json:"broker_order_id,omitempty"`
	ClientOrderID string            `json:"client_order_id,omitempty"`
	Instrument    string            `json:"instrument"`
	Side          Side              `json:"side"`
	Entry         decimal.Decimal   `json:"entry"`
	Stop          decimal.Decimal   `json:"stop"`
	Targets       []decimal.Decimal `json:"targets"`
	Quantity      decimal.Decimal   `json:"quantity"`
	Status        OrderStatus       `json:"status"`
	BreakevenDone bool              `json:"breakeven_done"`
	CreatedAt     time.Time         `json:"created_at"`
}

// OrderKey builds the store key for an instrument+side pair
func OrderKey(instrument string, side Side) string {
	return instrument + "-" + string(side)
}

// OpenPosition is a broker-reported position, read-only from the
// orchestrator's perspective and fetched fresh every cycle.
type OpenPosition struct {
	Instrument string
	Side       Side
	Entry      decimal.Decimal
	Stop       decimal.Decimal // zero when no stop order is working
	TakeProfit decimal.Decimal // zero when no take-profit order is working
	Size       decimal.Decimal
	MarkPrice  decimal.Decimal
}

// BrokerOrder is a broker-reported working order
type BrokerOrder struct {
	ID         string
	ClientID   string
	Instrument string
	Side       Side
	Type       string // LIMIT, STOP_MARKET, TAKE_PROFIT_MARKET, ...
	Price      decimal.Decimal
	StopPrice  decimal.Decimal
	Quantity   decimal.Decimal
	ReduceOnly bool
	CreatedAt  time.Time
}

// MatchedEntry pairs a local record with the broker state that confirms it.
// Order and Position may each be nil, but never both.
type MatchedEntry struct {
	Local    ManagedOrder
	Order    *BrokerOrder
	Position *OpenPosition
}

// ReconciliationDiff is the per-cycle comparison between local metadata and
// broker truth.
type ReconciliationDiff struct {
	OrphanedLocal  []ManagedOrder // local record, nothing on the broker -> prune
	OrphanedBroker []BrokerOrder  // broker entity, no local record -> ignored
	Matched        []MatchedEntry
}

// EconomicEvent is one upcoming macro calendar entry
type EconomicEvent struct {
	Time   time.Time `json:"time"`
	Title  string    `json:"title"`
	Impact string    `json:"impact"`
}

// InstrumentSnapshot is the per-instrument slice of the market payload
type InstrumentSnapshot struct {
	Instrument string                 `json:"instrument"`
	LastPrice  decimal.Decimal        `json:"last_price"`
	Detail     TimeframeDetail        `json:"m15"`
	Context    map[string]TrendReport `json:"context"` // keyed by timeframe, e.g. "1h", "4h"
}

// TimeframeDetail carries recent bars plus indicator series for the detail
// timeframe the advisory model reasons over.
type TimeframeDetail struct {
	Candles []Candle          `json:"ohlcv"`
	EMA20   []decimal.Decimal `json:"ema20"`
	EMA50   []decimal.Decimal `json:"ema50"`
	EMA200  []decimal.Decimal `json:"ema200"`
	RSI14   []decimal.Decimal `json:"rsi14"`
	MACD    []decimal.Decimal `json:"macd"`
}

// TrendReport is a compact latest-values view of a higher timeframe
type TrendReport struct {
	EMA20 decimal.Decimal `json:"ema20"`
	EMA50 decimal.Decimal `json:"ema50"`
	RSI   decimal.Decimal `json:"rsi"`
	MACD  decimal.Decimal `json:"macd"`
	Trend int             `json:"trend"` // 1 up, -1 down, 0 flat
}

// MarketSnapshot is the assembled market/context payload for one cycle
type MarketSnapshot struct {
	Instruments []InstrumentSnapshot `json:"instruments"`
	LeaderBias  *TrendReport         `json:"leader_bias,omitempty"` // market-leader strength index
	TakenAt     time.Time            `json:"taken_at"`
}

// AdvisoryPayload is the full request sent to the advisory service
type AdvisoryPayload struct {
	Snapshot    MarketSnapshot  `json:"snapshot"`
	Events      []EconomicEvent `json:"events,omitempty"`
	SessionOpen bool            `json:"session_open"`
}

// OrderSpec describes an order to be placed on the broker
type OrderSpec struct {
	Instrument    string
	Side          Side
	Entry         decimal.Decimal
	Stop          decimal.Decimal
	Targets       []decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
}

// AccountSummary is the subset of account state used for position sizing
type AccountSummary struct {
	Equity decimal.Decimal
}
