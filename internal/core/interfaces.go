package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Broker is the authoritative external venue. Implementations must surface
// authentication failures as apperrors.ErrAuthenticationFailed and transient
// network problems as apperrors.ErrNetwork so callers can apply the right
// degradation.
type Broker interface {
	GetName() string
	CheckHealth(ctx context.Context) error

	GetPositions(ctx context.Context) ([]OpenPosition, error)
	GetOpenOrders(ctx context.Context) ([]BrokerOrder, error)
	GetAccount(ctx context.Context) (AccountSummary, error)

	PlaceOrder(ctx context.Context, spec OrderSpec) (BrokerOrder, error)
	CancelOrder(ctx context.Context, instrument, orderID string) error
	ModifyStop(ctx context.Context, instrument string, side Side, size, price decimal.Decimal) error
	PlaceTakeProfit(ctx context.Context, instrument string, side Side, size, price decimal.Decimal) error

	GetKlines(ctx context.Context, instrument, interval string, limit int) ([]Candle, error)
	GetLatestPrice(ctx context.Context, instrument string) (decimal.Decimal, error)
}

// Advisor is the untrusted external signal oracle. A nil error guarantees
// every returned suggestion passed defensive validation; any malformed
// response yields an error, never a partially populated suggestion.
type Advisor interface {
	GetSuggestions(ctx context.Context, payload AdvisoryPayload) ([]AdvisorySuggestion, error)
}

// Calendar fetches upcoming macro events. Implementations degrade to an empty
// slice on any failure and never return a hard error to the cycle.
type Calendar interface {
	UpcomingEvents(ctx context.Context, days int) []EconomicEvent
}

// MetadataStore is the durable mapping from order key to ManagedOrder. It is
// the only state shared across cycles and must survive process restarts.
type MetadataStore interface {
	Put(ctx context.Context, order ManagedOrder) error
	Get(ctx context.Context, key string) (ManagedOrder, bool, error)
	List(ctx context.Context) ([]ManagedOrder, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
