package core

import "github.com/shopspring/decimal"

// ActionType enumerates the broker/store mutations the decision engine can emit
type ActionType string

const (
	ActionPlaceOrder      ActionType = "PLACE_ORDER"
	ActionCancelOrder     ActionType = "CANCEL_ORDER"
	ActionModifyStop      ActionType = "MODIFY_STOP"
	ActionPlaceTakeProfit ActionType = "PLACE_TAKE_PROFIT"
	ActionPruneMetadata   ActionType = "PRUNE_METADATA"
)

// Action is one element of the ordered list the decision engine emits each
// cycle. Exactly one of the payload fields is set, selected by Type. Every
// action is safe to re-issue: a truncated cycle leaves a valid state that the
// next cycle corrects.
type Action struct {
	Type ActionType

	Place      *PlaceOrderAction
	Cancel     *CancelOrderAction
	Stop       *ModifyStopAction
	TakeProfit *PlaceTakeProfitAction
	Prune      *PruneMetadataAction
}

// PlaceOrderAction opens a new entry order and records it in the store
type PlaceOrderAction struct {
	Spec OrderSpec
}

// CancelOrderAction cancels a working order on the broker and deletes the
// local record
type CancelOrderAction struct {
	Instrument    string
	BrokerOrderID string
	Key           string // store key of the managed record, empty for orphaned broker orders
}

// ModifyStopAction repositions a position's stop-loss. Re-issuing it with the
// price the stop already holds is a no-op.
type ModifyStopAction struct {
	Instrument string
	Side       Side
	Size       decimal.Decimal
	Price      decimal.Decimal
	Breakeven  bool   // the stop moves to entry; sets the record's breakeven flag on success
	Key        string // store key of the managed record
}

// PlaceTakeProfitAction places the close-side take-profit order for a filled
// position that has none working
type PlaceTakeProfitAction struct {
	Instrument string
	Side       Side
	Size       decimal.Decimal
	Price      decimal.Decimal
}

// PruneMetadataAction removes a stale local record from the store. It never
// touches the broker.
type PruneMetadataAction struct {
	Key string
}
