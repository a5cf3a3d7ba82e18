// Package trading holds the decision engine and order lifecycle logic
package trading

import (
	"futures_orchestrator/internal/core"

	"github.com/shopspring/decimal"
)

// Reconcile compares local metadata against broker truth. It is a pure
// function over one cycle's fetches: local records the broker no longer
// knows become OrphanedLocal, broker entry orders with no local record
// become OrphanedBroker, and everything else pairs up in Matched.
//
// A local record matches a broker order by client order id first, broker
// order id second; a record carrying neither id falls back to instrument,
// side and entry price within tolerance. A record whose order is gone may
// instead match a position on the same instrument and side, which means
// the entry filled.
func Reconcile(local []core.ManagedOrder, orders []core.BrokerOrder, positions []core.OpenPosition) core.ReconciliationDiff {
	ordersByClientID := make(map[string]*core.BrokerOrder)
	ordersByID := make(map[string]*core.BrokerOrder)
	for i := range orders {
		o := &orders[i]
		if o.ClientID != "" {
			ordersByClientID[o.ClientID] = o
		}
		ordersByID[o.ID] = o
	}

	positionsByKey := make(map[string]*core.OpenPosition)
	for i := range positions {
		p := &positions[i]
		positionsByKey[core.OrderKey(p.Instrument, p.Side)] = p
	}

	diff := core.ReconciliationDiff{}
	claimedOrders := make(map[string]bool)

	for _, record := range local {
		var order *core.BrokerOrder
		if record.ClientOrderID != "" {
			order = ordersByClientID[record.ClientOrderID]
		}
		if order == nil && record.BrokerOrderID != "" {
			order = ordersByID[record.BrokerOrderID]
		}
		if order == nil && record.ClientOrderID == "" && record.BrokerOrderID == "" {
			order = matchByPrice(record, orders, claimedOrders)
		}

		position := positionsByKey[record.Key]

		if order == nil && position == nil {
			diff.OrphanedLocal = append(diff.OrphanedLocal, record)
			continue
		}

		if order != nil {
			claimedOrders[order.ID] = true
		}
		diff.Matched = append(diff.Matched, core.MatchedEntry{
			Local:    record,
			Order:    order,
			Position: position,
		})
	}

	// Broker entry orders nobody claims. Reduce-only orders are stop and
	// take-profit legs, not entries, so they are not reported.
	for i := range orders {
		o := orders[i]
		if claimedOrders[o.ID] || o.ReduceOnly {
			continue
		}
		diff.OrphanedBroker = append(diff.OrphanedBroker, o)
	}

	return diff
}

// entryPriceTolerance is the relative price distance under which an id-less
// record is considered the same order as a broker entry.
var entryPriceTolerance = decimal.NewFromFloat(0.0005)

// matchByPrice pairs a record that predates client order ids with an
// unclaimed entry order on the same instrument and side.
func matchByPrice(record core.ManagedOrder, orders []core.BrokerOrder, claimed map[string]bool) *core.BrokerOrder {
	for i := range orders {
		o := &orders[i]
		if claimed[o.ID] || o.ReduceOnly {
			continue
		}
		if o.Instrument != record.Instrument || o.Side != record.Side {
			continue
		}
		if record.Entry.IsZero() || o.Price.IsZero() {
			continue
		}
		drift := o.Price.Sub(record.Entry).Abs().Div(record.Entry)
		if drift.LessThanOrEqual(entryPriceTolerance) {
			return o
		}
	}
	return nil
}

// AttachProtection copies the working protective order prices onto each
// position: the close-side STOP_MARKET trigger into Stop and the close-side
// TAKE_PROFIT_MARKET trigger into TakeProfit. Breakeven and re-arming checks
// compare these against the local record.
func AttachProtection(positions []core.OpenPosition, orders []core.BrokerOrder) []core.OpenPosition {
	out := make([]core.OpenPosition, len(positions))
	copy(out, positions)

	for i := range out {
		closeSide := out[i].Side.Opposite()
		for _, o := range orders {
			if o.Instrument != out[i].Instrument || o.Side != closeSide {
				continue
			}
			if o.StopPrice.LessThanOrEqual(decimal.Zero) {
				continue
			}
			switch o.Type {
			case "STOP_MARKET":
				if out[i].Stop.IsZero() {
					out[i].Stop = o.StopPrice
				}
			case "TAKE_PROFIT_MARKET":
				if out[i].TakeProfit.IsZero() {
					out[i].TakeProfit = o.StopPrice
				}
			}
		}
	}
	return out
}
