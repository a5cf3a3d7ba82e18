package trading

import (
	"futures_orchestrator/internal/core"

	"github.com/shopspring/decimal"
)

// targetTouched reports whether the mark price has reached the first
// take-profit level for the position's side.
func targetTouched(side core.Side, mark, firstTarget decimal.Decimal) bool {
	if side == core.SideLong {
		return mark.GreaterThanOrEqual(firstTarget)
	}
	return mark.LessThanOrEqual(firstTarget)
}

// stopAtEntry reports whether the working stop already sits at the entry
// price within the tolerance band. This is the idempotence check for the
// breakeven move: broker state decides, not local flags, so a restarted
// process with lost metadata still will not re-fire.
func stopAtEntry(stop, entry decimal.Decimal, tolerancePct float64) bool {
	if stop.IsZero() {
		return false
	}
	tolerance := entry.Mul(decimal.NewFromFloat(tolerancePct))
	return stop.Sub(entry).Abs().LessThanOrEqual(tolerance)
}

// BreakevenEligible decides whether a matched position should have its
// stop moved to the entry price. Requires a live position with a known
// first target whose level the mark price has touched, and a stop that
// is not already at entry.
func BreakevenEligible(entry core.MatchedEntry, tolerancePct float64) bool {
	pos := entry.Position
	if pos == nil || len(entry.Local.Targets) == 0 {
		return false
	}
	if !targetTouched(pos.Side, pos.MarkPrice, entry.Local.Targets[0]) {
		return false
	}
	return !stopAtEntry(pos.Stop, entry.Local.Entry, tolerancePct)
}
