// Package position implements the per-symbol position tracker owned by
// the risk engine: signed position, VWAP (undefined when flat), realized
// and unrealized PnL, and a bounded ring of recent trades.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcore/mm-engine/pkg/types"
)

// MaxRecentTrades bounds the FIFO ring of trades retained per symbol.
const MaxRecentTrades = 1000

// Tracker holds the position state for a single symbol. It is not
// internally synchronized — callers (the risk engine) are expected to
// serialize access with their own coarse lock, per the spec's concurrency
// model for this component.
type Tracker struct {
	Position     decimal.Decimal
	vwap         decimal.Decimal
	vwapSet      bool // false means "undefined", per the spec's VWAP contract
	RealizedPnL  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RecentTrades []types.Trade // FIFO, capped at MaxRecentTrades
	LastUpdate   time.Time
}

// NewTracker creates a flat tracker with an undefined VWAP.
func NewTracker() *Tracker {
	return &Tracker{
		RecentTrades: make([]types.Trade, 0, 64),
	}
}

// VWAP returns the current volume-weighted average price and whether it is
// defined. It is undefined whenever Position == 0, per the spec's
// invariant, and must be treated as uninitialized by consumers until the
// next opening trade re-seeds it.
func (t *Tracker) VWAP() (decimal.Decimal, bool) {
	if t.Position.IsZero() {
		return decimal.Zero, false
	}
	return t.vwap, t.vwapSet
}

// ApplyTrade folds a new fill into the tracker's position, VWAP and PnL.
// The source's original VWAP update is only correct for same-side
// increases; this implements the corrected three-way split the spec
// prescribes:
//
//   - same-side increase (or opening from flat): VWAP becomes the
//     quantity-weighted average of the old and new fills.
//   - a trade that reduces |position| without crossing zero: VWAP is
//     unchanged, and the price difference between VWAP and the trade
//     price is realized into RealizedPnL for the closed quantity.
//   - a trade that crosses zero: the closing leg realizes PnL against the
//     old VWAP as above, and the residual quantity opens a fresh position
//     at trade.Price, becoming the new VWAP.
func (t *Tracker) ApplyTrade(trade types.Trade, lastPrice decimal.Decimal) {
	signedQty := trade.SignedQuantity()
	oldPos := t.Position
	newPos := oldPos.Add(signedQty)

	sameSign := oldPos.Sign() == 0 || signedQty.Sign() == 0 || oldPos.Sign() == signedQty.Sign()

	switch {
	case oldPos.IsZero():
		// Opening trade from flat.
		t.vwap = trade.Price
		t.vwapSet = true

	case sameSign:
		// Same-side increase: weighted average of old and new fills.
		oldAbs := oldPos.Abs()
		addAbs := signedQty.Abs()
		totalAbs := oldAbs.Add(addAbs)
		if totalAbs.Sign() > 0 && t.vwapSet {
			weighted := t.vwap.Mul(oldAbs).Add(trade.Price.Mul(addAbs))
			t.vwap = weighted.Div(totalAbs)
		} else {
			t.vwap = trade.Price
			t.vwapSet = true
		}

	case newPos.Sign() == 0 || newPos.Sign() == oldPos.Sign():
		// Reducing |position| without crossing zero: VWAP unchanged,
		// realize PnL on the closed quantity.
		closedQty := signedQty.Abs()
		if closedQty.GreaterThan(oldPos.Abs()) {
			closedQty = oldPos.Abs()
		}
		t.realize(oldPos, closedQty, trade.Price)

	default:
		// Crossing zero: close out the old position entirely, then open
		// the residual at trade.Price.
		t.realize(oldPos, oldPos.Abs(), trade.Price)
		t.vwap = trade.Price
		t.vwapSet = true
	}

	t.Position = newPos
	if newPos.IsZero() {
		t.vwapSet = false
		t.vwap = decimal.Zero
	}

	if t.vwapSet && !lastPrice.IsZero() {
		t.UnrealizedPnL = lastPrice.Sub(t.vwap).Mul(t.Position)
	} else if newPos.IsZero() {
		t.UnrealizedPnL = decimal.Zero
	}

	t.appendTrade(trade)
	t.LastUpdate = trade.TS
}

// realize books PnL for closedQty of the old position against the old
// VWAP and the execution price. oldPos carries the sign of the position
// being closed.
func (t *Tracker) realize(oldPos, closedQty decimal.Decimal, execPrice decimal.Decimal) {
	if closedQty.IsZero() || !t.vwapSet {
		return
	}
	var pnl decimal.Decimal
	if oldPos.Sign() > 0 {
		pnl = execPrice.Sub(t.vwap).Mul(closedQty)
	} else {
		pnl = t.vwap.Sub(execPrice).Mul(closedQty)
	}
	t.RealizedPnL = t.RealizedPnL.Add(pnl)
}

// MarkPrice recomputes UnrealizedPnL against a fresh mark, without
// ingesting a trade. Used when the risk engine wants to refresh PnL from
// market-data ticks alone.
func (t *Tracker) MarkPrice(price decimal.Decimal) {
	if !t.vwapSet || t.Position.IsZero() {
		t.UnrealizedPnL = decimal.Zero
		return
	}
	t.UnrealizedPnL = price.Sub(t.vwap).Mul(t.Position)
}

func (t *Tracker) appendTrade(trade types.Trade) {
	if len(t.RecentTrades) == MaxRecentTrades {
		copy(t.RecentTrades, t.RecentTrades[1:])
		t.RecentTrades = t.RecentTrades[:MaxRecentTrades-1]
	}
	t.RecentTrades = append(t.RecentTrades, trade)
}
