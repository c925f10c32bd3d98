// Package marketmaker implements the per-symbol quote ladder: on every
// top-of-book update it recomputes an inventory-aware spread, cancels the
// symbol's outstanding quotes, and submits a fresh bid/ask pair at each
// level. Adapted from the teacher's quote_generator.go, collapsed from a
// multi-component (spread calculator / inventory manager / quote
// generator) object graph into a single locked struct per the spec's
// simpler per-maker-lock concurrency model.
package marketmaker

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/volatility"
	"github.com/marketcore/mm-engine/pkg/types"
)

// Z95 et al. live in internal/risk; the maker does not need VaR math.

// orderIDCounter is the process-global monotonic counter backing order
// IDs. A package-level atomic, per the spec's design note: "no lock
// required... order IDs are opaque strings."
var orderIDCounter atomic.Uint64

func nextOrderID() string {
	return fmt.Sprintf("MM_%d", orderIDCounter.Add(1))
}

// PositionSource supplies the current signed position for a symbol, used
// to compute the inventory-skew term. The risk engine implements this.
type PositionSource interface {
	NetPosition(symbol types.Symbol) float64
}

// OrderSink is the order manager's submission surface, as seen by the
// market maker: submit returns whether the order was accepted (passed
// pre-trade risk and was enqueued), cancel is fire-and-forget.
type OrderSink interface {
	SubmitOrder(order types.Order) bool
	CancelOrder(symbol types.Symbol, orderID string)
}

// symbolState is the per-symbol mutable state the maker owns: its own
// volatility estimator (kept separate from the risk engine's, per the
// spec's design note that the maker and the risk engine each hold an
// independent estimator instance) plus the symbol's currently resting
// order IDs.
type symbolState struct {
	vol          *volatility.Estimator
	activeOrders []string
}

// MarketMaker generates and maintains the quote ladder for every symbol
// configured via ConfigureSymbol. update_quotes and configure_symbol are
// serialized by a single per-maker lock, per the spec: the whole object
// is the unit of mutual exclusion, not each symbol independently.
type MarketMaker struct {
	mu sync.Mutex

	params  map[types.Symbol]types.MakerParams
	symbols map[types.Symbol]*symbolState

	positions PositionSource
	orders    OrderSink
	log       *logrus.Entry
}

// NewMarketMaker creates a market maker with no symbols configured yet.
// Unconfigured symbols are inert for quoting, per the spec's
// configuration-absence error kind.
func NewMarketMaker(positions PositionSource, orders OrderSink, log *logrus.Entry) *MarketMaker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MarketMaker{
		params:    make(map[types.Symbol]types.MakerParams),
		symbols:   make(map[types.Symbol]*symbolState),
		positions: positions,
		orders:    orders,
		log:       log.WithField("component", "marketmaker"),
	}
}

// ConfigureSymbol installs (or replaces) the quoting parameters for a
// symbol. Called before the symbol will receive any quotes.
func (m *MarketMaker) ConfigureSymbol(symbol types.Symbol, params types.MakerParams) error {
	if !params.Valid() {
		return fmt.Errorf("invalid maker params for %s", symbol)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.params[symbol] = params
	if _, ok := m.symbols[symbol]; !ok {
		m.symbols[symbol] = &symbolState{
			vol: volatility.NewEstimator(volatility.DefaultWindowSize),
		}
	}
	return nil
}

// UpdateQuotes implements marketdata.QuoteConsumer: it is called once per
// drained top-of-book tick.
func (m *MarketMaker) UpdateQuotes(symbol types.Symbol, quote types.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()

	params, ok := m.params[symbol]
	if !ok {
		return // no configuration: inert for quoting
	}
	state := m.symbols[symbol]

	mid := quote.Mid()
	state.vol.Update(mid)
	sigma := state.vol.Volatility()

	position := m.positions.NetPosition(symbol)
	inventoryRatio := 0.0
	if params.BaseSize.Sign() != 0 {
		baseSize, _ := params.BaseSize.Float64()
		inventoryRatio = position / baseSize
	}

	adjustedSpread := params.SpreadPct * (1 + inventoryRatio*params.SkewFactor*sigma)

	m.cancelActive(symbol, state)

	skewShift := inventoryRatio * params.SkewFactor
	baseSize, _ := params.BaseSize.Float64()

	for l := 0; l < params.Levels; l++ {
		mult := 1 + float64(l)*params.LevelSpacing

		bidFactor := 1 - adjustedSpread*mult - skewShift
		askFactor := 1 + adjustedSpread*mult - skewShift

		bidPx := roundToTick(mid*bidFactor, params.TickSize)
		askPx := roundToTick(mid*askFactor, params.TickSize)
		size := baseSize / math.Pow(2, float64(l))

		if !validPrice(bidPx) || !validPrice(askPx) || !validPrice(size) {
			m.log.WithField("symbol", symbol).Warn("degenerate quote math, skipping level")
			continue
		}

		m.submitLevel(symbol, bidPx, size, true, state)
		m.submitLevel(symbol, askPx, size, false, state)
	}
}

func (m *MarketMaker) submitLevel(symbol types.Symbol, price, size float64, isBuy bool, state *symbolState) {
	order := types.Order{
		OrderID:  nextOrderID(),
		Symbol:   symbol,
		Price:    decimal.NewFromFloat(price),
		Quantity: decimal.NewFromFloat(size),
		IsBuy:    isBuy,
		TS:       time.Now(),
		Status:   types.OrderStatusNew,
	}
	if m.orders.SubmitOrder(order) {
		state.activeOrders = append(state.activeOrders, order.OrderID)
	}
}

func (m *MarketMaker) cancelActive(symbol types.Symbol, state *symbolState) {
	for _, id := range state.activeOrders {
		m.orders.CancelOrder(symbol, id)
	}
	state.activeOrders = state.activeOrders[:0]
}

// roundToTick implements round(p/t)*t with half-away-from-zero rounding,
// for positive p and t.
func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return 0
	}
	ratio := price / tick
	var rounded float64
	if ratio >= 0 {
		rounded = math.Floor(ratio + 0.5)
	} else {
		rounded = math.Ceil(ratio - 0.5)
	}
	return rounded * tick
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
