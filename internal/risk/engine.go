// Package risk implements the synchronous pre-trade risk engine and the
// post-trade position/PnL/volatility bookkeeping it owns. Every public
// operation except SetRiskLimits (whose limit store has its own lock)
// acquires a single coarse lock guarding the engine's maps — contention is acceptable because pre-trade checks sit off the hottest
// wire-receive path, per the spec's concurrency model.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/position"
	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/internal/volatility"
	"github.com/marketcore/mm-engine/pkg/types"
)

// VolatilityWindow is the default window size for the risk engine's
// independent volatility estimator copy (the spec gives the market maker
// and the risk engine separate estimator instances).
const VolatilityWindow = 64

// Engine is the synchronous pre-trade risk engine. CheckOrder must be
// callable from any goroutine; UpdatePosition is the only mutator on the
// post-trade path.
type Engine struct {
	mu sync.Mutex

	limits      *limitStore
	positions   map[types.Symbol]*position.Tracker
	vol         map[types.Symbol]*volatility.Estimator
	openedAt    map[types.Symbol]time.Time // when the current non-flat position was opened
	peakUPnL    map[types.Symbol]decimal.Decimal
	dailyTrades map[types.Symbol]int
	dailyLoss   map[types.Symbol]decimal.Decimal

	metrics *telemetry.Registry
	log     *logrus.Entry
}

// NewEngine creates an empty risk engine. Symbols are fail-closed until
// SetRiskLimits is called for them. metrics may be nil, in which case no
// metrics are emitted.
func NewEngine(metrics *telemetry.Registry, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		limits:      newLimitStore(),
		positions:   make(map[types.Symbol]*position.Tracker),
		vol:         make(map[types.Symbol]*volatility.Estimator),
		openedAt:    make(map[types.Symbol]time.Time),
		peakUPnL:    make(map[types.Symbol]decimal.Decimal),
		dailyTrades: make(map[types.Symbol]int),
		dailyLoss:   make(map[types.Symbol]decimal.Decimal),
		metrics:     metrics,
		log:         log.WithField("component", "risk-engine"),
	}
}

// SetRiskLimits configures (or reconfigures) the hard ceilings for symbol.
func (e *Engine) SetRiskLimits(symbol types.Symbol, limits types.RiskLimits) {
	e.limits.set(symbol, limits)
}

// CheckOrder runs the synchronous pre-trade check. It returns false
// (reject) if:
//
//   - no limits are configured for order.Symbol (fail-closed),
//   - order.Quantity exceeds MaxOrderSize,
//   - the hypothetical new |position| exceeds MaxGrossPosition or
//     MaxNetPosition,
//   - the hypothetical new dollar exposure exceeds MaxDollarExposure,
//   - parametric 95% VaR for the hypothetical new position exceeds
//     VaRLimit,
//   - expected shortfall for the hypothetical new position exceeds
//     ESLimit,
//   - the position has been open longer than MaxPositionDuration and this
//     order would open further in the same direction,
//   - unrealized drawdown exceeds MaxDrawdownLimit,
//   - the symbol's daily realized loss already exceeds MaxDailyLoss, or
//     its daily trade count has already reached MaxDailyTrades.
//
// CheckOrder takes no action on the position/volatility state; that is
// UpdatePosition's job once a fill is reported.
func (e *Engine) CheckOrder(order types.Order) bool {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RiskCheckDuration.Observe(time.Since(start).Seconds())
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.limits.markChecked(order.Symbol)

	limits, ok := e.limits.get(order.Symbol)
	if !ok {
		return false // fail-closed: no limits configured
	}

	if order.Quantity.GreaterThan(limits.MaxOrderSize) {
		return false
	}

	tracker := e.trackerLocked(order.Symbol)
	currentPosition := tracker.Position

	var delta decimal.Decimal
	if order.IsBuy {
		delta = order.Quantity
	} else {
		delta = order.Quantity.Neg()
	}
	newPosition := currentPosition.Add(delta)

	if newPosition.Abs().GreaterThan(limits.MaxNetPosition) {
		return false
	}
	if newPosition.Abs().GreaterThan(limits.MaxGrossPosition) {
		return false
	}

	sigma := e.volatilityLocked(order.Symbol).Volatility()
	newPosF, _ := newPosition.Float64()

	varAmt := ValueAtRisk(newPosF, sigma)
	if varAmt > limits.VaRLimit {
		return false
	}
	esAmt := ExpectedShortfall(newPosF, sigma)
	if esAmt > limits.ESLimit {
		return false
	}

	exposure := newPosition.Abs().Mul(order.Price)
	if exposure.GreaterThan(limits.MaxDollarExposure) {
		return false
	}

	if opened, exists := e.openedAt[order.Symbol]; exists && !currentPosition.IsZero() {
		widening := currentPosition.Sign() == 0 || delta.Sign() == currentPosition.Sign()
		if widening && limits.MaxPositionDuration > 0 && time.Since(opened) > limits.MaxPositionDuration {
			return false
		}
	}

	if peak, exists := e.peakUPnL[order.Symbol]; exists {
		drawdown := peak.Sub(tracker.UnrealizedPnL)
		if drawdown.GreaterThan(limits.MaxDrawdownLimit) && limits.MaxDrawdownLimit.Sign() > 0 {
			return false
		}
	}

	if limits.MaxDailyLoss.Sign() > 0 {
		loss := e.dailyLoss[order.Symbol]
		if loss.Neg().GreaterThan(limits.MaxDailyLoss) {
			return false
		}
	}
	if limits.MaxDailyTrades > 0 && e.dailyTrades[order.Symbol] >= limits.MaxDailyTrades {
		return false
	}

	return true
}

// UpdatePosition folds a fill into the position tracker, recomputes
// unrealized PnL against the trade price, feeds the volatility estimator,
// and appends the trade to the bounded recent-trades ring.
func (e *Engine) UpdatePosition(symbol types.Symbol, trade types.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tracker := e.trackerLocked(symbol)
	wasFlat := tracker.Position.IsZero()
	realizedBefore := tracker.RealizedPnL

	tracker.ApplyTrade(trade, trade.Price)

	if wasFlat && !tracker.Position.IsZero() {
		e.openedAt[symbol] = trade.TS
	}
	if tracker.Position.IsZero() {
		delete(e.openedAt, symbol)
		delete(e.peakUPnL, symbol)
	} else if peak, exists := e.peakUPnL[symbol]; !exists || tracker.UnrealizedPnL.GreaterThan(peak) {
		e.peakUPnL[symbol] = tracker.UnrealizedPnL
	}

	e.dailyTrades[symbol]++
	if realized := tracker.RealizedPnL.Sub(realizedBefore); realized.Sign() < 0 {
		e.dailyLoss[symbol] = e.dailyLoss[symbol].Add(realized)
	}

	mid, _ := trade.Price.Float64()
	e.volatilityLocked(symbol).Update(mid)

	if status, ok := e.statusLocked(symbol); ok && e.metrics != nil {
		e.metrics.Position.WithLabelValues(symbol).Set(status.Position)
		if status.GrossPositionUsage >= 1 || status.NetPositionUsage >= 1 || status.DollarExposureUsage >= 1 {
			e.log.WithFields(logrus.Fields{
				"symbol":                symbol,
				"gross_position_usage":  status.GrossPositionUsage,
				"net_position_usage":    status.NetPositionUsage,
				"dollar_exposure_usage": status.DollarExposureUsage,
			}).Warn("symbol at or above a configured risk limit")
		}
	}
}

// ResetDaily clears the per-symbol daily trade counter and daily realized
// loss accumulator. Not part of the hot path; nothing in this module calls
// it on a schedule (the supervisor does not), so callers invoke it
// explicitly.
func (e *Engine) ResetDaily(symbol types.Symbol) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyTrades[symbol] = 0
	e.dailyLoss[symbol] = decimal.Zero
}

// Position returns a snapshot of the tracker for symbol, or a zero-value
// tracker if the symbol has never been observed.
func (e *Engine) Position(symbol types.Symbol) position.Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.trackerLocked(symbol)
	return *t
}

// NetPosition returns the current signed position for symbol as a float64,
// for consumers (the market maker's inventory-skew math) that work in
// plain floating point rather than decimal.Decimal.
func (e *Engine) NetPosition(symbol types.Symbol) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, _ := e.trackerLocked(symbol).Position.Float64()
	return pos
}

// Volatility returns the risk engine's own volatility estimate for symbol.
func (e *Engine) Volatility(symbol types.Symbol) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volatilityLocked(symbol).Volatility()
}

// Status returns the usage of each configured limit for symbol, for
// metrics/observability. Returns false if no limits are configured.
func (e *Engine) Status(symbol types.Symbol) (LimitStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(symbol)
}

// statusLocked is Status's body, callable by mutators that already hold e.mu
// (UpdatePosition feeds the result straight into the telemetry registry
// without a second lock acquisition).
func (e *Engine) statusLocked(symbol types.Symbol) (LimitStatus, bool) {
	limits, ok := e.limits.get(symbol)
	if !ok {
		return LimitStatus{}, false
	}
	tracker := e.trackerLocked(symbol)
	pos, _ := tracker.Position.Float64()

	exposure := decimal.Zero
	if n := len(tracker.RecentTrades); n > 0 {
		exposure = tracker.Position.Abs().Mul(tracker.RecentTrades[n-1].Price)
	}
	tradesUsage := 0.0
	if limits.MaxDailyTrades > 0 {
		tradesUsage = float64(e.dailyTrades[symbol]) / float64(limits.MaxDailyTrades)
	}

	return LimitStatus{
		Symbol:              symbol,
		Position:            pos,
		GrossPositionUsage:  usageRatio(tracker.Position, limits.MaxGrossPosition),
		NetPositionUsage:    usageRatio(tracker.Position, limits.MaxNetPosition),
		DollarExposureUsage: usageRatio(exposure, limits.MaxDollarExposure),
		DailyLossUsage:      usageRatio(e.dailyLoss[symbol], limits.MaxDailyLoss),
		DailyTradesUsage:    tradesUsage,
	}, true
}

func (e *Engine) trackerLocked(symbol types.Symbol) *position.Tracker {
	t, ok := e.positions[symbol]
	if !ok {
		t = position.NewTracker()
		e.positions[symbol] = t
	}
	return t
}

func (e *Engine) volatilityLocked(symbol types.Symbol) *volatility.Estimator {
	v, ok := e.vol[symbol]
	if !ok {
		v = volatility.NewEstimator(VolatilityWindow)
		e.vol[symbol] = v
	}
	return v
}
