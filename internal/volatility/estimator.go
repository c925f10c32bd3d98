// Package volatility implements the per-symbol rolling log-return
// volatility estimator shared by the risk engine and the market maker.
// Each owns an independent copy, per the spec's ownership model.
package volatility

import (
	"math"
	"sync"
)

// DefaultWindowSize is used when a caller constructs an Estimator with a
// window smaller than 2.
const DefaultWindowSize = 64

// Estimator maintains a bounded FIFO of recent mid prices and the
// log-returns derived from them, and produces a rolling standard deviation
// of those returns as the current volatility estimate.
type Estimator struct {
	mu sync.Mutex

	windowSize int
	prices     []float64 // bounded to windowSize
	returns    []float64 // bounded to windowSize-1
}

// NewEstimator creates an estimator with the given window size, the
// maximum number of mid prices retained. A size smaller than 2 uses
// DefaultWindowSize.
func NewEstimator(windowSize int) *Estimator {
	if windowSize <= 1 {
		windowSize = DefaultWindowSize
	}
	return &Estimator{
		windowSize: windowSize,
		prices:     make([]float64, 0, windowSize),
		returns:    make([]float64, 0, windowSize-1),
	}
}

// Update appends the latest mid price. Non-positive prices are rejected —
// the caller skips the update rather than poisoning the window with a
// log of a non-positive number. Once at least two prices are known, the
// natural-log return between the last two prices is appended to the
// return window, evicting the oldest entry once the window is full.
func (e *Estimator) Update(price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.prices) > 0 {
		prev := e.prices[len(e.prices)-1]
		ret := math.Log(price / prev)
		if !math.IsNaN(ret) && !math.IsInf(ret, 0) {
			if len(e.returns) == e.windowSize-1 {
				e.returns = e.returns[1:]
			}
			e.returns = append(e.returns, ret)
		}
	}

	if len(e.prices) == e.windowSize {
		e.prices = e.prices[1:]
	}
	e.prices = append(e.prices, price)
}

// SeedPrice records a price-only observation without attempting to derive
// a return from it. It only records a price while the window is empty.
// Neither the market maker nor the risk engine calls it: both feed
// prices through Update, which derives no return from the first price.
func (e *Estimator) SeedPrice(price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prices) == 0 {
		e.prices = append(e.prices, price)
	}
}

// Volatility returns sqrt(mean(r^2) - mean(r)^2) over the current
// log-return window, or 0 when fewer than two returns exist, or when the
// computation would otherwise be degenerate (NaN/Inf never escapes).
func (e *Estimator) Volatility() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volatilityLocked()
}

func (e *Estimator) volatilityLocked() float64 {
	n := len(e.returns)
	if n < 2 {
		return 0
	}

	var sum, sumSq float64
	for _, r := range e.returns {
		sum += r
		sumSq += r * r
	}
	mean := sum / float64(n)
	meanSq := sumSq / float64(n)

	variance := meanSq - mean*mean
	if variance <= 0 || math.IsNaN(variance) {
		return 0
	}
	sigma := math.Sqrt(variance)
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0
	}
	return sigma
}

// NumObservations returns how many prices the window currently holds (at
// most the window size), mostly useful for tests asserting the zero-init
// invariant.
func (e *Estimator) NumObservations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prices)
}
