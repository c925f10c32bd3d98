package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcore/mm-engine/pkg/types"
)

// limitStore holds the per-symbol RiskLimits configured via SetRiskLimits,
// plus a last-checked timestamp per symbol for observability. A symbol
// absent from the store is fail-closed: CheckOrder rejects every order for
// it until limits are configured.
type limitStore struct {
	mu          sync.RWMutex
	limits      map[types.Symbol]types.RiskLimits
	lastChecked map[types.Symbol]time.Time
}

func newLimitStore() *limitStore {
	return &limitStore{
		limits:      make(map[types.Symbol]types.RiskLimits),
		lastChecked: make(map[types.Symbol]time.Time),
	}
}

func (s *limitStore) set(symbol types.Symbol, limits types.RiskLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[symbol] = limits
}

func (s *limitStore) get(symbol types.Symbol) (types.RiskLimits, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.limits[symbol]
	return l, ok
}

func (s *limitStore) markChecked(symbol types.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChecked[symbol] = time.Now()
}

// LimitStatus reports how close a symbol's current state is to each of its
// configured ceilings, expressed as a fraction of the limit (0 = unused,
// 1.0 = at the limit, >1.0 = breached), plus the raw signed position that
// feeds the mm_position gauge. Intended for metrics/dashboards, not for the
// hot pre-trade check itself.
type LimitStatus struct {
	Symbol              types.Symbol
	Position            float64
	GrossPositionUsage  float64
	NetPositionUsage    float64
	DollarExposureUsage float64
	DailyLossUsage      float64
	DailyTradesUsage    float64
	LastChecked         time.Time
}

func usageRatio(current, limit decimal.Decimal) float64 {
	if limit.IsZero() {
		return 0
	}
	f, _ := current.Abs().Div(limit).Float64()
	return f
}
