package risk

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/pkg/types"
)

func baseLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxGrossPosition:    decimal.NewFromInt(100000),
		MaxNetPosition:      decimal.NewFromInt(100000),
		MaxDollarExposure:   decimal.NewFromInt(100000000),
		VaRLimit:            1e9,
		ESLimit:             1e9,
		MaxDrawdownLimit:    decimal.NewFromInt(1000000),
		MaxPositionDuration: 0,
		MaxOrderSize:        decimal.NewFromInt(10000),
		MaxDailyLoss:        decimal.Zero,
		MaxDailyTrades:      0,
	}
}

func order(symbol string, qty float64, isBuy bool) types.Order {
	return types.Order{
		OrderID:  "T1",
		Symbol:   symbol,
		Price:    decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(qty),
		IsBuy:    isBuy,
		TS:       time.Now(),
		Status:   types.OrderStatusNew,
	}
}

func TestEngine_FailClosedWithoutLimits(t *testing.T) {
	e := NewEngine(nil, nil)
	if e.CheckOrder(order("AAPL", 1, true)) {
		t.Fatal("expected rejection for a symbol with no configured limits")
	}
}

// S3: max_net_position = 100, current position +90, buy 20 -> reject.
func TestEngine_S3_NetPositionRejection(t *testing.T) {
	e := NewEngine(nil, nil)
	limits := baseLimits()
	limits.MaxNetPosition = decimal.NewFromInt(100)
	limits.MaxGrossPosition = decimal.NewFromInt(100)
	e.SetRiskLimits("AAPL", limits)

	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(90), IsBuy: true, TS: time.Now()})

	if e.CheckOrder(order("AAPL", 20, true)) {
		t.Fatal("expected rejection: 90+20 > 100 net position limit")
	}
}

// S4: sigma=0.02, position after = 1000 -> VaR = 1000*0.02*1.645 = 32.9.
func TestEngine_S4_VaRGate(t *testing.T) {
	for _, tc := range []struct {
		varLimit float64
		wantPass bool
	}{
		{30, false},
		{35, true},
	} {
		e := NewEngine(nil, nil)
		limits := baseLimits()
		limits.VaRLimit = tc.varLimit
		limits.MaxGrossPosition = decimal.NewFromInt(10000)
		limits.MaxNetPosition = decimal.NewFromInt(10000)
		limits.MaxOrderSize = decimal.NewFromInt(10000)
		e.SetRiskLimits("AAPL", limits)

		// Seed volatility to exactly 0.02 by constructing a return series
		// with that standard deviation, then check an order that would
		// bring position to 1000.
		seedVolatility(e.volatilityLocked("AAPL"), 0.02)

		got := e.CheckOrder(order("AAPL", 1000, true))
		if got != tc.wantPass {
			t.Fatalf("var_limit=%v: expected pass=%v got=%v", tc.varLimit, tc.wantPass, got)
		}
	}
}

func TestEngine_MaxOrderSizeRejection(t *testing.T) {
	e := NewEngine(nil, nil)
	limits := baseLimits()
	limits.MaxOrderSize = decimal.NewFromInt(10)
	e.SetRiskLimits("AAPL", limits)

	if e.CheckOrder(order("AAPL", 11, true)) {
		t.Fatal("expected rejection: order quantity exceeds max_order_size")
	}
	if !e.CheckOrder(order("AAPL", 10, true)) {
		t.Fatal("expected acceptance at exactly max_order_size")
	}
}

// Invariant 2: risk monotonicity. If check_order(o) is false given state S,
// it must remain false given any state S' with strictly greater |position|
// for o.symbol and unchanged limits.
func TestEngine_RiskMonotonicity(t *testing.T) {
	e := NewEngine(nil, nil)
	limits := baseLimits()
	limits.MaxNetPosition = decimal.NewFromInt(500)
	limits.MaxGrossPosition = decimal.NewFromInt(500)
	limits.MaxOrderSize = decimal.NewFromInt(10000)
	e.SetRiskLimits("AAPL", limits)

	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(490), IsBuy: true, TS: time.Now()})
	o := order("AAPL", 20, true) // 490+20 = 510 > 500: rejected
	if e.CheckOrder(o) {
		t.Fatal("expected rejection at position 490")
	}

	// Grow |position| further (still same limits) and confirm it stays rejected.
	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(5), IsBuy: true, TS: time.Now()})
	if e.CheckOrder(o) {
		t.Fatal("monotonicity violated: growing |position| must not flip a rejection to an acceptance")
	}
}

func TestEngine_UpdatePositionFeedsVolatility(t *testing.T) {
	e := NewEngine(nil, nil)
	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), IsBuy: true, TS: time.Now()})
	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(101), Quantity: decimal.NewFromInt(1), IsBuy: true, TS: time.Now()})
	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(1), IsBuy: true, TS: time.Now()})
	if e.Volatility("AAPL") == 0 {
		t.Fatal("expected non-zero volatility after three distinct trade prices")
	}
}

func TestEngine_DailyTradesGate(t *testing.T) {
	e := NewEngine(nil, nil)
	limits := baseLimits()
	limits.MaxDailyTrades = 2
	e.SetRiskLimits("AAPL", limits)

	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), IsBuy: true, TS: time.Now()})
	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), IsBuy: true, TS: time.Now()})

	if e.CheckOrder(order("AAPL", 1, true)) {
		t.Fatal("expected rejection once max_daily_trades is reached")
	}

	e.ResetDaily("AAPL")
	if !e.CheckOrder(order("AAPL", 1, true)) {
		t.Fatal("expected acceptance after ResetDaily clears the daily trade counter")
	}
}

func TestEngine_UpdatePositionFeedsTelemetry(t *testing.T) {
	metrics := telemetry.NewRegistry()
	e := NewEngine(metrics, nil)
	e.SetRiskLimits("AAPL", baseLimits())

	e.UpdatePosition("AAPL", types.Trade{Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(5), IsBuy: true, TS: time.Now()})

	if got := testutil.ToFloat64(metrics.Position.WithLabelValues("AAPL")); got != 5 {
		t.Fatalf("expected mm_position{symbol=AAPL}=5, got %v", got)
	}
}

func TestEngine_CheckOrderObservesRiskCheckLatency(t *testing.T) {
	metrics := telemetry.NewRegistry()
	e := NewEngine(metrics, nil)
	e.SetRiskLimits("AAPL", baseLimits())

	e.CheckOrder(order("AAPL", 1, true))

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "mm_risk_check_duration_seconds_count 1") {
		t.Fatalf("expected exactly one risk-check-duration observation, got:\n%s", rec.Body.String())
	}
}

// seedVolatility feeds a return series to an estimator so Volatility()
// converges to exactly sigma: alternating price*e^sigma, price, price*e^sigma,
// price, ... produces log-returns of exactly +-sigma, a zero-mean series
// whose standard deviation is sigma.
func seedVolatility(e interface{ Update(float64) }, sigma float64) {
	base := 100.0
	up := base * math.Exp(sigma)
	e.Update(base)
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			e.Update(up)
		} else {
			e.Update(base)
		}
	}
}
