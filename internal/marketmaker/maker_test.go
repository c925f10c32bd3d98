package marketmaker

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcore/mm-engine/pkg/types"
)

type fixedPosition struct {
	position float64
}

func (f fixedPosition) NetPosition(types.Symbol) float64 { return f.position }

type recordingSink struct {
	mu        sync.Mutex
	submitted []types.Order
	cancelled []string
}

func (r *recordingSink) SubmitOrder(o types.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, o)
	return true
}

func (r *recordingSink) CancelOrder(symbol types.Symbol, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, orderID)
}

func (r *recordingSink) snapshot() []types.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Order, len(r.submitted))
	copy(out, r.submitted)
	return out
}

func flatQuote(mid, halfSpread float64) types.Quote {
	return types.Quote{
		Symbol: "AAPL",
		Bid:    decimal.NewFromFloat(mid - halfSpread),
		Ask:    decimal.NewFromFloat(mid + halfSpread),
		TS:     time.Now(),
	}
}

// S1: flat-inventory quote ladder.
func TestMarketMaker_S1_FlatInventoryLadder(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{0}, sink, nil)
	params := types.MakerParams{
		SpreadPct:    0.001,
		BaseSize:     decimal.NewFromInt(100),
		SkewFactor:   0,
		TickSize:     0.01,
		Levels:       3,
		LevelSpacing: 0.5,
	}
	if err := mm.ConfigureSymbol("AAPL", params); err != nil {
		t.Fatalf("configure: %v", err)
	}

	mm.UpdateQuotes("AAPL", flatQuote(100.00, 0.0001))

	orders := sink.snapshot()
	var bids, asks []float64
	var bidSizes, askSizes []float64
	for _, o := range orders {
		px, _ := o.Price.Float64()
		sz, _ := o.Quantity.Float64()
		if o.IsBuy {
			bids = append(bids, px)
			bidSizes = append(bidSizes, sz)
		} else {
			asks = append(asks, px)
			askSizes = append(askSizes, sz)
		}
	}

	wantBids := []float64{99.90, 99.85, 99.80}
	wantAsks := []float64{100.10, 100.15, 100.20}
	wantSizes := []float64{100, 50, 25}

	assertCloseSlice(t, "bids", bids, wantBids)
	assertCloseSlice(t, "asks", asks, wantAsks)
	assertCloseSlice(t, "bid sizes", bidSizes, wantSizes)
	assertCloseSlice(t, "ask sizes", askSizes, wantSizes)
}

// S2: inventory skew shifts both sides downward by mid*inventory_ratio*skew_factor.
func TestMarketMaker_S2_InventorySkew(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{50}, sink, nil)
	params := types.MakerParams{
		SpreadPct:    0.001,
		BaseSize:     decimal.NewFromInt(100),
		SkewFactor:   0.2,
		TickSize:     0.01,
		Levels:       3,
		LevelSpacing: 0.5,
	}
	if err := mm.ConfigureSymbol("AAPL", params); err != nil {
		t.Fatalf("configure: %v", err)
	}

	mm.UpdateQuotes("AAPL", flatQuote(100.00, 0.0001))

	orders := sink.snapshot()
	var bid0, ask0 float64
	found := 0
	for _, o := range orders {
		px, _ := o.Price.Float64()
		sz, _ := o.Quantity.Float64()
		if math.Abs(sz-100) < 1e-9 {
			if o.IsBuy {
				bid0 = px
				found++
			} else {
				ask0 = px
				found++
			}
		}
	}
	if found != 2 {
		t.Fatalf("expected to find level-0 bid and ask, found %d matches", found)
	}

	wantBid0 := 89.90 // 99.90 - 10.00
	wantAsk0 := 90.10 // 100.10 - 10.00
	if math.Abs(bid0-wantBid0) > 1e-6 {
		t.Fatalf("bid[0]=%v, want %v", bid0, wantBid0)
	}
	if math.Abs(ask0-wantAsk0) > 1e-6 {
		t.Fatalf("ask[0]=%v, want %v", ask0, wantAsk0)
	}
}

// Invariant 3: ladder ordering.
func TestMarketMaker_LadderOrdering(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{0}, sink, nil)
	params := types.MakerParams{SpreadPct: 0.002, BaseSize: decimal.NewFromInt(100), SkewFactor: 0.1, TickSize: 0.01, Levels: 4, LevelSpacing: 0.3}
	mm.ConfigureSymbol("AAPL", params)
	mm.UpdateQuotes("AAPL", flatQuote(50.0, 0.0001))

	orders := sink.snapshot()
	var bids, asks []float64
	for _, o := range orders {
		px, _ := o.Price.Float64()
		if o.IsBuy {
			bids = append(bids, px)
		} else {
			asks = append(asks, px)
		}
	}
	for i := 1; i < len(bids); i++ {
		if bids[i] > bids[i-1] {
			t.Fatalf("bid_px must be non-increasing in level: %v", bids)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i] < asks[i-1] {
			t.Fatalf("ask_px must be non-decreasing in level: %v", asks)
		}
	}
	if bids[0] > 50.0 || asks[0] < 50.0 {
		t.Fatalf("expected bid[0] <= mid <= ask[0] at zero inventory: bid=%v ask=%v", bids[0], asks[0])
	}
}

// Invariant 4: tick alignment.
func TestMarketMaker_TickAlignment(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{17}, sink, nil)
	params := types.MakerParams{SpreadPct: 0.0037, BaseSize: decimal.NewFromInt(30), SkewFactor: 0.4, TickSize: 0.05, Levels: 5, LevelSpacing: 0.25}
	mm.ConfigureSymbol("AAPL", params)
	mm.UpdateQuotes("AAPL", flatQuote(123.456, 0.02))

	for _, o := range sink.snapshot() {
		px, _ := o.Price.Float64()
		ratio := px / params.TickSize
		if math.Abs(ratio-math.Round(ratio)) > 1e-6 {
			t.Fatalf("price %v is not tick-aligned to %v", px, params.TickSize)
		}
	}
}

// Invariant 5: size schedule is geometric base_size/2^l.
func TestMarketMaker_SizeSchedule(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{0}, sink, nil)
	params := types.MakerParams{SpreadPct: 0.001, BaseSize: decimal.NewFromInt(64), SkewFactor: 0, TickSize: 0.01, Levels: 4, LevelSpacing: 0.5}
	mm.ConfigureSymbol("AAPL", params)
	mm.UpdateQuotes("AAPL", flatQuote(10.0, 0.0001))

	sizesByPrefix := map[bool][]float64{}
	for _, o := range sink.snapshot() {
		sz, _ := o.Quantity.Float64()
		sizesByPrefix[o.IsBuy] = append(sizesByPrefix[o.IsBuy], sz)
	}
	want := []float64{64, 32, 16, 8}
	assertCloseSlice(t, "bid sizes", sizesByPrefix[true], want)
	assertCloseSlice(t, "ask sizes", sizesByPrefix[false], want)
}

func TestMarketMaker_UnconfiguredSymbolIsInert(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{0}, sink, nil)
	mm.UpdateQuotes("UNKNOWN", flatQuote(100, 0.01))
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected no orders for an unconfigured symbol")
	}
}

// update_quotes must cancel prior active orders before submitting fresh ones.
func TestMarketMaker_CancelsBeforeRequoting(t *testing.T) {
	sink := &recordingSink{}
	mm := NewMarketMaker(fixedPosition{0}, sink, nil)
	params := types.MakerParams{SpreadPct: 0.001, BaseSize: decimal.NewFromInt(10), SkewFactor: 0, TickSize: 0.01, Levels: 1, LevelSpacing: 0}
	mm.ConfigureSymbol("AAPL", params)

	mm.UpdateQuotes("AAPL", flatQuote(100, 0.0001))
	firstCount := len(sink.snapshot())

	mm.UpdateQuotes("AAPL", flatQuote(101, 0.0001))

	sink.mu.Lock()
	cancelled := len(sink.cancelled)
	sink.mu.Unlock()

	if cancelled != firstCount {
		t.Fatalf("expected %d cancels before the second requote, got %d", firstCount, cancelled)
	}
}

func TestRoundToTick_HalfAwayFromZero(t *testing.T) {
	cases := []struct{ price, tick, want float64 }{
		{100.005, 0.01, 100.01},
		{100.004, 0.01, 100.00},
		{-100.005, 0.01, -100.01},
	}
	for _, c := range cases {
		got := roundToTick(c.price, c.tick)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("roundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}

func assertCloseSlice(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length mismatch got=%v want=%v", label, got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("%s[%d] = %v, want %v (full got=%v want=%v)", label, i, got[i], want[i], got, want)
		}
	}
}
