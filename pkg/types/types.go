// Package types holds the domain model shared by every component of the
// market-making core: quotes, trades, orders, and the per-symbol
// configuration structs that the risk engine and market maker are
// configured with.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is an opaque short-ASCII identifier. It is the partition key for
// all per-symbol state; there are no cross-symbol invariants.
type Symbol = string

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Quote is a top-of-book snapshot published by a market-data source.
// Immutable once constructed. Invariant: Bid <= Ask, both non-negative.
type Quote struct {
	Symbol  Symbol
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
	TS      time.Time
}

// Mid returns (bid+ask)/2 as a float64 for use in the volatility and
// quote-ladder math, which operates in plain floating point.
func (q Quote) Mid() float64 {
	bid, _ := q.Bid.Float64()
	ask, _ := q.Ask.Float64()
	return (bid + ask) / 2
}

// Valid reports whether the quote satisfies the spec's invariant.
func (q Quote) Valid() bool {
	return q.Bid.Sign() >= 0 && q.Ask.Sign() >= 0 && q.Bid.LessThanOrEqual(q.Ask)
}

// Trade is a report of an execution on this participant's behalf.
type Trade struct {
	Symbol   Symbol
	Price    decimal.Decimal
	Quantity decimal.Decimal
	IsBuy    bool
	TS       time.Time
}

// Order is a single resting or terminal order. OrderID is assigned by the
// market maker from a monotonically increasing, process-global counter.
type Order struct {
	OrderID  string
	Symbol   Symbol
	Price    decimal.Decimal
	Quantity decimal.Decimal
	IsBuy    bool
	TS       time.Time
	Status   OrderStatus
}

// SignedQuantity returns Quantity with the sign implied by IsBuy.
func (t Trade) SignedQuantity() decimal.Decimal {
	if t.IsBuy {
		return t.Quantity
	}
	return t.Quantity.Neg()
}

// RiskLimits are the per-symbol hard ceilings enforced by the risk engine.
// Every field is a ceiling; any check exceeding its limit rejects the order.
type RiskLimits struct {
	MaxGrossPosition   decimal.Decimal
	MaxNetPosition     decimal.Decimal
	MaxDollarExposure  decimal.Decimal
	VaRLimit           float64
	ESLimit            float64
	MaxDrawdownLimit   decimal.Decimal
	MaxPositionDuration time.Duration
	MaxOrderSize       decimal.Decimal
	MaxDailyLoss       decimal.Decimal
	MaxDailyTrades     int
}

// MakerParams are the per-symbol market-making parameters.
type MakerParams struct {
	SpreadPct    float64
	BaseSize     decimal.Decimal
	SkewFactor   float64
	TickSize     float64
	Levels       int
	LevelSpacing float64
}

// Valid reports whether the maker params satisfy the spec's invariants.
func (p MakerParams) Valid() bool {
	return p.TickSize > 0 && p.Levels >= 1 && p.SpreadPct > 0 && p.SpreadPct < 1
}
