// Package book holds the per-symbol top-of-book registry consumed by the
// market-data handler and the market maker. It fixes the contract the
// spec leaves to the implementer: Update is atomic per symbol and Top
// never hands back a partially constructed Quote.
package book

import (
	"sync"
	"sync/atomic"

	"github.com/marketcore/mm-engine/pkg/types"
)

// Registry is a per-symbol top-of-book store. Concurrent readers always
// observe either the previous or the newly published Quote, never a
// partially updated one, because each symbol's slot is an atomic.Pointer
// swapped wholesale on Update.
type Registry struct {
	books sync.Map // Symbol -> *atomic.Pointer[types.Quote]
}

// NewRegistry creates an empty order book registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Update replaces the top-of-book for quote.Symbol. Symbols are created
// lazily on first observation.
func (r *Registry) Update(quote types.Quote) {
	slot := r.slotFor(quote.Symbol)
	q := quote
	slot.Store(&q)
}

// Top returns a consistent snapshot of the top-of-book for symbol, or
// false if no quote has ever been observed for it.
func (r *Registry) Top(symbol types.Symbol) (types.Quote, bool) {
	v, ok := r.books.Load(symbol)
	if !ok {
		return types.Quote{}, false
	}
	slot := v.(*atomic.Pointer[types.Quote])
	q := slot.Load()
	if q == nil {
		return types.Quote{}, false
	}
	return *q, true
}

func (r *Registry) slotFor(symbol types.Symbol) *atomic.Pointer[types.Quote] {
	if v, ok := r.books.Load(symbol); ok {
		return v.(*atomic.Pointer[types.Quote])
	}
	slot := &atomic.Pointer[types.Quote]{}
	actual, _ := r.books.LoadOrStore(symbol, slot)
	return actual.(*atomic.Pointer[types.Quote])
}
