// Package marketdata implements the consumer worker that drains the
// bounded quote queue, updates the order-book registry, and fans out to
// the market maker — spec.md's market-data handler.
package marketdata

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/book"
	"github.com/marketcore/mm-engine/internal/queue"
	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/pkg/types"
)

// IdlePollInterval is how long the consumer thread sleeps between polls
// when the queue is empty. The consumer does not spin first: it sleeps as
// soon as a poll finds the queue empty.
const IdlePollInterval = time.Millisecond

// QuoteConsumer receives each quote the handler drains, after the order
// book has been updated. The market maker implements this.
type QuoteConsumer interface {
	UpdateQuotes(symbol types.Symbol, quote types.Quote)
}

// Handler owns one bounded SPSC quote queue and a consumer worker thread.
// OnQuote is the non-blocking producer-side entry point; quotes are
// dropped (and counted) when the queue is full.
type Handler struct {
	queue    *queue.SPSC[types.Quote]
	books    *book.Registry
	consumer QuoteConsumer
	metrics  *telemetry.Registry
	log      *logrus.Entry

	dropped atomic.Uint64

	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewHandler creates a market-data handler with the given queue capacity.
// metrics may be nil, in which case no metrics are emitted.
func NewHandler(capacity int, books *book.Registry, consumer QuoteConsumer, metrics *telemetry.Registry, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		queue:    queue.New[types.Quote](capacity),
		books:    books,
		consumer: consumer,
		metrics:  metrics,
		log:      log.WithField("component", "marketdata-handler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnQuote is the producer-side entry point. Non-blocking: if the queue is
// full the quote is dropped and the drop counter is incremented.
func (h *Handler) OnQuote(q types.Quote) {
	if !q.Valid() {
		h.log.WithField("symbol", q.Symbol).Warn("dropping quote with invalid bid/ask")
		return
	}
	if !h.queue.Push(q) {
		h.dropped.Add(1)
		if h.metrics != nil {
			h.metrics.QuotesDropped.Inc()
		}
		h.log.WithField("symbol", q.Symbol).Warn("quote queue full, dropping quote")
	}
}

// Dropped returns the number of quotes dropped due to backpressure.
func (h *Handler) Dropped() uint64 {
	return h.dropped.Load()
}

// Start spawns the consumer worker. Calling Start twice is a no-op.
func (h *Handler) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go h.run()
}

// Stop signals the shutdown flag and blocks until the worker exits. Stop
// is idempotent.
func (h *Handler) Stop() {
	h.once.Do(func() {
		close(h.stopCh)
	})
	<-h.doneCh
}

func (h *Handler) run() {
	defer close(h.doneCh)
	for {
		select {
		case <-h.stopCh:
			return
		default:
		}

		q, ok := h.queue.Pop()
		if !ok {
			select {
			case <-h.stopCh:
				return
			case <-time.After(IdlePollInterval):
			}
			continue
		}

		h.books.Update(q)
		if h.consumer != nil {
			h.consumer.UpdateQuotes(q.Symbol, q)
		}
	}
}
