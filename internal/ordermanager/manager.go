// Package ordermanager implements the order manager: a pre-trade risk
// check on the submit path, a bounded SPSC hand-off queue, and a consumer
// worker thread that forwards accepted orders to the execution boundary.
package ordermanager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/queue"
	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/pkg/types"
)

// IdlePollInterval mirrors marketdata.Handler's idle-poll policy.
const IdlePollInterval = time.Millisecond

// RiskChecker is the pre-trade gate the order manager consults before
// enqueueing. The risk engine implements this.
type RiskChecker interface {
	CheckOrder(order types.Order) bool
}

// ExecutionBoundary is the pluggable sink every accepted order and cancel
// request is forwarded to. Both operations are required to return
// promptly; delivery is at-most-once with reconciliation left to the
// caller, per the spec's external-interfaces contract.
type ExecutionBoundary interface {
	Send(order types.Order) error
	Cancel(symbol types.Symbol, orderID string) error
}

// Manager owns one bounded SPSC order queue and its consumer thread.
type Manager struct {
	queue    *queue.SPSC[types.Order]
	risk     RiskChecker
	boundary ExecutionBoundary
	metrics  *telemetry.Registry
	log      *logrus.Entry

	rejected atomic.Uint64
	dropped  atomic.Uint64

	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewManager creates an order manager with the given queue capacity.
// metrics may be nil, in which case no metrics are emitted.
func NewManager(capacity int, risk RiskChecker, boundary ExecutionBoundary, metrics *telemetry.Registry, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		queue:    queue.New[types.Order](capacity),
		risk:     risk,
		boundary: boundary,
		metrics:  metrics,
		log:      log.WithField("component", "order-manager"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SubmitOrder runs the pre-trade check; on acceptance it enqueues the
// order and returns true. On rejection (risk or a full queue) it returns
// false and increments the corresponding counter. There is no retry on
// enqueue failure: the caller observes the false return immediately.
func (m *Manager) SubmitOrder(order types.Order) bool {
	if !m.risk.CheckOrder(order) {
		m.rejected.Add(1)
		if m.metrics != nil {
			m.metrics.OrdersRejected.WithLabelValues("risk_check").Inc()
		}
		m.log.WithField("symbol", order.Symbol).Warn("order rejected by pre-trade risk check")
		return false
	}
	if !m.queue.Push(order) {
		m.dropped.Add(1)
		if m.metrics != nil {
			m.metrics.OrdersRejected.WithLabelValues("queue_full").Inc()
		}
		m.log.WithField("symbol", order.Symbol).Warn("order queue full, dropping accepted order")
		return false
	}
	if m.metrics != nil {
		m.metrics.OrdersSubmitted.Inc()
	}
	return true
}

// CancelOrder forwards a cancel request directly to the execution
// boundary. The spec does not prescribe reconciliation between an
// in-flight cancel and a concurrent fill; that is delegated to the
// execution boundary.
func (m *Manager) CancelOrder(symbol types.Symbol, orderID string) {
	if err := m.boundary.Cancel(symbol, orderID); err != nil {
		m.log.WithError(err).WithField("order_id", orderID).Warn("cancel request failed")
	}
}

// Rejected returns the number of orders rejected by the pre-trade check.
func (m *Manager) Rejected() uint64 { return m.rejected.Load() }

// Dropped returns the number of risk-accepted orders dropped because the
// hand-off queue was full.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// Start spawns the consumer worker. Idempotent.
func (m *Manager) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run()
}

// Stop signals shutdown and blocks until the worker exits. Idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}

func (m *Manager) run() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		order, ok := m.queue.Pop()
		if !ok {
			select {
			case <-m.stopCh:
				return
			case <-time.After(IdlePollInterval):
			}
			continue
		}

		if err := m.boundary.Send(order); err != nil {
			m.log.WithError(err).WithField("order_id", order.OrderID).Warn("execution boundary rejected order send")
		}
	}
}
