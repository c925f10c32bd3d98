// Package supervisor owns component construction, thread start/stop, and
// the operator surface: add_strategy(symbol) before start(), then
// start()/stop(). Adapted from the teacher's cmd/oms-server signal/context
// wiring, generalized into a reusable type instead of inline main()
// statements so tests can exercise it without a real process.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/book"
	"github.com/marketcore/mm-engine/internal/marketdata"
	"github.com/marketcore/mm-engine/internal/marketmaker"
	"github.com/marketcore/mm-engine/internal/ordermanager"
	"github.com/marketcore/mm-engine/internal/risk"
	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/pkg/types"
)

// JoinTimeout is the time within which Stop is expected to have joined
// every worker thread after 10,000 quotes across 2 symbols (the S6
// shutdown test holds Stop to it). Stop itself does not enforce it: it
// waits for each worker to exit.
const JoinTimeout = 100 * time.Millisecond

// Supervisor wires the market-data handler, risk engine, order manager
// and market maker, and owns their worker-thread lifecycle.
type Supervisor struct {
	Books   *book.Registry
	Risk    *risk.Engine
	Orders  *ordermanager.Manager
	Maker   *marketmaker.MarketMaker
	Handler *marketdata.Handler

	log     *logrus.Entry
	started bool
}

// New wires a Supervisor from its dependencies. boundary is the execution
// boundary the order manager forwards accepted orders to. metrics may be
// nil, in which case no component emits metrics.
func New(quoteQueueCap, orderQueueCap int, boundary ordermanager.ExecutionBoundary, metrics *telemetry.Registry, log *logrus.Entry) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "supervisor")

	riskEngine := risk.NewEngine(metrics, log)
	books := book.NewRegistry()
	orders := ordermanager.NewManager(orderQueueCap, riskEngine, boundary, metrics, log)
	maker := marketmaker.NewMarketMaker(riskEngine, orders, log)
	handler := marketdata.NewHandler(quoteQueueCap, books, maker, metrics, log)

	return &Supervisor{
		Books:   books,
		Risk:    riskEngine,
		Orders:  orders,
		Maker:   maker,
		Handler: handler,
		log:     log,
	}
}

// AddStrategy attaches a symbol to the market maker and configures its
// risk limits. Must be called before Start.
func (s *Supervisor) AddStrategy(symbol types.Symbol, risk types.RiskLimits, maker types.MakerParams) error {
	if err := s.Maker.ConfigureSymbol(symbol, maker); err != nil {
		return err
	}
	s.Risk.SetRiskLimits(symbol, risk)
	return nil
}

// Start spawns the market-data handler and order manager worker threads.
func (s *Supervisor) Start() {
	if s.started {
		return
	}
	s.started = true
	s.Orders.Start()
	s.Handler.Start()
	s.log.Info("supervisor started")
}

// Stop joins every worker thread. Idempotent; safe to call even if Start
// was never called.
func (s *Supervisor) Stop() {
	if !s.started {
		return
	}
	s.Handler.Stop()
	s.Orders.Stop()
	s.log.Info("supervisor stopped")
}

// OnQuote is the producer-side entry point for incoming market data,
// forwarded to the market-data handler's queue.
func (s *Supervisor) OnQuote(q types.Quote) {
	s.Handler.OnQuote(q)
}

// RunUntilSignal starts the supervisor and blocks until SIGINT or
// SIGTERM, then stops cleanly. Mirrors the teacher's
// cmd/oms-server main() signal-handling shape.
func (s *Supervisor) RunUntilSignal() {
	s.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	s.log.Info("shutdown signal received")
	s.Stop()
}
