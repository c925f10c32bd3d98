package main

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/internal/config"
	"github.com/marketcore/mm-engine/internal/execnats"
	"github.com/marketcore/mm-engine/internal/feed"
	"github.com/marketcore/mm-engine/internal/supervisor"
	"github.com/marketcore/mm-engine/internal/telemetry"
	"github.com/marketcore/mm-engine/pkg/types"
)

// quoteSink adapts Supervisor.OnQuote to feed.QuoteSink.
type quoteSink struct {
	sup *supervisor.Supervisor
}

func (q quoteSink) OnQuote(quote types.Quote) {
	q.sup.OnQuote(quote)
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	log := logrus.NewEntry(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	boundary, err := execnats.NewBoundary(cfg.NatsURL, log)
	if err != nil {
		logger.Fatalf("failed to connect execution boundary: %v", err)
	}
	defer boundary.Close()

	metrics := telemetry.NewRegistry()
	sup := supervisor.New(cfg.QuoteQueueSize, cfg.OrderQueueSize, boundary, metrics, log)

	if err := boundary.SubscribeFills(sup.Risk); err != nil {
		logger.Fatalf("failed to subscribe to fills: %v", err)
	}

	for _, s := range cfg.Symbols {
		if err := sup.AddStrategy(s.Symbol, s.Risk, s.Maker); err != nil {
			logger.Fatalf("failed to configure symbol %s: %v", s.Symbol, err)
		}
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	if cfg.FeedWebsocketURL != "" {
		wsFeed := feed.NewWsIngress(cfg.FeedWebsocketURL, quoteSink{sup}, log)
		if err := wsFeed.Connect(context.Background()); err != nil {
			logger.Fatalf("failed to connect market-data feed: %v", err)
		}
		defer wsFeed.Disconnect()
	}

	sup.RunUntilSignal()
}
