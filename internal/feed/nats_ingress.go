// Package feed adapts external market-data transports into calls on the
// marketdata.Handler's OnQuote entry point. Two concrete adapters are
// provided: a NATS subscriber (adapted from the teacher's cross-exchange
// aggregator) and a raw websocket client.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	natslib "github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/pkg/types"
)

// QuoteSink is the subset of marketdata.Handler the feed adapters depend
// on, kept narrow so feed tests don't need a real queue/registry.
type QuoteSink interface {
	OnQuote(types.Quote)
}

// NatsIngress subscribes to raw per-exchange market-data subjects and
// converts each message into a types.Quote delivered to a QuoteSink. The
// teacher's Aggregator fanned the same subjects into a cross-exchange
// price cache; here each message drives the pipeline directly instead of
// being cached and republished on a timer, since the maker needs the
// freshest top-of-book, not a 100ms snapshot.
type NatsIngress struct {
	nc   *natslib.Conn
	sink QuoteSink
	log  *logrus.Entry

	mu   sync.Mutex
	subs []*natslib.Subscription
}

// NewNatsIngress connects to natsURL and wires a sink that will receive
// every parsed quote.
func NewNatsIngress(natsURL string, sink QuoteSink, log *logrus.Entry) (*NatsIngress, error) {
	nc, err := natslib.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NatsIngress{
		nc:   nc,
		sink: sink,
		log:  log.WithField("component", "feed-nats"),
	}, nil
}

// Subscribe opens a subscription on marketdata.<exchange>.spot.> for each
// exchange and begins forwarding quotes to the sink.
func (n *NatsIngress) Subscribe(exchanges []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, exchange := range exchanges {
		subject := fmt.Sprintf("marketdata.%s.spot.>", exchange)
		sub, err := n.nc.Subscribe(subject, n.handleMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		n.subs = append(n.subs, sub)
		n.log.WithField("subject", subject).Info("subscribed to market data")
	}
	return nil
}

// Close unsubscribes everything and closes the NATS connection.
func (n *NatsIngress) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil {
			n.log.WithError(err).Warn("unsubscribe failed")
		}
	}
	n.nc.Close()
}

// handleMessage parses subject marketdata.{exchange}.spot.{symbol} and a
// JSON body carrying bid/ask fields under any of several common aliases,
// then forwards a types.Quote to the sink.
func (n *NatsIngress) handleMessage(msg *natslib.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) < 4 {
		n.log.WithField("subject", msg.Subject).Warn("unexpected subject shape")
		return
	}
	symbol := parts[3]

	var data map[string]interface{}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		n.log.WithError(err).Warn("failed to parse market data payload")
		return
	}

	bid, bidOK := getFloat64(data, "bid_price", "bid", "best_bid")
	ask, askOK := getFloat64(data, "ask_price", "ask", "best_ask")
	if !bidOK || !askOK {
		return
	}

	q := types.Quote{
		Symbol: types.Symbol(symbol),
		Bid:    decimal.NewFromFloat(bid),
		Ask:    decimal.NewFromFloat(ask),
		TS:     time.Now(),
	}
	if q.Valid() {
		n.sink.OnQuote(q)
	}
}

func getFloat64(data map[string]interface{}, fields ...string) (float64, bool) {
	for _, field := range fields {
		val, ok := data[field]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case float64:
			return v, true
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
