// Package execnats implements the execution boundary over NATS
// JetStream: order creates/cancels are published, and fills are consumed
// from a wildcard subscription and folded into the risk engine's
// position state. Adapted from the teacher's pkg/nats client, trimmed to
// the publish/subscribe shape the order manager and risk engine need.
package execnats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	natslib "github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/pkg/types"
)

// PositionUpdater receives fills consumed off the fills subject.
type PositionUpdater interface {
	UpdatePosition(symbol types.Symbol, trade types.Trade)
}

// wireOrder is the JSON shape published for order creates.
type wireOrder struct {
	OrderID  string `json:"order_id"`
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	IsBuy    bool   `json:"is_buy"`
	TS       int64  `json:"ts_unix_nano"`
}

// wireFill is the JSON shape consumed off fills.>.
type wireFill struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	IsBuy    bool   `json:"is_buy"`
	TS       int64  `json:"ts_unix_nano"`
}

// Boundary implements ordermanager.ExecutionBoundary over NATS JetStream
// subjects orders.<symbol>.create and orders.<symbol>.cancel, and feeds
// fills consumed from fills.> into a PositionUpdater.
type Boundary struct {
	nc  *natslib.Conn
	js  natslib.JetStreamContext
	log *logrus.Entry

	fillSub *natslib.Subscription
}

// NewBoundary connects to natsURL and prepares a JetStream publish
// context. Call SubscribeFills separately to start fill ingestion.
func NewBoundary(natsURL string, log *logrus.Entry) (*Boundary, error) {
	nc, err := natslib.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Boundary{nc: nc, js: js, log: log.WithField("component", "execnats")}, nil
}

// Send publishes an order create message on orders.<symbol>.create.
func (b *Boundary) Send(order types.Order) error {
	subject := fmt.Sprintf("orders.%s.create", order.Symbol)
	payload := wireOrder{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Price:    order.Price.String(),
		Quantity: order.Quantity.String(),
		IsBuy:    order.IsBuy,
		TS:       order.TS.UnixNano(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Cancel publishes a cancel request on orders.<symbol>.cancel.
func (b *Boundary) Cancel(symbol types.Symbol, orderID string) error {
	subject := fmt.Sprintf("orders.%s.cancel", symbol)
	data, err := json.Marshal(map[string]string{"order_id": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeFills subscribes to fills.> and forwards each parsed fill to
// updater.UpdatePosition. The symbol is taken from the second subject
// token: fills.<symbol>.
func (b *Boundary) SubscribeFills(updater PositionUpdater) error {
	sub, err := b.js.Subscribe("fills.>", func(msg *natslib.Msg) {
		defer msg.Ack()

		parts := strings.Split(msg.Subject, ".")
		if len(parts) < 2 {
			b.log.WithField("subject", msg.Subject).Warn("unexpected fill subject shape")
			return
		}
		symbol := parts[1]

		var fill wireFill
		if err := json.Unmarshal(msg.Data, &fill); err != nil {
			b.log.WithError(err).Warn("failed to parse fill payload")
			return
		}

		price, err := decimal.NewFromString(fill.Price)
		if err != nil {
			b.log.WithError(err).Warn("invalid fill price")
			return
		}
		qty, err := decimal.NewFromString(fill.Quantity)
		if err != nil {
			b.log.WithError(err).Warn("invalid fill quantity")
			return
		}

		trade := types.Trade{
			Symbol:   symbol,
			Price:    price,
			Quantity: qty,
			IsBuy:    fill.IsBuy,
			TS:       time.Unix(0, fill.TS),
		}
		updater.UpdatePosition(symbol, trade)
	}, natslib.Durable("mm-engine-fills"))
	if err != nil {
		return fmt.Errorf("subscribe fills.>: %w", err)
	}
	b.fillSub = sub
	return nil
}

// Close unsubscribes the fill consumer (if any) and closes the NATS
// connection.
func (b *Boundary) Close() {
	if b.fillSub != nil {
		if err := b.fillSub.Unsubscribe(); err != nil {
			b.log.WithError(err).Warn("unsubscribe fills failed")
		}
	}
	b.nc.Close()
}
