package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketcore/mm-engine/pkg/types"
)

// wsTickMessage is the wire shape read off the socket: a top-of-book tick
// for one symbol.
type wsTickMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// WsIngress is a raw websocket quote feed, adapted from the teacher's
// Binance WebSocket order manager's connect/read-loop shape but stripped
// down to read-only tick consumption: no request/response correlation is
// needed since quotes are a pure server push stream.
type WsIngress struct {
	url  string
	sink QuoteSink
	log  *logrus.Entry

	conn      *websocket.Conn
	connected atomic.Bool
	stopCh    chan struct{}
}

// NewWsIngress creates a feed that will dial url once Connect is called.
func NewWsIngress(url string, sink QuoteSink, log *logrus.Entry) *WsIngress {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WsIngress{
		url:    url,
		sink:   sink,
		log:    log.WithField("component", "feed-ws"),
		stopCh: make(chan struct{}),
	}
}

// Connect dials the feed and starts the read loop in the background.
func (w *WsIngress) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial websocket feed: %w", err)
	}
	w.conn = conn
	w.connected.Store(true)
	go w.readLoop()
	return nil
}

// Disconnect closes the socket and stops the read loop.
func (w *WsIngress) Disconnect() error {
	if !w.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(w.stopCh)
	return w.conn.Close()
}

// IsConnected reports whether the read loop is currently active.
func (w *WsIngress) IsConnected() bool {
	return w.connected.Load()
}

func (w *WsIngress) readLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.log.WithError(err).Warn("websocket read failed, stopping feed")
			w.connected.Store(false)
			return
		}

		var tick wsTickMessage
		if err := json.Unmarshal(data, &tick); err != nil {
			w.log.WithError(err).Warn("failed to parse tick message")
			continue
		}

		q := types.Quote{
			Symbol: types.Symbol(tick.Symbol),
			Bid:    decimal.NewFromFloat(tick.Bid),
			Ask:    decimal.NewFromFloat(tick.Ask),
			TS:     time.Now(),
		}
		if q.Valid() {
			w.sink.OnQuote(q)
		}
	}
}
