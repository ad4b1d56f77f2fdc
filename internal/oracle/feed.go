package oracle

import (
	"context"
	"encoding/json"
	"log"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hypergrid-bot/hypergrid"
)

// FeedConfig tunes reconnect/heartbeat behavior; zero values fall back
// to the spec §4.2 defaults.
type FeedConfig struct {
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 60s
	PingInterval   time.Duration // default 15s
	DialTimeout    time.Duration // default 10s
}

func (c FeedConfig) withDefaults() FeedConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// allMidsRequest is the subscribe message sent on every (re)connect.
type allMidsRequest struct {
	Type string `json:"type"`
}

// allMidsMessage is the server push carrying the latest mid prices.
type allMidsMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

// Feed is a long-lived WebSocket subscription to the exchange's
// "all-mids" channel, with exponential-backoff reconnect.
type Feed struct {
	url    string
	config FeedConfig
	dialer *websocket.Dialer

	onSample func(hypergrid.PriceSample)

	connected     atomic.Bool
	lastMessageAt atomic.Int64 // unix nanos

	now func() time.Time
}

// NewFeed builds a Feed subscribing to the allMids channel at url.
func NewFeed(url string, cfg FeedConfig) *Feed {
	return &Feed{
		url:    url,
		config: cfg.withDefaults(),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.withDefaults().DialTimeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Connected reports whether the feed currently holds a live connection.
func (f *Feed) Connected() bool { return f.connected.Load() }

// LastMessageAt reports when the feed last received any message.
func (f *Feed) LastMessageAt() time.Time {
	nanos := f.lastMessageAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// Run blocks, maintaining the connection until ctx is canceled,
// reconnecting with exponential backoff (base, cap per config) plus
// jitter on every disconnect.
func (f *Feed) Run(ctx context.Context) {
	backoff := f.config.InitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.runOnce(ctx); err != nil {
			log.Printf("oracle feed: %v", err)
		}
		f.connected.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(backoff)):
		}

		backoff *= 2
		if backoff > f.config.MaxBackoff {
			backoff = f.config.MaxBackoff
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

func (f *Feed) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, f.config.DialTimeout)
	defer cancel()

	conn, _, err := f.dialer.DialContext(dialCtx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(allMidsRequest{Type: "allMids"}); err != nil {
		return err
	}

	f.connected.Store(true)
	f.lastMessageAt.Store(f.now().UnixNano())

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(conn, done)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.lastMessageAt.Store(f.now().UnixNano())
		f.handleMessage(raw)
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) handleMessage(raw []byte) {
	var msg allMidsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Channel != "allMids" || f.onSample == nil {
		return
	}
	now := f.now()
	for symbol, priceStr := range msg.Data.Mids {
		price, ok := new(big.Rat).SetString(priceStr)
		if !ok {
			continue
		}
		f.onSample(hypergrid.PriceSample{
			Symbol:     symbol,
			Price:      price,
			Source:     hypergrid.SourceWebSocket,
			Confidence: hypergrid.High,
			ObservedAt: now,
		})
	}
}
