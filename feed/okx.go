package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/evdnx/gomomentum/logger"
	"github.com/evdnx/gomomentum/types"
)

// DefaultURL is the OKX public websocket endpoint.
const DefaultURL = "wss://ws.okx.com:8443/ws/v5/public"

// OKX drops idle connections after 30s without traffic.
const defaultPingInterval = 20 * time.Second

// OKXTicker streams last-trade prices for one instrument from the OKX
// tickers channel, reconnecting until its context ends.
type OKXTicker struct {
	url            string
	instID         string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            logger.Logger
}

type Option func(*OKXTicker)

func WithReconnectDelay(d time.Duration) Option { return func(t *OKXTicker) { t.reconnectDelay = d } }

func WithPingInterval(d time.Duration) Option { return func(t *OKXTicker) { t.pingInterval = d } }

func WithDialer(d *websocket.Dialer) Option { return func(t *OKXTicker) { t.dialer = d } }

func WithLogger(l logger.Logger) Option { return func(t *OKXTicker) { t.log = l } }

func NewOKXTicker(url, instID string, opts ...Option) *OKXTicker {
	if url == "" {
		url = DefaultURL
	}
	t := &OKXTicker{
		url:            url,
		instID:         instID,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: 3 * time.Second,
		pingInterval:   defaultPingInterval,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run delivers observations on out until ctx is done, redialing after every
// dropped connection. It returns ctx's error.
func (t *OKXTicker) Run(ctx context.Context, out chan<- types.PriceObservation) error {
	for {
		err := t.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warn("feed_disconnected",
			logger.String("url", t.url),
			logger.String("inst_id", t.instID),
			logger.Duration("retry_in", t.reconnectDelay),
			logger.Err(err),
		)
		timer := time.NewTimer(t.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to the first read error.
func (t *OKXTicker) session(ctx context.Context, out chan<- types.PriceObservation) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(msg []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	if err := write(subscribeFrame(t.instID)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	t.log.Info("feed_connected", logger.String("url", t.url), logger.String("inst_id", t.instID))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ping := time.NewTicker(t.pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks ReadMessage.
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ping.C:
				if err := write([]byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		observations, err := ParseTicker(msg)
		if err != nil {
			t.log.Warn("feed_bad_frame", logger.String("inst_id", t.instID), logger.Err(err))
			continue
		}
		for _, o := range observations {
			select {
			case out <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func subscribeFrame(instID string) []byte {
	return []byte(fmt.Sprintf(`{"op":"subscribe","args":[{"channel":"tickers","instId":%q}]}`, instID))
}

// ErrSubscription is returned for OKX error events such as an unknown instId.
var ErrSubscription = errors.New("okx subscription error")

// ParseTicker extracts observations from one tickers frame. Control frames
// (subscribe acks, pong) yield nothing.
func ParseTicker(msg []byte) ([]types.PriceObservation, error) {
	if string(msg) == "pong" {
		return nil, nil
	}
	if !gjson.ValidBytes(msg) {
		return nil, fmt.Errorf("malformed frame %.64q", msg)
	}
	root := gjson.ParseBytes(msg)
	switch root.Get("event").String() {
	case "":
	case "error":
		return nil, fmt.Errorf("%w: code %s: %s", ErrSubscription, root.Get("code").String(), root.Get("msg").String())
	default:
		return nil, nil
	}

	data := root.Get("data").Array()
	out := make([]types.PriceObservation, 0, len(data))
	for _, d := range data {
		price, err := strconv.ParseFloat(d.Get("last").String(), 64)
		if err != nil {
			return nil, fmt.Errorf("ticker last %q: %w", d.Get("last").String(), err)
		}
		ms, err := strconv.ParseInt(d.Get("ts").String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ticker ts %q: %w", d.Get("ts").String(), err)
		}
		out = append(out, types.PriceObservation{Timestamp: time.UnixMilli(ms).UTC(), Price: price})
	}
	return out, nil
}
