// Package feed provides market-event sources for the collector pipeline.
//
// ws.Ingest connects to a WebSocket server that emits already-normalized
// JSON events (one model.TickEvent per message) and pushes them into the
// SPSC ring. Vendor session handling and raw-protocol parsing live on the
// far side of that socket.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"tick-collectorv1/internal/model"
	"tick-collectorv1/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// WSConfig holds configuration for the WebSocket ingest.
type WSConfig struct {
	// URL of the event WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WSIngest connects to a normalized-event WebSocket and pushes events
// into the ring buffer.
type WSIngest struct {
	cfg WSConfig
	log *slog.Logger

	// Optional hooks
	OnReconnect func()
	OnConnect   func(connected bool)
	OnEvent     func(ev *model.TickEvent)
	OnOverflow  func()
}

// NewWSIngest creates a new ingest. Returns an error if the URL is unparseable.
func NewWSIngest(cfg WSConfig, log *slog.Logger) (*WSIngest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &WSIngest{cfg: cfg, log: log}, nil
}

// Start connects and streams events into ring. Blocks until ctx is
// cancelled. Reconnects automatically with capped exponential backoff.
func (ing *WSIngest) Start(ctx context.Context, ring *ringbuf.Ring) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, ring)
		if ing.OnConnect != nil {
			ing.OnConnect(false)
		}
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		ing.log.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. A nil return means clean shutdown.
func (ing *WSIngest) runOnce(ctx context.Context, ring *ringbuf.Ring) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ing.log.Info("feed connected", slog.String("url", ing.cfg.URL))
	if ing.OnConnect != nil {
		ing.OnConnect(true)
	}

	// Context watcher closes the connection to unblock ReadMessage.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var ev model.TickEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			ing.log.Warn("feed parse error",
				slog.String("error", err.Error()),
				slog.String("raw", string(raw)))
			continue
		}
		if ev.Symbol == "" {
			ing.log.Warn("feed event with empty symbol, skipping")
			continue
		}

		if ing.OnEvent != nil {
			ing.OnEvent(&ev)
		}

		if !ring.Push(ev) {
			if ing.OnOverflow != nil {
				ing.OnOverflow()
			}
		}
	}
}
