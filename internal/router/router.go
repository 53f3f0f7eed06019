// Package router classifies normalized market events, maintains the
// per-symbol order-book cache, and feeds enriched trade events to the
// indicator engine.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tick-collectorv1/internal/indicator"
	"tick-collectorv1/internal/model"
	"tick-collectorv1/internal/ringbuf"
)

// symbolCache is the cached order-book state for one registered symbol.
type symbolCache struct {
	mu   sync.Mutex
	book model.Book
}

// Router routes events for a fixed set of registered symbols.
// Unregistered symbols are rejected at this boundary; nothing escapes as a
// panic or error to the caller.
type Router struct {
	engine *indicator.Engine
	log    *slog.Logger

	symbols map[string]*symbolCache

	// Publish receives every computed vector (fan-out to sinks). Optional.
	Publish func(*model.IndicatorVector)

	// Metrics hooks, all optional.
	OnEvent        func(kind model.EventKind)
	OnVector       func()
	OnRejected     func()
	OnComputeError func()
	OnComputeDur   func(d time.Duration)
}

// New creates a router for the given symbol set.
func New(engine *indicator.Engine, symbols []string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	set := make(map[string]*symbolCache, len(symbols))
	for _, s := range symbols {
		set[s] = &symbolCache{}
	}
	return &Router{
		engine:  engine,
		log:     log,
		symbols: set,
	}
}

// Symbols returns the registered symbol set.
func (r *Router) Symbols() []string {
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	return out
}

// Process handles one event. Order-book events update the cache and return
// nil; trade events return the computed vector. Invalid events are logged and
// return nil — Process never panics.
func (r *Router) Process(ev model.TickEvent) *model.IndicatorVector {
	if r.OnEvent != nil {
		r.OnEvent(ev.Kind)
	}

	sc, ok := r.symbols[ev.Symbol]
	if !ok {
		r.log.Warn("event for unregistered symbol dropped",
			slog.String("symbol", ev.Symbol),
			slog.String("kind", ev.Kind.String()),
		)
		if r.OnRejected != nil {
			r.OnRejected()
		}
		return nil
	}

	switch ev.Kind {
	case model.KindOrderBookPrice, model.KindOrderBookDepth:
		// Book events update memory only; no computation, no persistence.
		sc.mu.Lock()
		sc.book.Merge(&ev)
		sc.mu.Unlock()
		return nil

	case model.KindTrade:
		if ev.Price <= 0 {
			r.log.Warn("trade without positive price dropped",
				slog.String("symbol", ev.Symbol),
				slog.Int64("time", ev.Time),
			)
			if r.OnRejected != nil {
				r.OnRejected()
			}
			return nil
		}
		if ev.Time <= 0 {
			ev.Time = time.Now().UnixMilli()
		}

		// The trade's own book fields go into the cache, then the cache
		// fills whatever the trade is missing. Price updates and depth
		// updates arrive as separate events; this read-modify-write is
		// what lets spread/imbalance appear on trade rows.
		sc.mu.Lock()
		sc.book.Merge(&ev)
		sc.book.Enrich(&ev)
		sc.mu.Unlock()

		start := time.Now()
		vec, err := r.engine.Compute(&ev)
		if r.OnComputeDur != nil {
			r.OnComputeDur(time.Since(start))
		}
		if err != nil {
			// Already logged at the engine boundary; tick dropped.
			if r.OnComputeError != nil {
				r.OnComputeError()
			}
			return nil
		}

		if r.OnVector != nil {
			r.OnVector()
		}
		if r.Publish != nil {
			r.Publish(vec)
		}
		return vec

	default:
		r.log.Warn("unknown event kind dropped",
			slog.String("symbol", ev.Symbol),
			slog.Int("kind", int(ev.Kind)),
		)
		if r.OnRejected != nil {
			r.OnRejected()
		}
		return nil
	}
}

// BookAge returns how stale a symbol's cached book is relative to now,
// or -1 when the symbol is unknown or never updated.
func (r *Router) BookAge(symbol string, now int64) int64 {
	sc, ok := r.symbols[symbol]
	if !ok {
		return -1
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.book.UpdatedAt == 0 {
		return -1
	}
	return now - sc.book.UpdatedAt
}

// Run drains events from the ring until ctx is done. Pops are non-blocking;
// an empty ring parks briefly instead of spinning.
func (r *Router) Run(ctx context.Context, ring *ringbuf.Ring) {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()

	for {
		ev, ok := ring.Pop()
		if ok {
			r.Process(ev)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}
	}
}
