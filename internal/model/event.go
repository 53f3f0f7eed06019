package model

import (
	"encoding/json"
	"fmt"
)

// EventKind classifies a normalized market event.
type EventKind int

const (
	KindTrade          EventKind = iota // trade execution
	KindOrderBookPrice                  // best ask/bid price levels update
	KindOrderBookDepth                  // ask/bid quantity levels update
)

func (k EventKind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindOrderBookPrice:
		return "orderbook_price"
	case KindOrderBookDepth:
		return "orderbook_depth"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire kind string to an EventKind.
// Unknown strings return (0, false).
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "trade":
		return KindTrade, true
	case "orderbook_price":
		return KindOrderBookPrice, true
	case "orderbook_depth":
		return KindOrderBookDepth, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the kind as its wire string.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts either the wire string or a raw integer.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, ok := ParseEventKind(s)
		if !ok {
			return fmt.Errorf("unknown event kind %q", s)
		}
		*k = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = EventKind(n)
	return nil
}

// BookLevels is the depth of order-book levels carried per side.
const BookLevels = 5

// TickEvent is one normalized market event for a single symbol.
// Zero or negative numeric fields mean "not present in this event":
// merge logic only overwrites cached state with present fields.
type TickEvent struct {
	Symbol string    `json:"symbol"`
	Kind   EventKind `json:"kind"`
	Time   int64     `json:"time"` // ms since epoch

	// Trade fields
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`

	// Order-book fields, level 1..5
	Ask    [BookLevels]float64 `json:"ask"`
	Bid    [BookLevels]float64 `json:"bid"`
	AskQty [BookLevels]int64   `json:"ask_qty"`
	BidQty [BookLevels]int64   `json:"bid_qty"`

	TotalAskQty int64 `json:"total_ask_qty"`
	TotalBidQty int64 `json:"total_bid_qty"`
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e *TickEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Book is the per-symbol order-book cache the router maintains across events.
// A trade event is enriched from this cache before indicator computation so
// spread/imbalance can be computed even though price and depth arrive on
// separate events.
type Book struct {
	Ask    [BookLevels]float64
	Bid    [BookLevels]float64
	AskQty [BookLevels]int64
	BidQty [BookLevels]int64

	TotalAskQty int64
	TotalBidQty int64

	High float64
	Low  float64

	UpdatedAt int64 // ms since epoch of the last merged event
}

// Merge folds the present fields of ev into the book, last-write-wins.
func (b *Book) Merge(ev *TickEvent) {
	for i := 0; i < BookLevels; i++ {
		if ev.Ask[i] > 0 {
			b.Ask[i] = ev.Ask[i]
		}
		if ev.Bid[i] > 0 {
			b.Bid[i] = ev.Bid[i]
		}
		if ev.AskQty[i] > 0 {
			b.AskQty[i] = ev.AskQty[i]
		}
		if ev.BidQty[i] > 0 {
			b.BidQty[i] = ev.BidQty[i]
		}
	}
	if ev.TotalAskQty > 0 {
		b.TotalAskQty = ev.TotalAskQty
	}
	if ev.TotalBidQty > 0 {
		b.TotalBidQty = ev.TotalBidQty
	}
	if ev.High > 0 {
		b.High = ev.High
	}
	if ev.Low > 0 {
		b.Low = ev.Low
	}
	if ev.Time > 0 {
		b.UpdatedAt = ev.Time
	}
}

// Enrich copies the cached book into the event's order-book fields.
// Event fields already present win over the cache for this tick.
func (b *Book) Enrich(ev *TickEvent) {
	for i := 0; i < BookLevels; i++ {
		if ev.Ask[i] <= 0 {
			ev.Ask[i] = b.Ask[i]
		}
		if ev.Bid[i] <= 0 {
			ev.Bid[i] = b.Bid[i]
		}
		if ev.AskQty[i] <= 0 {
			ev.AskQty[i] = b.AskQty[i]
		}
		if ev.BidQty[i] <= 0 {
			ev.BidQty[i] = b.BidQty[i]
		}
	}
	if ev.TotalAskQty <= 0 {
		ev.TotalAskQty = b.TotalAskQty
	}
	if ev.TotalBidQty <= 0 {
		ev.TotalBidQty = b.TotalBidQty
	}
	if ev.High <= 0 {
		ev.High = b.High
	}
	if ev.Low <= 0 {
		ev.Low = b.Low
	}
}
