package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"tick-collectorv1/internal/model"
	"tick-collectorv1/internal/ringbuf"
)

// SimConfig configures the synthetic event generator.
type SimConfig struct {
	Symbols []string

	// Interval between trade events per symbol. Defaults to 100ms.
	Interval time.Duration

	// StartPrice seeds each symbol's random walk. Defaults to 50000.
	StartPrice float64

	// SupplyInterval is how often synthetic investor snapshots are emitted.
	// Zero disables supply generation.
	SupplyInterval time.Duration
}

func (c *SimConfig) defaults() {
	if c.Interval == 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 50000
	}
}

// simState holds per-symbol simulation state.
type simState struct {
	price  float64
	high   float64
	low    float64
	supply model.SupplyVolumes
}

// Sim generates a plausible random-walk stream of trades and order-book
// updates for offline runs. Book updates are interleaved with trades so the
// router's merge path is exercised the same way a live feed would.
type Sim struct {
	cfg SimConfig
	log *slog.Logger
	rng *rand.Rand

	state map[string]*simState

	// OnSupply receives synthetic investor snapshots when SupplyInterval > 0.
	OnSupply func(snap model.SupplySnapshot)
}

// NewSim creates a synthetic feed for the given symbols.
func NewSim(cfg SimConfig, log *slog.Logger) *Sim {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	state := make(map[string]*simState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		state[sym] = &simState{
			price: cfg.StartPrice,
			high:  cfg.StartPrice,
			low:   cfg.StartPrice,
		}
	}
	return &Sim{
		cfg:   cfg,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		state: state,
	}
}

// Start emits events into ring until ctx is cancelled.
func (s *Sim) Start(ctx context.Context, ring *ringbuf.Ring) error {
	s.log.Info("sim feed started",
		slog.Int("symbols", len(s.cfg.Symbols)),
		slog.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var supplyTicker *time.Ticker
	var supplyC <-chan time.Time
	if s.cfg.SupplyInterval > 0 {
		supplyTicker = time.NewTicker(s.cfg.SupplyInterval)
		supplyC = supplyTicker.C
		defer supplyTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-supplyC:
			s.emitSupply()
		case <-ticker.C:
			for _, sym := range s.cfg.Symbols {
				s.step(sym, ring)
			}
		}
	}
}

// step advances one symbol's walk and pushes a book update plus a trade.
func (s *Sim) step(sym string, ring *ringbuf.Ring) {
	st := s.state[sym]
	st.price = s.walk(st.price)
	if st.price > st.high {
		st.high = st.price
	}
	if st.price < st.low || st.low == 0 {
		st.low = st.price
	}

	now := time.Now().UnixMilli()
	tickSize := tickSizeFor(st.price)

	book := model.TickEvent{
		Symbol: sym,
		Kind:   model.KindOrderBookPrice,
		Time:   now,
	}
	for i := 0; i < model.BookLevels; i++ {
		book.Ask[i] = st.price + float64(i+1)*tickSize
		book.Bid[i] = st.price - float64(i)*tickSize
		book.AskQty[i] = int64(s.rng.Intn(500) + 50)
		book.BidQty[i] = int64(s.rng.Intn(500) + 50)
		book.TotalAskQty += book.AskQty[i]
		book.TotalBidQty += book.BidQty[i]
	}
	ring.Push(book)

	trade := model.TickEvent{
		Symbol: sym,
		Kind:   model.KindTrade,
		Time:   now,
		Price:  st.price,
		Volume: int64(s.rng.Intn(100) + 1),
		High:   st.high,
		Low:    st.low,
	}
	ring.Push(trade)
}

// walk applies a ±0.1% random step, floored above zero.
func (s *Sim) walk(price float64) float64 {
	pct := (s.rng.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 1 {
		next = 1
	}
	return next
}

// emitSupply drifts each symbol's cumulative investor volumes and hands a
// snapshot to OnSupply.
func (s *Sim) emitSupply() {
	if s.OnSupply == nil {
		return
	}
	now := time.Now().UnixMilli()
	for _, sym := range s.cfg.Symbols {
		st := s.state[sym]
		for i := range st.supply {
			st.supply[i] += int64(s.rng.Intn(2001) - 1000)
		}
		s.OnSupply(model.SupplySnapshot{
			Symbol:  sym,
			Volumes: st.supply,
			Time:    now,
		})
	}
}

// tickSizeFor approximates KRX price-band tick sizes.
func tickSizeFor(price float64) float64 {
	switch {
	case price < 2000:
		return 1
	case price < 5000:
		return 5
	case price < 20000:
		return 10
	case price < 50000:
		return 50
	case price < 200000:
		return 100
	case price < 500000:
		return 500
	default:
		return 1000
	}
}
