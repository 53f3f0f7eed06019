// Package indicator computes the per-trade indicator vector from rolling
// per-symbol tick state.
//
// The engine is designed for single-goroutine usage: the router serializes
// events per symbol, so state mutation needs no locks.
package indicator

import (
	"errors"
	"fmt"
	"log/slog"

	"tick-collectorv1/internal/model"
)

// ErrNoPrice is returned for trade events without a positive price.
var ErrNoPrice = errors.New("trade event has no positive price")

// SupplyReader provides the latest investor-flow record for a symbol.
// Satisfied by supply.Tracker.
type SupplyReader interface {
	Current(symbol string) model.SupplyFlowRecord
}

// Config holds the tunable indicator parameters.
type Config struct {
	// TickBufferCap is the price/volume/time history depth. Default 1000.
	TickBufferCap int

	// ImbalanceLevels is how many book levels feed bid_ask_imbalance (1..5).
	// Default 5.
	ImbalanceLevels int

	// ImbalanceSignReverse flips the imbalance sign so sell pressure
	// reads positive.
	ImbalanceSignReverse bool

	// StochUseBook widens the stochastic high/low range with the level-5
	// ask/bid prices when present.
	StochUseBook bool

	// Ret1sPerSecond normalizes ret_1s to a per-second rate instead of the
	// raw percent change over the observed interval.
	Ret1sPerSecond bool
}

func (c *Config) defaults() {
	if c.TickBufferCap <= 0 {
		c.TickBufferCap = defaultTickBufferCap
	}
	if c.ImbalanceLevels <= 0 || c.ImbalanceLevels > model.BookLevels {
		c.ImbalanceLevels = model.BookLevels
	}
}

// Engine owns one rolling state per symbol and computes the full indicator
// vector from an enriched trade event.
type Engine struct {
	cfg    Config
	supply SupplyReader // optional
	log    *slog.Logger

	state map[string]*symbolState
}

// NewEngine creates an indicator engine. supply may be nil, in which case the
// investor-flow columns stay zero.
func NewEngine(cfg Config, supply SupplyReader, log *slog.Logger) *Engine {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		supply: supply,
		log:    log,
		state:  make(map[string]*symbolState, 32),
	}
}

// Compute processes one enriched trade event and returns the complete vector.
// Never returns a partial vector: any failure (including a panic in the
// numeric path) drops the tick and returns an error.
func (e *Engine) Compute(ev *model.TickEvent) (vec *model.IndicatorVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("indicator compute panic, tick dropped",
				slog.String("symbol", ev.Symbol),
				slog.Any("panic", r),
				slog.String("event", string(ev.JSON())),
			)
			vec = nil
			err = fmt.Errorf("compute %s: %v", ev.Symbol, r)
		}
	}()

	if ev.Price <= 0 {
		return nil, ErrNoPrice
	}

	st, ok := e.state[ev.Symbol]
	if !ok {
		st = newSymbolState(e.cfg.TickBufferCap)
		e.state[ev.Symbol] = st
	}

	price := ev.Price
	volume := ev.Volume
	ts := ev.Time

	high := ev.High
	if high <= 0 {
		high = price
	}
	low := ev.Low
	if low <= 0 {
		low = price
	}

	st.prices.Append(price)
	st.volumes.Append(volume)
	st.times.Append(ts)
	st.highs.Append(high)
	st.lows.Append(low)

	v := &model.IndicatorVector{
		Time:   ts,
		Symbol: ev.Symbol,
		Price:  price,
		Volume: volume,

		Ask:    ev.Ask,
		Bid:    ev.Bid,
		AskQty: ev.AskQty,
		BidQty: ev.BidQty,
	}

	v.MA5 = st.prices.MeanLast(ma5Window)
	v.RSI14 = e.rsi14(st, price)
	v.Disparity = disparity(price, v.MA5)
	v.StochK = e.stochK(st, ev, price)
	v.StochD = stochD(st)

	v.VolRatio = volRatio(st, volume)
	v.ZVol = zVol(st, volume)
	v.OBVDelta = obvDelta(st, price, volume)

	v.Spread = spread(ev)
	v.BidAskImbalance = e.imbalance(ev)

	v.AccelDelta = e.accelDelta(st)
	v.Ret1s = e.ret1s(st, ts, price)

	if e.supply != nil {
		rec := e.supply.Current(ev.Symbol)
		v.Net = rec.Current
		v.NetDelta = rec.Delta
	}

	// Previous-tick state is only advanced once every indicator that reads
	// it has run for this tick.
	st.prevPrice = price
	st.prevVolume = volume
	st.lastUpdate = ts

	return v, nil
}

// rsi14 buckets the signed price delta into gain/loss windows and computes
// RSI over the last 14 samples. Below 14 samples the neutral 50 is reported.
func (e *Engine) rsi14(st *symbolState, price float64) float64 {
	if st.prices.Len() < 2 || st.prevPrice == 0 {
		return 50.0
	}

	delta := price - st.prevPrice
	switch {
	case delta > 0:
		st.rsiGains.Append(delta)
		st.rsiLosses.Append(0)
	case delta < 0:
		st.rsiGains.Append(0)
		st.rsiLosses.Append(-delta)
	default:
		st.rsiGains.Append(0)
		st.rsiLosses.Append(0)
	}

	if st.rsiGains.Len() < rsiWindow {
		return 50.0
	}

	avgGain := st.rsiGains.Mean()
	avgLoss := st.rsiLosses.Mean()
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / (avgLoss + 1e-10)
	return 100.0 - (100.0 / (1.0 + rs))
}

func disparity(price, ma5 float64) float64 {
	if ma5 == 0 {
		return 100.0
	}
	return price / ma5 * 100.0
}

// stochK computes %K over the 14-sample high/low window. The %K history only
// advances once the window is complete, so %D stays neutral until then.
func (e *Engine) stochK(st *symbolState, ev *model.TickEvent, price float64) float64 {
	if st.highs.Len() < stochWindow || st.lows.Len() < stochWindow {
		return 50.0
	}

	maxHigh := st.highs.Max()
	minLow := st.lows.Min()

	if e.cfg.StochUseBook {
		if a := ev.Ask[model.BookLevels-1]; a > maxHigh {
			maxHigh = a
		}
		if b := ev.Bid[model.BookLevels-1]; b > 0 && b < minLow {
			minLow = b
		}
	}

	k := 50.0
	if maxHigh != minLow {
		k = (price - minLow) / (maxHigh - minLow) * 100.0
	}
	st.stochK.Append(k)
	return k
}

func stochD(st *symbolState) float64 {
	if st.stochK.Len() < stochDWindow {
		return 50.0
	}
	return st.stochK.Mean()
}

// volRatio relates the current trade volume to the mean of the last 20.
// Degenerate inputs report the neutral 1.0.
func volRatio(st *symbolState, volume int64) float64 {
	if volume == 0 || st.volumes.Len() < 2 {
		return 1.0
	}
	avg := st.volumes.MeanLast(volRatioWindow)
	if avg == 0 {
		return 1.0
	}
	return float64(volume) / avg
}

func zVol(st *symbolState, volume int64) float64 {
	if st.volumes.Len() < zVolMinSamples {
		return 0.0
	}
	std := st.volumes.Std()
	if std == 0 {
		return 0.0
	}
	return (float64(volume) - st.volumes.Mean()) / std
}

// obvDelta advances the running on-balance volume by the signed trade volume.
// The baseline is 0: the first trade carries no direction and contributes
// nothing.
func obvDelta(st *symbolState, price float64, volume int64) float64 {
	if st.prevPrice == 0 {
		return 0.0
	}

	newOBV := st.obv
	switch {
	case price > st.prevPrice:
		newOBV += volume
	case price < st.prevPrice:
		newOBV -= volume
	}

	delta := newOBV - st.obv
	st.obv = newOBV
	return float64(delta)
}

func spread(ev *model.TickEvent) float64 {
	ask1, bid1 := ev.Ask[0], ev.Bid[0]
	if ask1 > 0 && bid1 > 0 {
		return ask1 - bid1
	}
	return 0.0
}

func (e *Engine) imbalance(ev *model.TickEvent) float64 {
	var totalBid, totalAsk int64
	for i := 0; i < e.cfg.ImbalanceLevels; i++ {
		totalBid += ev.BidQty[i]
		totalAsk += ev.AskQty[i]
	}

	total := totalBid + totalAsk
	if total == 0 {
		return 0.0
	}

	imb := float64(totalBid-totalAsk) / float64(total)
	if e.cfg.ImbalanceSignReverse {
		imb = -imb
	}
	return imb
}

// accelDelta is the second difference of the last 3 prices per elapsed
// second, EMA-smoothed. With fewer than 3 samples it reports 0.
func (e *Engine) accelDelta(st *symbolState) float64 {
	n := st.prices.Len()
	if n < 3 {
		return 0.0
	}

	p0, p1, p2 := st.prices.At(n-3), st.prices.At(n-2), st.prices.At(n-1)
	accel := (p2 - p1) - (p1 - p0)

	if elapsed := float64(st.times.At(n-1)-st.times.At(n-3)) / 1000.0; elapsed > 0 {
		accel /= elapsed
	}

	if !st.accelSeen {
		st.accelEMA = accel
		st.accelSeen = true
	} else {
		st.accelEMA = accelAlpha*accel + (1-accelAlpha)*st.accelEMA
	}
	return st.accelEMA
}

// ret1s is the percent change between the oldest and newest price inside the
// trailing 1000ms window.
func (e *Engine) ret1s(st *symbolState, ts int64, price float64) float64 {
	n := st.times.Len()
	cutoff := ts - ret1sWindowMs

	// Walk back to the oldest sample still inside the window.
	oldest := n - 1
	for i := n - 2; i >= 0; i-- {
		if st.times.At(i) < cutoff {
			break
		}
		oldest = i
	}

	if n-oldest < 2 {
		return 0.0
	}

	prevPrice := st.prices.At(oldest)
	if prevPrice <= 0 {
		return 0.0
	}

	pct := (price - prevPrice) / prevPrice * 100.0
	if e.cfg.Ret1sPerSecond {
		if dt := ts - st.times.At(oldest); dt > 0 {
			pct = pct * float64(ret1sWindowMs) / float64(dt)
		}
	}
	return pct
}

// BufferLen reports the current price-history depth for a symbol.
// Used by status reporting; 0 for unseen symbols.
func (e *Engine) BufferLen(symbol string) int {
	st, ok := e.state[symbol]
	if !ok {
		return 0
	}
	return st.prices.Len()
}

// LastUpdate reports the timestamp (ms) of the last processed trade for a
// symbol, 0 for unseen symbols.
func (e *Engine) LastUpdate(symbol string) int64 {
	st, ok := e.state[symbol]
	if !ok {
		return 0
	}
	return st.lastUpdate
}
