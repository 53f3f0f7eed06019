package indicator

// Default window sizes. TickBufferCap follows the upstream feed's burst
// profile; the indicator windows are part of the output schema contract.
const (
	defaultTickBufferCap = 1000
	ma5Window            = 5
	rsiWindow            = 14
	stochWindow          = 14
	stochDWindow         = 3
	volRatioWindow       = 20
	zVolMinSamples       = 10
	ret1sWindowMs        = 1000
	accelAlpha           = 0.3
)

// symbolState holds all rolling state for one symbol.
// Mutated only from the engine's single compute path — no locking.
type symbolState struct {
	prices  *Window
	volumes *IntWindow
	times   *IntWindow
	highs   *Window
	lows    *Window

	rsiGains  *Window
	rsiLosses *Window
	stochK    *Window

	prevPrice  float64
	prevVolume int64

	obv int64 // running on-balance volume, baseline 0

	accelEMA  float64
	accelSeen bool

	lastUpdate int64 // ms since epoch of the last processed trade
}

func newSymbolState(tickBufferCap int) *symbolState {
	if tickBufferCap <= 0 {
		tickBufferCap = defaultTickBufferCap
	}
	return &symbolState{
		prices:    NewWindow(tickBufferCap),
		volumes:   NewIntWindow(tickBufferCap),
		times:     NewIntWindow(tickBufferCap),
		highs:     NewWindow(stochWindow),
		lows:      NewWindow(stochWindow),
		rsiGains:  NewWindow(rsiWindow),
		rsiLosses: NewWindow(rsiWindow),
		stochK:    NewWindow(stochDWindow),
	}
}
