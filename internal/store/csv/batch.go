package csv

import (
	"log/slog"
	"sync"
	"time"

	"tick-collectorv1/internal/model"
)

// defaultMaxPending bounds per-symbol buffered rows under sustained
// persistence failure: oldest rows are dropped (and counted) rather than
// letting memory grow without limit.
const defaultMaxPending = 5000

// symbolBuffer holds the pending rows for one symbol.
type symbolBuffer struct {
	mu      sync.Mutex
	rows    []*model.IndicatorVector
	dropped int64
}

// BatchWriter accumulates rows per symbol and flushes them in one pass once
// the batch size is reached. Suited to high-frequency tick streams where a
// sync per row is too expensive. FlushAll must be called on shutdown (and is
// worth calling on a periodic safety timer).
type BatchWriter struct {
	*Writer

	batchSize  int
	maxPending int

	mu      sync.Mutex // guards the buffers map only
	buffers map[string]*symbolBuffer

	// OnDropPending is called when the pending bound evicts a row. Optional.
	OnDropPending func(symbol string)

	// OnFlushDur is called after each successful flush (for metrics). Optional.
	OnFlushDur func(d time.Duration)
}

// NewBatchWriter wraps a Writer with per-symbol batching.
// batchSize <= 0 defaults to 100; maxPending <= 0 defaults to 5000.
func NewBatchWriter(cfg Config, batchSize, maxPending int, log *slog.Logger) (*BatchWriter, error) {
	w, err := NewWriter(cfg, log)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	return &BatchWriter{
		Writer:     w,
		batchSize:  batchSize,
		maxPending: maxPending,
		buffers:    make(map[string]*symbolBuffer, 32),
	}, nil
}

// Write buffers one row; reaching the batch size triggers a flush of that
// symbol's buffer.
func (b *BatchWriter) Write(symbol string, vec *model.IndicatorVector) error {
	sb := b.buffer(symbol)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if len(sb.rows) >= b.maxPending {
		sb.rows = sb.rows[1:]
		sb.dropped++
		if b.OnDropPending != nil {
			b.OnDropPending(symbol)
		}
	}
	sb.rows = append(sb.rows, vec)

	if len(sb.rows) >= b.batchSize {
		return b.flushLocked(symbol, sb)
	}
	return nil
}

// Pending returns the number of buffered rows for a symbol.
func (b *BatchWriter) Pending(symbol string) int {
	sb := b.buffer(symbol)
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.rows)
}

// Dropped returns how many rows the pending bound has evicted for a symbol.
func (b *BatchWriter) Dropped(symbol string) int64 {
	sb := b.buffer(symbol)
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.dropped
}

// Flush writes out one symbol's buffered rows.
func (b *BatchWriter) Flush(symbol string) error {
	sb := b.buffer(symbol)
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return b.flushLocked(symbol, sb)
}

// FlushAll flushes every symbol's buffer. Used for shutdown and the periodic
// safety flush. Returns the first error encountered, flushing the rest
// regardless.
func (b *BatchWriter) FlushAll() error {
	b.mu.Lock()
	symbols := make([]string, 0, len(b.buffers))
	for s := range b.buffers {
		symbols = append(symbols, s)
	}
	b.mu.Unlock()

	var firstErr error
	for _, symbol := range symbols {
		if err := b.Flush(symbol); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseAll flushes all buffers and closes every handle.
func (b *BatchWriter) CloseAll() {
	if err := b.FlushAll(); err != nil {
		b.log.Warn("flush on close failed", slog.String("error", err.Error()))
	}
	b.Writer.CloseAll()
}

func (b *BatchWriter) buffer(symbol string) *symbolBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.buffers[symbol]
	if !ok {
		sb = &symbolBuffer{}
		b.buffers[symbol] = sb
	}
	return sb
}

// flushLocked writes all buffered rows for one symbol and syncs once.
// Caller holds sb.mu. On failure the rows stay buffered for the next attempt
// (bounded by maxPending).
func (b *BatchWriter) flushLocked(symbol string, sb *symbolBuffer) error {
	if len(sb.rows) == 0 {
		return nil
	}

	start := time.Now()
	sf := b.symbolFile(symbol)
	sf.mu.Lock()
	defer sf.mu.Unlock()

	for _, vec := range sb.rows {
		if err := b.writeRowLocked(symbol, sf, vec); err != nil {
			return err
		}
	}

	sf.w.Flush()
	err := sf.w.Error()
	if err == nil {
		err = sf.f.Sync()
	}
	if err != nil {
		b.recordFailureLocked(symbol, sf, err)
		return err
	}

	n := len(sb.rows)
	sf.errors = 0
	sf.writes += int64(n)
	sb.rows = sb.rows[:0]

	b.log.Debug("batch flushed",
		slog.String("symbol", symbol),
		slog.Int("rows", n),
	)
	if b.OnWrite != nil {
		b.OnWrite(symbol)
	}
	if b.OnFlushDur != nil {
		b.OnFlushDur(time.Since(start))
	}
	return nil
}
