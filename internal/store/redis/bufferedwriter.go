package redis

import (
	"context"
	"log"
	"sync"

	"tick-collectorv1/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, vectors are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []*model.IndicatorVector
	maxBuf int // max buffered vectors before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a vector is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered vectors
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]*model.IndicatorVector, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteVector publishes a vector through the circuit breaker.
// If the circuit is open, the vector is buffered locally.
func (bw *BufferedWriter) WriteVector(vec *model.IndicatorVector) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteVector(bw.ctx, vec)
	})
	if err == ErrCircuitOpen {
		bw.bufferVector(vec)
		return nil // buffered, not lost
	}
	return err
}

// Run reads vectors from vecCh and publishes each through the breaker.
func (bw *BufferedWriter) Run(ctx context.Context, vecCh <-chan *model.IndicatorVector) {
	for {
		select {
		case <-ctx.Done():
			return
		case vec, ok := <-vecCh:
			if !ok {
				return
			}
			if err := bw.WriteVector(vec); err != nil {
				log.Printf("[buffered-writer] publish %s: %v", vec.Symbol, err)
			}
		}
	}
}

func (bw *BufferedWriter) bufferVector(vec *model.IndicatorVector) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, vec)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered vectors through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]*model.IndicatorVector, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, vec := range toFlush {
		bw.writer.writeVector(bw.ctx, vec)
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered vectors", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered vectors waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
