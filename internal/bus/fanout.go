package bus

import (
	"context"
	"log"
	"sync"

	"tick-collectorv1/internal/model"
)

// FanOut broadcasts indicator vectors from a single input channel to N output
// channels. If an output channel is full, the vector is dropped for that
// consumer to prevent a slow sink from blocking the compute path.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan *model.IndicatorVector
	bufSize int

	// OnDrop is called when a vector is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan *model.IndicatorVector {
	ch := make(chan *model.IndicatorVector, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Publish offers one vector to every subscriber, dropping per slow consumer.
// Safe to call from the router's compute goroutine.
func (f *FanOut) Publish(v *model.IndicatorVector) {
	f.mu.RLock()
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] output channel %d full, dropping vector %s", i, v.Symbol)
			}
		}
	}
	f.mu.RUnlock()
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan *model.IndicatorVector) {
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes all subscriber channels.
func (f *FanOut) Close() {
	f.mu.RLock()
	for _, ch := range f.outputs {
		close(ch)
	}
	f.mu.RUnlock()
}

// ChannelStat reports (length, capacity) for a subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns the stat for each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
