// Package redis publishes computed indicator vectors to Redis for live
// consumers: one capped stream per symbol plus a latest-value key.
// Redis here is a best-effort side channel — the CSV files stay the durable
// record, so publish failures are logged and never propagated upstream.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"tick-collectorv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: roughly one active session of tick rows per symbol.
	streamMaxLen     = 50000
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes indicator vectors to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// StreamKey returns the per-symbol indicator stream key.
func StreamKey(symbol string) string {
	return "ind:" + symbol
}

// LatestKey returns the per-symbol latest-vector key.
func LatestKey(symbol string) string {
	return "ind:latest:" + symbol
}

// Run reads vectors from vecCh and publishes them.
// Blocks until ctx is cancelled or vecCh is closed.
func (w *Writer) Run(ctx context.Context, vecCh <-chan *model.IndicatorVector) {
	for {
		select {
		case <-ctx.Done():
			return
		case vec, ok := <-vecCh:
			if !ok {
				return
			}
			w.writeVector(ctx, vec)
		}
	}
}

// writeVector publishes one vector: XADD to the capped stream and SET the
// latest key. Errors are logged, not returned — callers that need failure
// signalling go through WriteVector.
func (w *Writer) writeVector(ctx context.Context, vec *model.IndicatorVector) {
	if err := w.WriteVector(ctx, vec); err != nil {
		log.Printf("[redis] publish %s: %v", vec.Symbol, err)
	}
}

// WriteVector publishes one vector and reports the first error.
func (w *Writer) WriteVector(ctx context.Context, vec *model.IndicatorVector) error {
	data := string(vec.JSON())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(vec.Symbol),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"row": data},
	})
	pipe.Set(ctx, LatestKey(vec.Symbol), data, defaultLatestTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks connectivity (for periodic liveness checks).
func (w *Writer) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close releases the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
