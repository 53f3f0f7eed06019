// cmd/collector — realtime tick-to-indicator collector.
//
// Pipeline: [feed (ws|sim)] → [ring] → [router + indicator engine] →
// [fan-out] → [CSV batch writer | SQLite mirror | Redis publisher].
//
// The compute path is a single goroutine draining the ring; sinks run on
// their own goroutines behind drop-on-full channels so a slow sink never
// blocks indicator computation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tick-collectorv1/config"
	"tick-collectorv1/internal/bus"
	"tick-collectorv1/internal/feed"
	"tick-collectorv1/internal/indicator"
	"tick-collectorv1/internal/logger"
	"tick-collectorv1/internal/metrics"
	"tick-collectorv1/internal/model"
	"tick-collectorv1/internal/ringbuf"
	"tick-collectorv1/internal/router"
	csvstore "tick-collectorv1/internal/store/csv"
	redisstore "tick-collectorv1/internal/store/redis"
	sqlitestore "tick-collectorv1/internal/store/sqlite"
	"tick-collectorv1/internal/supply"
)

func main() {
	cfg := config.Load()
	symbols := cfg.ParseSymbols()

	log := logger.InitWithRotation("collector", logger.ParseLevel(cfg.LogLevel), logger.RotationConfig{
		Filename: cfg.LogFile,
	})
	log.Info("starting",
		slog.Any("symbols", symbols),
		slog.String("feed_mode", cfg.FeedMode),
		slog.String("csv_dir", cfg.CSVDir))
	if len(symbols) == 0 {
		log.Error("no symbols configured")
		os.Exit(1)
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Supply flow tracker ----
	tracker := supply.NewTracker(log)
	tracker.OnUpdate = func(string) { prom.SupplyRounds.Inc() }

	// ---- Indicator engine + router ----
	engine := indicator.NewEngine(indicator.Config{
		TickBufferCap:        cfg.TickBufferCap,
		ImbalanceLevels:      cfg.ImbalanceLevels,
		ImbalanceSignReverse: cfg.ImbalanceSign,
		StochUseBook:         cfg.StochUseBook,
		Ret1sPerSecond:       cfg.Ret1sPerSecond,
	}, tracker, log)

	rt := router.New(engine, symbols, log)
	rt.OnEvent = func(kind model.EventKind) {
		prom.EventsTotal.WithLabelValues(kind.String()).Inc()
		health.SetLastEventTime(time.Now())
	}
	rt.OnVector = func() { prom.VectorsTotal.Inc() }
	rt.OnRejected = func() { prom.RejectedEvents.Inc() }
	rt.OnComputeError = func() { prom.ComputeErrors.Inc() }
	rt.OnComputeDur = func(d time.Duration) { prom.ComputeDur.Observe(d.Seconds()) }

	// ---- CSV batch writer (primary sink, on the compute goroutine) ----
	if err := os.MkdirAll(cfg.CSVDir, 0o755); err != nil {
		log.Error("csv dir", slog.String("error", err.Error()))
		os.Exit(1)
	}
	csvWriter, err := csvstore.NewBatchWriter(csvstore.Config{Dir: cfg.CSVDir},
		cfg.BatchSize, cfg.MaxPending, log)
	if err != nil {
		log.Error("csv writer init", slog.String("error", err.Error()))
		os.Exit(1)
	}
	csvWriter.OnWrite = func(string) { prom.RowsWritten.Inc() }
	csvWriter.OnError = func(string) { prom.WriteErrors.Inc() }
	csvWriter.OnReinit = func(string) { prom.WriterReinits.Inc() }
	csvWriter.OnDropPending = func(string) { prom.RowsDropped.Inc() }
	csvWriter.OnFlushDur = func(d time.Duration) { prom.CSVFlushDur.Observe(d.Seconds()) }

	// ---- Optional SQLite mirror ----
	var sqlWriter *sqlitestore.Writer
	if cfg.SQLitePath != "" {
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Error("sqlite init failed, continuing without mirror",
				slog.String("error", err.Error()))
		} else {
			defer sqlWriter.Close()
			sqlWriter.OnCommitDur = func(d time.Duration) { prom.SQLiteBatchDur.Observe(d.Seconds()) }
			health.SetSQLiteOK(true)
			log.Info("sqlite mirror ready", slog.String("path", cfg.SQLitePath))
		}
	}

	// ---- Optional Redis publisher behind a circuit breaker ----
	var redisWriter *redisstore.Writer
	var buffered *redisstore.BufferedWriter
	if cfg.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Error("redis init failed, continuing without publisher",
				slog.String("error", err.Error()))
		} else {
			defer redisWriter.Close()
			health.SetRedisConnected(true)

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				log.Warn("redis circuit state change",
					slog.String("from", from.String()),
					slog.String("to", to.String()))
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			buffered = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
			buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
			buffered.OnFlush = func(n int) {
				log.Info("redis buffer flushed", slog.Int("count", n))
			}
		}
	}

	// ---- Liveness checks ----
	if redisWriter != nil && sqlWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 10*time.Second)
	} else if sqlWriter != nil {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Fan-out to async sinks ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}
	if sqlWriter != nil {
		go sqlWriter.Run(ctx, fanout.Subscribe())
	}
	if buffered != nil {
		go buffered.Run(ctx, fanout.Subscribe())
	}

	// Channel saturation gauge
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i, s := range fanout.ChannelStats() {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
				pending := 0
				for _, sym := range symbols {
					pending += csvWriter.Pending(sym)
				}
				prom.PendingRows.Set(float64(pending))
			}
		}
	}()

	// ---- Wire router → CSV + fan-out ----
	rt.Publish = func(vec *model.IndicatorVector) {
		if err := csvWriter.Write(vec.Symbol, vec); err != nil {
			log.Error("csv write", slog.String("symbol", vec.Symbol),
				slog.String("error", err.Error()))
		}
		fanout.Publish(vec)
	}

	// ---- Compute loop over the ring ----
	ring := ringbuf.New(cfg.RingCap)
	go rt.Run(ctx, ring)

	// Periodic safety flush
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.FlushEveryS) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := csvWriter.FlushAll(); err != nil {
					log.Error("periodic flush", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// Ring overflow gauge
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if of := ring.Overflow(); of > last {
					prom.RingBufOverflow.Add(float64(of - last))
					last = of
				}
			}
		}
	}()

	// ---- Feed ----
	switch cfg.FeedMode {
	case "sim":
		sim := feed.NewSim(feed.SimConfig{
			Symbols:        symbols,
			SupplyInterval: 3 * time.Second,
		}, log)
		sim.OnSupply = tracker.UpdateFromSnapshot
		health.SetFeedConnected(true)
		go func() {
			if err := sim.Start(ctx, ring); err != nil {
				log.Error("sim feed", slog.String("error", err.Error()))
			}
		}()
		log.Info("sim feed running")
	default:
		ingest, err := feed.NewWSIngest(feed.WSConfig{URL: cfg.FeedURL}, log)
		if err != nil {
			log.Error("feed init", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ingest.OnReconnect = func() { prom.FeedReconnects.Inc() }
		ingest.OnConnect = health.SetFeedConnected
		go func() {
			if err := ingest.Start(ctx, ring); err != nil {
				log.Error("feed", slog.String("error", err.Error()))
			}
		}()
		log.Info("ws feed running", slog.String("url", cfg.FeedURL))
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	// Flush pending rows before exit; partial day files must end on a
	// complete row.
	if err := csvWriter.FlushAll(); err != nil {
		log.Error("final flush", slog.String("error", err.Error()))
	}
	csvWriter.CloseAll()

	log.Info("shutdown complete")
}
