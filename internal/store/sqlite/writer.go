package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tick-collectorv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/indicators.db"
}

// Writer mirrors indicator rows into SQLite with transaction batching.
// It runs off the hot path, fed from a fan-out subscription, so a slow
// commit never stalls the compute loop. The CSV files remain the durable
// record; this mirror exists for ad-hoc SQL over recent sessions.
type Writer struct {
	db *sql.DB

	// OnCommitDur is called after each batch commit (for metrics). Optional.
	OnCommitDur func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS indicator_rows (
			symbol     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			price      REAL    NOT NULL,
			volume     INTEGER NOT NULL,
			ma5        REAL,
			rsi14      REAL,
			stoch_k    REAL,
			spread     REAL,
			imbalance  REAL,
			row_json   TEXT    NOT NULL,
			PRIMARY KEY (symbol, ts, volume)
		);

		CREATE INDEX IF NOT EXISTS idx_indicator_rows_ts ON indicator_rows (ts);
	`)
	return err
}

// Run reads vectors from vecCh and inserts them in batched transactions.
// Flushes every batchSize rows OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or vecCh is closed.
func (w *Writer) Run(ctx context.Context, vecCh <-chan *model.IndicatorVector) {
	batch := make([]*model.IndicatorVector, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d rows in %v", len(batch), time.Since(start))
		}
		if w.OnCommitDur != nil {
			w.OnCommitDur(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case vec, ok := <-vecCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, vec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of vectors in a single transaction.
func (w *Writer) insertBatch(vecs []*model.IndicatorVector) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO indicator_rows
			(symbol, ts, price, volume, ma5, rsi14, stoch_k, spread, imbalance, row_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, v := range vecs {
		_, err := stmt.Exec(
			v.Symbol, v.Time, v.Price, v.Volume,
			v.MA5, v.RSI14, v.StochK, v.Spread, v.BidAskImbalance,
			string(v.JSON()),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored row timestamp for a symbol.
// Returns 0 if no rows exist.
func (w *Writer) GetLastTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM indicator_rows WHERE symbol = ?`,
		symbol,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
