// Package csv persists indicator vectors to per-symbol, per-day CSV files.
//
// One append-only file per (symbol, calendar day), named
// "<symbol>_44indicators_realtime_<YYYYMMDD>.csv". New files get a UTF-8 BOM
// and the schema header; existing files are appended to. Each symbol's handle
// is guarded by its own lock so symbols never block each other.
package csv

import (
	encsv "encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tick-collectorv1/internal/model"
)

// reinitThreshold is how many consecutive write failures tear down and
// recreate a symbol's file handle.
const reinitThreshold = 10

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Filename returns the per-symbol per-day file name.
func Filename(symbol, day string) string {
	return symbol + "_44indicators_realtime_" + day + ".csv"
}

// symbolFile is the live file state for one symbol.
type symbolFile struct {
	mu sync.Mutex

	f   *os.File
	w   *encsv.Writer
	day string // YYYYMMDD the handle was opened for

	writes  int64
	errors  int64 // consecutive failures since the last success
	reinits int64
}

// Config configures the writer.
type Config struct {
	Dir string // base directory for output files
}

// Writer writes one vector per row, flushing and syncing immediately.
// Simple baseline: lower throughput, higher durability. See BatchWriter for
// the buffered variant.
type Writer struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex // guards the files map only
	files map[string]*symbolFile

	// Metrics hooks, all optional.
	OnWrite  func(symbol string)
	OnError  func(symbol string)
	OnReinit func(symbol string)
}

// NewWriter creates the output directory and returns a Writer.
func NewWriter(cfg Config, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv: create dir %s: %w", cfg.Dir, err)
	}
	return &Writer{
		dir:   cfg.Dir,
		log:   log,
		files: make(map[string]*symbolFile, 32),
	}, nil
}

// Filepath returns the current day's file path for a symbol.
func (w *Writer) Filepath(symbol string) string {
	return filepath.Join(w.dir, Filename(symbol, today()))
}

// Write appends one vector row for the symbol and syncs it to disk.
// I/O failures are counted per symbol; the handle is recreated after
// reinitThreshold consecutive failures. Never panics.
func (w *Writer) Write(symbol string, vec *model.IndicatorVector) error {
	sf := w.symbolFile(symbol)

	sf.mu.Lock()
	defer sf.mu.Unlock()

	if err := w.writeRowLocked(symbol, sf, vec); err != nil {
		return err
	}

	sf.w.Flush()
	err := sf.w.Error()
	if err == nil {
		err = sf.f.Sync()
	}
	if err == nil {
		w.recordSuccessLocked(symbol, sf)
		return nil
	}

	w.recordFailureLocked(symbol, sf, err)
	return err
}

// symbolFile returns the state entry for symbol, creating it if needed.
func (w *Writer) symbolFile(symbol string) *symbolFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	sf, ok := w.files[symbol]
	if !ok {
		sf = &symbolFile{}
		w.files[symbol] = sf
	}
	return sf
}

// writeRowLocked ensures the handle is open for today and writes one row.
// Caller holds sf.mu.
func (w *Writer) writeRowLocked(symbol string, sf *symbolFile, vec *model.IndicatorVector) error {
	if err := w.ensureOpenLocked(symbol, sf); err != nil {
		w.recordFailureLocked(symbol, sf, err)
		return err
	}
	if err := sf.w.Write(vec.Row()); err != nil {
		w.recordFailureLocked(symbol, sf, err)
		return err
	}
	return nil
}

// ensureOpenLocked opens (or rolls over) the symbol's file for today.
func (w *Writer) ensureOpenLocked(symbol string, sf *symbolFile) error {
	day := today()
	if sf.f != nil && sf.day == day {
		return nil
	}

	if sf.f != nil {
		// Calendar day changed under a long-running process.
		sf.w.Flush()
		sf.f.Close()
		sf.f = nil
		sf.w = nil
	}

	path := filepath.Join(w.dir, Filename(symbol, day))
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csv: open %s: %w", path, err)
	}

	cw := encsv.NewWriter(f)
	if isNew {
		if _, err := f.Write(utf8BOM); err != nil {
			f.Close()
			return fmt.Errorf("csv: write BOM %s: %w", path, err)
		}
		if err := cw.Write(model.ColumnNames()); err != nil {
			f.Close()
			return fmt.Errorf("csv: write header %s: %w", path, err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return fmt.Errorf("csv: flush header %s: %w", path, err)
		}
		w.log.Info("csv file created", slog.String("path", path))
	}

	sf.f = f
	sf.w = cw
	sf.day = day
	return nil
}

// recordSuccessLocked resets the consecutive-failure counter.
func (w *Writer) recordSuccessLocked(symbol string, sf *symbolFile) {
	sf.errors = 0
	sf.writes++
	if sf.writes%1000 == 0 {
		w.log.Info("csv progress",
			slog.String("symbol", symbol),
			slog.Int64("rows", sf.writes),
		)
	}
	if w.OnWrite != nil {
		w.OnWrite(symbol)
	}
}

// recordFailureLocked counts a failure and recreates the handle once the
// threshold is reached.
func (w *Writer) recordFailureLocked(symbol string, sf *symbolFile, err error) {
	sf.errors++
	w.log.Warn("csv write failed",
		slog.String("symbol", symbol),
		slog.Int64("consecutive", sf.errors),
		slog.String("error", err.Error()),
	)
	if w.OnError != nil {
		w.OnError(symbol)
	}

	if sf.errors >= reinitThreshold {
		w.reinitLocked(symbol, sf)
	}
}

// reinitLocked tears down and recreates the symbol's handle to recover from
// transient I/O faults (deleted file, stale descriptor, full disk cleared).
func (w *Writer) reinitLocked(symbol string, sf *symbolFile) {
	if sf.f != nil {
		sf.f.Close()
	}
	sf.f = nil
	sf.w = nil
	sf.reinits++
	if w.OnReinit != nil {
		w.OnReinit(symbol)
	}

	if err := w.ensureOpenLocked(symbol, sf); err != nil {
		w.log.Error("csv reinit failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	sf.errors = 0
	w.log.Info("csv handle reinitialized", slog.String("symbol", symbol))
}

// Backup copies every open symbol's current-day file to a suffixed sibling
// without interrupting the live writer. An empty suffix uses
// "_backup_<HHMMSS>".
func (w *Writer) Backup(suffix string) (int, error) {
	if suffix == "" {
		suffix = "_backup_" + time.Now().Format("150405")
	}

	w.mu.Lock()
	symbols := make([]string, 0, len(w.files))
	for s := range w.files {
		symbols = append(symbols, s)
	}
	w.mu.Unlock()

	copied := 0
	var firstErr error
	for _, symbol := range symbols {
		sf := w.symbolFile(symbol)

		// Settle buffered bytes, then release the lock: copying an
		// append-only file while rows land behind the copy point is safe.
		sf.mu.Lock()
		if sf.w != nil {
			sf.w.Flush()
			sf.f.Sync()
		}
		path := filepath.Join(w.dir, Filename(symbol, sf.day))
		sf.mu.Unlock()

		if sf.day == "" {
			continue
		}
		dst := strings.TrimSuffix(path, ".csv") + suffix + ".csv"
		if err := copyFile(path, dst); err != nil {
			w.log.Warn("csv backup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		copied++
	}

	w.log.Info("csv backup done", slog.Int("files", copied))
	return copied, firstErr
}

// SymbolStats are the persistence counters for one symbol.
type SymbolStats struct {
	Writes  int64
	Errors  int64
	Reinits int64
}

// Stats returns per-symbol persistence counters.
func (w *Writer) Stats() map[string]SymbolStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]SymbolStats, len(w.files))
	for symbol, sf := range w.files {
		sf.mu.Lock()
		out[symbol] = SymbolStats{
			Writes:  sf.writes,
			Errors:  sf.errors,
			Reinits: sf.reinits,
		}
		sf.mu.Unlock()
	}
	return out
}

// CloseAll flushes and closes every open handle.
func (w *Writer) CloseAll() {
	w.mu.Lock()
	files := make(map[string]*symbolFile, len(w.files))
	for s, sf := range w.files {
		files[s] = sf
	}
	w.mu.Unlock()

	for symbol, sf := range files {
		sf.mu.Lock()
		if sf.f != nil {
			sf.w.Flush()
			sf.f.Sync()
			sf.f.Close()
			sf.f = nil
			sf.w = nil
		}
		w.log.Info("csv closed",
			slog.String("symbol", symbol),
			slog.Int64("rows", sf.writes),
		)
		sf.mu.Unlock()
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func today() string {
	return time.Now().Format("20060102")
}
