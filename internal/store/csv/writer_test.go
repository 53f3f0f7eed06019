package csv

import (
	"bytes"
	encsv "encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tick-collectorv1/internal/model"
)

func sampleVector(symbol string, ts int64, price float64) *model.IndicatorVector {
	v := &model.IndicatorVector{
		Time:      ts,
		Symbol:    symbol,
		Price:     price,
		Volume:    1000,
		MA5:       price,
		RSI14:     50,
		Disparity: 100,
		StochK:    50,
		StochD:    50,
		VolRatio:  1,
		Spread:    100,
	}
	v.Ask[0] = price + 100
	v.Bid[0] = price
	v.AskQty[0] = 10
	v.BidQty[0] = 15
	v.Net[0] = 12345
	v.NetDelta[0] = -42
	return v
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("%s: missing UTF-8 BOM", path)
	}
	rows, err := encsv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestWriter_RoundTrip(t *testing.T) {
	w, err := NewWriter(Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	vec := sampleVector("005930", time.Now().UnixMilli(), 70500)
	if err := w.Write("005930", vec); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows := readRows(t, w.Filepath("005930"))
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}

	header := model.ColumnNames()
	if len(rows[0]) != len(header) {
		t.Fatalf("header width: expected %d, got %d", len(header), len(rows[0]))
	}
	for i, name := range header {
		if rows[0][i] != name {
			t.Errorf("header[%d]: expected %s, got %s", i, name, rows[0][i])
		}
	}

	// A parsed-back row reproduces every field value.
	want := vec.Row()
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("col %s: expected %q, got %q", header[i], want[i], rows[1][i])
		}
	}
}

func TestWriter_FilenamePattern(t *testing.T) {
	w, err := NewWriter(Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	day := time.Now().Format("20060102")
	want := "000660_44indicators_realtime_" + day + ".csv"
	if got := filepath.Base(w.Filepath("000660")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestWriter_HeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(Config{Dir: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Write("005930", sampleVector("005930", 1000, 100))
	w.CloseAll()

	// Reopen: the existing file must be appended to, not re-headed.
	w2, err := NewWriter(Config{Dir: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w2.Write("005930", sampleVector("005930", 2000, 101))
	w2.CloseAll()

	rows := readRows(t, filepath.Join(dir, Filename("005930", time.Now().Format("20060102"))))
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] == rows[0][0] {
		t.Fatal("second header row found")
	}
}

func TestWriter_ReinitAfterConsecutiveFailures(t *testing.T) {
	w, err := NewWriter(Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	if err := w.Write("BBB", sampleVector("BBB", 1000, 100)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Sabotage the handle to simulate a transient I/O fault.
	sf := w.symbolFile("BBB")
	sf.mu.Lock()
	sf.f.Close()
	sf.mu.Unlock()

	for i := 0; i < reinitThreshold; i++ {
		if err := w.Write("BBB", sampleVector("BBB", int64(2000+i), 100)); err == nil {
			t.Fatalf("write %d: expected failure on closed handle", i)
		}
	}

	sf.mu.Lock()
	reinits := sf.reinits
	sf.mu.Unlock()
	if reinits != 1 {
		t.Fatalf("expected 1 reinit after %d failures, got %d", reinitThreshold, reinits)
	}

	// The recreated handle recovers, and the error counter reads 0 again.
	if err := w.Write("BBB", sampleVector("BBB", 9000, 105)); err != nil {
		t.Fatalf("write after reinit: %v", err)
	}
	stats := w.Stats()["BBB"]
	if stats.Errors != 0 {
		t.Fatalf("expected error counter reset to 0, got %d", stats.Errors)
	}
	if stats.Writes < 2 {
		t.Fatalf("expected at least 2 successful writes, got %d", stats.Writes)
	}
}

func TestWriter_Backup(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	w.Write("005930", sampleVector("005930", 1000, 100))

	copied, err := w.Backup("_snap")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if copied != 1 {
		t.Fatalf("expected 1 file copied, got %d", copied)
	}

	base := strings.TrimSuffix(Filename("005930", time.Now().Format("20060102")), ".csv")
	rows := readRows(t, filepath.Join(dir, base+"_snap.csv"))
	if len(rows) != 2 {
		t.Fatalf("backup content: expected 2 rows, got %d", len(rows))
	}

	// The live writer keeps going after the backup.
	if err := w.Write("005930", sampleVector("005930", 2000, 101)); err != nil {
		t.Fatalf("write after backup: %v", err)
	}
}

func TestBatchWriter_AutoFlushAtBatchSize(t *testing.T) {
	w, err := NewBatchWriter(Config{Dir: t.TempDir()}, 3, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	// 7 writes with batch_size=3: auto-flush after writes 3 and 6.
	for i := 0; i < 7; i++ {
		if err := w.Write("000660", sampleVector("000660", int64(1000+i), 100)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	rows := readRows(t, w.Filepath("000660"))
	if got := len(rows) - 1; got != 6 {
		t.Fatalf("expected 6 persisted rows before explicit flush, got %d", got)
	}
	if w.Pending("000660") != 1 {
		t.Fatalf("expected 1 pending row, got %d", w.Pending("000660"))
	}

	// The 7th row needs the explicit flush.
	if err := w.FlushAll(); err != nil {
		t.Fatalf("flush all: %v", err)
	}
	rows = readRows(t, w.Filepath("000660"))
	if got := len(rows) - 1; got != 7 {
		t.Fatalf("expected 7 persisted rows after flush, got %d", got)
	}
	if w.Pending("000660") != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", w.Pending("000660"))
	}
}

func TestBatchWriter_PendingBoundDropsOldest(t *testing.T) {
	// batchSize larger than maxPending forces pure buffering.
	w, err := NewBatchWriter(Config{Dir: t.TempDir()}, 100, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.CloseAll()

	dropped := 0
	w.OnDropPending = func(string) { dropped++ }

	for i := 0; i < 5; i++ {
		w.Write("AAA", sampleVector("AAA", int64(1000+i), 100))
	}

	if w.Pending("AAA") != 3 {
		t.Fatalf("expected pending capped at 3, got %d", w.Pending("AAA"))
	}
	if dropped != 2 || w.Dropped("AAA") != 2 {
		t.Fatalf("expected 2 dropped rows, got hook=%d counter=%d", dropped, w.Dropped("AAA"))
	}
}
