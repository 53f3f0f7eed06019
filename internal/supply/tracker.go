// Package supply tracks cumulative investor-flow snapshots per symbol.
//
// The tracker is purely reactive: an external refresh collaborator pushes
// snapshots (rate-limited upstream, at most one per symbol per minute) and the
// indicator engine reads through on every trade. Reads and writes come from
// different goroutines, hence the RWMutex.
package supply

import (
	"log/slog"
	"sync"

	"tick-collectorv1/internal/model"
)

// record is the per-symbol tracker state.
type record struct {
	current  model.SupplyVolumes
	previous model.SupplyVolumes

	lastUpdate int64
	round      int64
}

// Tracker holds one investor-flow record per symbol.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
	log     *slog.Logger

	// OnUpdate is called after each applied snapshot (for metrics).
	OnUpdate func(symbol string)
}

// NewTracker creates an empty tracker.
func NewTracker(log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		records: make(map[string]*record, 32),
		log:     log,
	}
}

// UpdateFromSnapshot archives the current values as previous and replaces
// them with the snapshot's cumulative values.
func (t *Tracker) UpdateFromSnapshot(snap model.SupplySnapshot) {
	t.mu.Lock()
	rec, ok := t.records[snap.Symbol]
	if !ok {
		rec = &record{}
		t.records[snap.Symbol] = rec
	}

	rec.previous = rec.current
	rec.current = snap.Volumes
	rec.lastUpdate = snap.Time
	rec.round++
	round := rec.round
	t.mu.Unlock()

	t.log.Debug("supply snapshot applied",
		slog.String("symbol", snap.Symbol),
		slog.Int64("round", round),
	)
	if t.OnUpdate != nil {
		t.OnUpdate(snap.Symbol)
	}
}

// Current returns the latest record for a symbol: cumulative values, the
// per-category delta against the previous snapshot, and update bookkeeping.
// Symbols never updated return the zero record.
func (t *Tracker) Current(symbol string) model.SupplyFlowRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[symbol]
	if !ok {
		return model.SupplyFlowRecord{}
	}

	out := model.SupplyFlowRecord{
		Current:    rec.current,
		LastUpdate: rec.lastUpdate,
		Round:      rec.round,
	}
	for i := range rec.current {
		out.Delta[i] = rec.current[i] - rec.previous[i]
	}
	return out
}

// Symbols returns the symbols with at least one applied snapshot.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.records))
	for s := range t.records {
		out = append(out, s)
	}
	return out
}
