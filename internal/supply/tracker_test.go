package supply

import (
	"sync"
	"testing"

	"tick-collectorv1/internal/model"
)

func snapshot(symbol string, ts int64, vols ...int64) model.SupplySnapshot {
	snap := model.SupplySnapshot{Symbol: symbol, Time: ts}
	copy(snap.Volumes[:], vols)
	return snap
}

func TestTracker_UnknownSymbolZeroRecord(t *testing.T) {
	tr := NewTracker(nil)

	rec := tr.Current("005930")
	if rec.Round != 0 || rec.LastUpdate != 0 {
		t.Errorf("expected zero record, got %+v", rec)
	}
	for i, v := range rec.Current {
		if v != 0 {
			t.Errorf("current[%d] = %d, want 0", i, v)
		}
	}
}

func TestTracker_DeltaAgainstPrevious(t *testing.T) {
	tr := NewTracker(nil)

	tr.UpdateFromSnapshot(snapshot("005930", 1000, 100, -50))
	rec := tr.Current("005930")
	if rec.Round != 1 {
		t.Errorf("round = %d, want 1", rec.Round)
	}
	// First snapshot: previous is zero, so delta equals current.
	if rec.Delta[0] != 100 || rec.Delta[1] != -50 {
		t.Errorf("first delta = %v", rec.Delta)
	}

	tr.UpdateFromSnapshot(snapshot("005930", 2000, 130, -80))
	rec = tr.Current("005930")
	if rec.Round != 2 {
		t.Errorf("round = %d, want 2", rec.Round)
	}
	if rec.Current[0] != 130 || rec.Current[1] != -80 {
		t.Errorf("current = %v", rec.Current)
	}
	if rec.Delta[0] != 30 || rec.Delta[1] != -30 {
		t.Errorf("delta = %v, want [30 -30 ...]", rec.Delta)
	}
	if rec.LastUpdate != 2000 {
		t.Errorf("last update = %d, want 2000", rec.LastUpdate)
	}
}

func TestTracker_SymbolsIsolated(t *testing.T) {
	tr := NewTracker(nil)

	tr.UpdateFromSnapshot(snapshot("005930", 1000, 100))
	tr.UpdateFromSnapshot(snapshot("000660", 1000, 999))

	if rec := tr.Current("005930"); rec.Current[0] != 100 {
		t.Errorf("005930 current = %v", rec.Current)
	}
	if rec := tr.Current("000660"); rec.Current[0] != 999 {
		t.Errorf("000660 current = %v", rec.Current)
	}
	if got := len(tr.Symbols()); got != 2 {
		t.Errorf("symbols = %d, want 2", got)
	}
}

func TestTracker_OnUpdateHook(t *testing.T) {
	tr := NewTracker(nil)

	var updates []string
	tr.OnUpdate = func(symbol string) { updates = append(updates, symbol) }

	tr.UpdateFromSnapshot(snapshot("005930", 1000, 1))
	tr.UpdateFromSnapshot(snapshot("005930", 2000, 2))

	if len(updates) != 2 || updates[0] != "005930" {
		t.Errorf("updates = %v", updates)
	}
}

func TestTracker_ConcurrentReadersAndWriter(t *testing.T) {
	tr := NewTracker(nil)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateFromSnapshot(snapshot("005930", int64(i), int64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			rec := tr.Current("005930")
			if rec.Current[0] < 0 {
				t.Errorf("impossible negative cumulative: %v", rec.Current)
				return
			}
		}
	}()

	wg.Wait()
}
