package indicator

import (
	"math"
	"testing"
)

func TestWindow_FIFOEviction(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Append(v)
	}

	if w.Len() != 3 {
		t.Fatalf("len = %d, want 3", w.Len())
	}
	want := []float64{3, 4, 5}
	for i, exp := range want {
		if got := w.At(i); got != exp {
			t.Errorf("At(%d) = %v, want %v", i, got, exp)
		}
	}
}

func TestWindow_MeanLast(t *testing.T) {
	w := NewWindow(10)
	for _, v := range []float64{10, 20, 30, 40} {
		w.Append(v)
	}

	if got := w.MeanLast(2); math.Abs(got-35) > eps {
		t.Errorf("MeanLast(2) = %v, want 35", got)
	}
	// n larger than held count falls back to all samples.
	if got := w.MeanLast(100); math.Abs(got-25) > eps {
		t.Errorf("MeanLast(100) = %v, want 25", got)
	}
}

func TestWindow_EmptyReturnsZero(t *testing.T) {
	w := NewWindow(5)
	if w.Mean() != 0 || w.Std() != 0 || w.Min() != 0 || w.Max() != 0 {
		t.Error("empty window aggregates should all be 0")
	}
}

func TestWindow_MinMaxAcrossWrap(t *testing.T) {
	w := NewWindow(4)
	for _, v := range []float64{9, 1, 7, 3, 8} { // evicts 9
		w.Append(v)
	}
	if got := w.Min(); got != 1 {
		t.Errorf("min = %v, want 1", got)
	}
	if got := w.Max(); got != 8 {
		t.Errorf("max = %v, want 8 (9 evicted)", got)
	}
}

func TestWindow_PopulationStd(t *testing.T) {
	w := NewWindow(10)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Append(v)
	}
	// Known population std of this classic sequence is exactly 2.
	if got := w.Std(); math.Abs(got-2) > eps {
		t.Errorf("std = %v, want 2", got)
	}
}

func TestIntWindow_MeanAndStd(t *testing.T) {
	w := NewIntWindow(5)
	for _, v := range []int64{10, 10, 10} {
		w.Append(v)
	}
	if got := w.Mean(); math.Abs(got-10) > eps {
		t.Errorf("mean = %v, want 10", got)
	}
	if got := w.Std(); got != 0 {
		t.Errorf("std of constant samples = %v, want 0", got)
	}

	w.Append(20)
	if got := w.MeanLast(2); math.Abs(got-15) > eps {
		t.Errorf("MeanLast(2) = %v, want 15", got)
	}
}

func TestWindow_TinyCapacity(t *testing.T) {
	w := NewWindow(0) // clamped to 1
	w.Append(5)
	w.Append(6)
	if w.Len() != 1 || w.At(0) != 6 {
		t.Errorf("capacity-1 window: len=%d At(0)=%v, want 1/6", w.Len(), w.At(0))
	}
}
