package bus

import (
	"testing"
	"time"

	"tick-collectorv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	fo.Publish(&model.IndicatorVector{Symbol: "005930", Price: 70500})

	select {
	case v := <-out1:
		if v.Symbol != "005930" {
			t.Errorf("out1: expected symbol 005930, got %s", v.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for vector")
	}

	select {
	case v := <-out2:
		if v.Symbol != "005930" {
			t.Errorf("out2: expected symbol 005930, got %s", v.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for vector")
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe()
	_ = slow // never read

	drops := 0
	fo.OnDrop = func(idx int) {
		if idx != 0 {
			t.Errorf("expected drop for subscriber 0, got %d", idx)
		}
		drops++
	}

	fo.Publish(&model.IndicatorVector{Symbol: "A"}) // fills the buffer
	fo.Publish(&model.IndicatorVector{Symbol: "B"}) // dropped

	if drops != 1 {
		t.Fatalf("expected 1 drop, got %d", drops)
	}
}
