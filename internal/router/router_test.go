package router

import (
	"context"
	"math"
	"testing"
	"time"

	"tick-collectorv1/internal/indicator"
	"tick-collectorv1/internal/model"
	"tick-collectorv1/internal/ringbuf"
)

func newTestRouter(symbols ...string) *Router {
	engine := indicator.NewEngine(indicator.Config{}, nil, nil)
	return New(engine, symbols, nil)
}

func TestProcess_UnregisteredSymbolRejected(t *testing.T) {
	rt := newTestRouter("005930")

	rejected := 0
	rt.OnRejected = func() { rejected++ }

	vec := rt.Process(model.TickEvent{
		Symbol: "999999",
		Kind:   model.KindTrade,
		Time:   1000,
		Price:  100,
		Volume: 10,
	})
	if vec != nil {
		t.Errorf("expected nil vector for unregistered symbol, got %+v", vec)
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestProcess_BookEventsProduceNoVector(t *testing.T) {
	rt := newTestRouter("005930")

	ev := model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindOrderBookPrice,
		Time:   1000,
	}
	ev.Ask[0] = 101
	ev.Bid[0] = 100

	if vec := rt.Process(ev); vec != nil {
		t.Errorf("book event returned a vector: %+v", vec)
	}

	depth := model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindOrderBookDepth,
		Time:   1100,
	}
	depth.AskQty[0] = 40
	depth.BidQty[0] = 60

	if vec := rt.Process(depth); vec != nil {
		t.Errorf("depth event returned a vector: %+v", vec)
	}
}

func TestProcess_TradeEnrichedFromBookCache(t *testing.T) {
	rt := newTestRouter("005930")

	// Price levels and depth arrive as separate events before the trade.
	price := model.TickEvent{Symbol: "005930", Kind: model.KindOrderBookPrice, Time: 1000}
	price.Ask[0] = 101
	price.Bid[0] = 100
	rt.Process(price)

	depth := model.TickEvent{Symbol: "005930", Kind: model.KindOrderBookDepth, Time: 1100}
	depth.AskQty[0] = 40
	depth.BidQty[0] = 60
	rt.Process(depth)

	vec := rt.Process(model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindTrade,
		Time:   1200,
		Price:  100.5,
		Volume: 10,
	})
	if vec == nil {
		t.Fatal("expected vector for trade")
	}
	if math.Abs(vec.Spread-1) > 1e-9 {
		t.Errorf("spread = %v, want 1 from merged book cache", vec.Spread)
	}
	if math.Abs(vec.BidAskImbalance-0.2) > 1e-9 {
		t.Errorf("imbalance = %v, want 0.2", vec.BidAskImbalance)
	}
	if vec.Ask[0] != 101 || vec.Bid[0] != 100 {
		t.Errorf("book columns = ask %v bid %v", vec.Ask[0], vec.Bid[0])
	}
}

func TestProcess_TradeOwnBookWinsOverCache(t *testing.T) {
	rt := newTestRouter("005930")

	price := model.TickEvent{Symbol: "005930", Kind: model.KindOrderBookPrice, Time: 1000}
	price.Ask[0] = 101
	price.Bid[0] = 100
	rt.Process(price)

	trade := model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindTrade,
		Time:   1100,
		Price:  100,
		Volume: 10,
	}
	trade.Ask[0] = 102 // fresher than the cached 101

	vec := rt.Process(trade)
	if vec == nil {
		t.Fatal("expected vector")
	}
	if math.Abs(vec.Spread-2) > 1e-9 {
		t.Errorf("spread = %v, want 2 (event ask1 wins)", vec.Spread)
	}
}

func TestProcess_InvalidTradeDropped(t *testing.T) {
	rt := newTestRouter("005930")

	rejected := 0
	rt.OnRejected = func() { rejected++ }

	if vec := rt.Process(model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindTrade,
		Time:   1000,
		Volume: 10, // no price
	}); vec != nil {
		t.Errorf("expected nil for priceless trade, got %+v", vec)
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestProcess_MissingTimestampDefaultsToNow(t *testing.T) {
	rt := newTestRouter("005930")

	before := time.Now().UnixMilli()
	vec := rt.Process(model.TickEvent{
		Symbol: "005930",
		Kind:   model.KindTrade,
		Price:  100,
		Volume: 10,
	})
	after := time.Now().UnixMilli()

	if vec == nil {
		t.Fatal("expected vector")
	}
	if vec.Time < before || vec.Time > after {
		t.Errorf("time = %d, want within [%d, %d]", vec.Time, before, after)
	}
}

func TestProcess_PublishReceivesEveryVector(t *testing.T) {
	rt := newTestRouter("005930")

	var published []*model.IndicatorVector
	rt.Publish = func(vec *model.IndicatorVector) { published = append(published, vec) }

	for i := 0; i < 3; i++ {
		rt.Process(model.TickEvent{
			Symbol: "005930",
			Kind:   model.KindTrade,
			Time:   int64(1000 + i*100),
			Price:  float64(100 + i),
			Volume: 10,
		})
	}
	if len(published) != 3 {
		t.Fatalf("published = %d, want 3", len(published))
	}
	if published[2].Price != 102 {
		t.Errorf("last published price = %v, want 102", published[2].Price)
	}
}

func TestBookAge(t *testing.T) {
	rt := newTestRouter("005930")

	if got := rt.BookAge("005930", 5000); got != -1 {
		t.Errorf("age before any update = %d, want -1", got)
	}
	if got := rt.BookAge("999999", 5000); got != -1 {
		t.Errorf("age for unknown symbol = %d, want -1", got)
	}

	ev := model.TickEvent{Symbol: "005930", Kind: model.KindOrderBookPrice, Time: 4000}
	ev.Ask[0] = 101
	rt.Process(ev)

	if got := rt.BookAge("005930", 5000); got != 1000 {
		t.Errorf("age = %d, want 1000", got)
	}
}

func TestRun_DrainsRing(t *testing.T) {
	rt := newTestRouter("005930")

	done := make(chan struct{})
	count := 0
	rt.Publish = func(*model.IndicatorVector) {
		count++
		if count == 10 {
			close(done)
		}
	}

	ring := ringbuf.New(64)
	for i := 0; i < 10; i++ {
		ring.Push(model.TickEvent{
			Symbol: "005930",
			Kind:   model.KindTrade,
			Time:   int64(1000 + i),
			Price:  100,
			Volume: 1,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx, ring)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("router did not drain 10 events in time")
	}
}
