package feed_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"ratewatch/internal/feed"
	"ratewatch/internal/stats"
)

func ingestOne(c *feed.Cache, id int, buy, sell string, at time.Time) {
	c.IngestBatch([]feed.RawReading{{
		InstrumentID: id,
		Buy:          feed.RawPrice(buy),
		Sell:         feed.RawPrice(sell),
	}}, at)
}

func TestCacheIngestAndLatest(t *testing.T) {
	cache := feed.NewCache(0)
	t0 := time.Unix(1000, 0)

	ingestOne(cache, 1, "100", "99.5", t0)

	latest, ok := cache.Latest(1)
	if !ok {
		t.Fatal("expected latest reading after ingest")
	}
	if latest.Buy == nil || *latest.Buy != 100 {
		t.Errorf("unexpected buy: %v", latest.Buy)
	}
	if latest.Sell == nil || *latest.Sell != 99.5 {
		t.Errorf("unexpected sell: %v", latest.Sell)
	}
	if !latest.ObservedAt.Equal(t0) {
		t.Errorf("reading not stamped with batch time: %v", latest.ObservedAt)
	}
	if !cache.LastBatch().Equal(t0) {
		t.Errorf("unexpected last batch time: %v", cache.LastBatch())
	}

	if _, ok := cache.Latest(42); ok {
		t.Error("unknown instrument should have no latest reading")
	}
	if hist := cache.History(42); len(hist) != 0 {
		t.Errorf("unknown instrument history should be empty, got %d", len(hist))
	}
}

func TestCacheHistoryNewestFirstAndBounded(t *testing.T) {
	cache := feed.NewCache(100)

	for i := 0; i < 150; i++ {
		ingestOne(cache, 1, fmt.Sprintf("%d", i), "1", time.Unix(int64(i), 0))
	}

	hist := cache.History(1)
	if len(hist) != 100 {
		t.Fatalf("history length = %d, want 100", len(hist))
	}

	// Newest at position 0, oldest surviving entry at the tail.
	if hist[0].Buy == nil || *hist[0].Buy != 149 {
		t.Errorf("head is not the newest reading: %v", hist[0].Buy)
	}
	if hist[99].Buy == nil || *hist[99].Buy != 50 {
		t.Errorf("tail eviction dropped the wrong entries: %v", hist[99].Buy)
	}
}

func TestCacheEvictsExactlyOldestAt101(t *testing.T) {
	cache := feed.NewCache(100)

	for i := 1; i <= 100; i++ {
		ingestOne(cache, 1, fmt.Sprintf("%d", i), "1", time.Unix(int64(i), 0))
	}
	if len(cache.History(1)) != 100 {
		t.Fatalf("expected full history before eviction")
	}

	ingestOne(cache, 1, "101", "1", time.Unix(101, 0))

	hist := cache.History(1)
	if len(hist) != 100 {
		t.Fatalf("history length after 101st ingest = %d, want 100", len(hist))
	}
	if *hist[0].Buy != 101 {
		t.Errorf("new entry is not at position 0: %v", *hist[0].Buy)
	}
	if *hist[99].Buy != 2 {
		t.Errorf("oldest entry was not the one evicted: tail = %v", *hist[99].Buy)
	}
}

func TestCacheDirection(t *testing.T) {
	cache := feed.NewCache(0)

	ingestOne(cache, 1, "100", "100", time.Unix(0, 0))
	dir := cache.Direction(1)
	if dir.Buy != feed.DirectionNeutral || dir.Sell != feed.DirectionNeutral {
		t.Errorf("first ingest should be neutral, got %v/%v", dir.Buy, dir.Sell)
	}

	ingestOne(cache, 1, "110", "90", time.Unix(1, 0))
	dir = cache.Direction(1)
	if dir.Buy != feed.DirectionUp {
		t.Errorf("buy direction = %v, want up", dir.Buy)
	}
	if dir.Sell != feed.DirectionDown {
		t.Errorf("sell direction = %v, want down", dir.Sell)
	}

	ingestOne(cache, 1, "110", "Infinity", time.Unix(2, 0))
	dir = cache.Direction(1)
	if dir.Buy != feed.DirectionNeutral {
		t.Errorf("equal values should be neutral, got %v", dir.Buy)
	}
	if dir.Sell != feed.DirectionNeutral {
		t.Errorf("absent side should be neutral, got %v", dir.Sell)
	}

	if dir := cache.Direction(42); dir.Buy != feed.DirectionNeutral || dir.Sell != feed.DirectionNeutral {
		t.Error("never-ingested instrument should report neutral")
	}
}

func TestCacheBatchUpdatesInstrumentsIndependently(t *testing.T) {
	cache := feed.NewCache(0)

	cache.IngestBatch([]feed.RawReading{
		{InstrumentID: 1, Buy: "100", Sell: "99"},
		{InstrumentID: 2, Buy: "garbage", Sell: "-Infinity"},
		{InstrumentID: 3, Buy: "50", Sell: "49"},
	}, time.Unix(0, 0))

	for _, id := range []int{1, 2, 3} {
		if _, ok := cache.Latest(id); !ok {
			t.Errorf("instrument %d missing after batch ingest", id)
		}
	}

	// Malformed values degrade to nil without rejecting the reading.
	bad, _ := cache.Latest(2)
	if bad.Buy != nil || bad.Sell != nil {
		t.Errorf("malformed prices should be nil, got %v/%v", bad.Buy, bad.Sell)
	}
}

func TestCacheClear(t *testing.T) {
	cache := feed.NewCache(0)
	ingestOne(cache, 1, "100", "99", time.Unix(0, 0))
	ingestOne(cache, 2, "200", "199", time.Unix(0, 0))

	cache.Clear(1)
	if _, ok := cache.Latest(1); ok {
		t.Error("cleared instrument still has a latest reading")
	}
	if len(cache.History(1)) != 0 {
		t.Error("cleared instrument still has history")
	}
	if _, ok := cache.Latest(2); !ok {
		t.Error("clearing one instrument must not touch another")
	}

	cache.ClearAll()
	if _, ok := cache.Latest(2); ok {
		t.Error("ClearAll left a latest reading behind")
	}
	if !cache.LastBatch().IsZero() {
		t.Error("ClearAll should reset the batch timestamp")
	}
}

func TestCacheEndToEndScenario(t *testing.T) {
	cache := feed.NewCache(0)
	t0 := time.Unix(100, 0)
	t1 := time.Unix(101, 0)

	cache.IngestBatch([]feed.RawReading{{InstrumentID: 1, Buy: "100", Sell: "99.5"}}, t0)
	cache.IngestBatch([]feed.RawReading{{InstrumentID: 1, Buy: "110", Sell: "109.5"}}, t1)

	latest, ok := cache.Latest(1)
	if !ok || latest.Buy == nil || *latest.Buy != 110 {
		t.Fatalf("latest buy = %v, want 110", latest.Buy)
	}

	hist := cache.History(1)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if *hist[0].Buy != 110 || *hist[1].Buy != 100 {
		t.Fatal("history is not newest-first")
	}

	rows := stats.Rows(hist)
	if rows[0].Spread == nil || math.Abs(*rows[0].Spread-0.5) > 1e-9 {
		t.Errorf("newest spread = %v, want 0.5", rows[0].Spread)
	}
	if rows[0].SellChangePct == nil || math.Abs(*rows[0].SellChangePct-10.0502512562814) > 1e-6 {
		t.Errorf("newest sell change = %v, want ~10.05", rows[0].SellChangePct)
	}

	if dir := cache.Direction(1); dir.Buy != feed.DirectionUp {
		t.Errorf("buy direction = %v, want up", dir.Buy)
	}
}
