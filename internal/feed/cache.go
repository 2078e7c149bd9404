package feed

import (
	"sync"
	"time"

	"ratewatch/internal/metrics"
	"ratewatch/logger"
)

// DefaultHistoryLimit caps the number of readings retained per instrument.
const DefaultHistoryLimit = 100

// Cache accumulates normalized readings per instrument. It keeps the latest
// reading, a newest-first bounded history and the rate direction computed at
// the most recent ingest. It is safe for concurrent use; a batch ingest is
// atomic with respect to readers.
type Cache struct {
	mu         sync.RWMutex
	latest     map[int]Reading
	history    map[int][]Reading
	directions map[int]RateDirection
	lastBatch  time.Time
	limit      int
	log        *logger.Log
}

func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Cache{
		latest:     make(map[int]Reading),
		history:    make(map[int][]Reading),
		directions: make(map[int]RateDirection),
		limit:      limit,
		log:        logger.GetLogger(),
	}
}

// IngestBatch normalizes every raw reading, stamps it with the batch
// timestamp and merges it. Direction is computed against the pre-update
// latest reading for the same instrument. Per-instrument updates are
// independent; a later duplicate of the same instrument id within one batch
// wins.
func (c *Cache) IngestBatch(readings []RawReading, at time.Time) {
	c.mu.Lock()

	for _, raw := range readings {
		reading := Reading{
			InstrumentID: raw.InstrumentID,
			Buy:          Normalize(raw.Buy),
			Sell:         Normalize(raw.Sell),
			ObservedAt:   at,
		}

		direction := RateDirection{}
		if prev, ok := c.latest[raw.InstrumentID]; ok {
			direction.Buy = classify(reading.Buy, prev.Buy)
			direction.Sell = classify(reading.Sell, prev.Sell)
		}

		c.directions[raw.InstrumentID] = direction
		c.latest[raw.InstrumentID] = reading

		hist := c.history[raw.InstrumentID]
		hist = append(hist, Reading{})
		copy(hist[1:], hist)
		hist[0] = reading
		if len(hist) > c.limit {
			// keep the most recent entries only
			hist = append([]Reading(nil), hist[:c.limit]...)
		}
		c.history[raw.InstrumentID] = hist
	}

	c.lastBatch = at
	c.mu.Unlock()

	metrics.AddReadingsIngested(len(readings))
	logger.IncrementBatchApplied(len(readings))

	c.log.WithComponent("feed_cache").WithFields(logger.Fields{
		"readings": len(readings),
		"batch_at": at,
	}).Debug("batch ingested")
}

// History returns the instrument's readings newest-first. The result is a
// copy; an instrument with no readings yields an empty slice.
func (c *Cache) History(instrumentID int) []Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := c.history[instrumentID]
	out := make([]Reading, len(hist))
	copy(out, hist)
	return out
}

// Latest returns the most recent reading for the instrument.
func (c *Cache) Latest(instrumentID int) (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reading, ok := c.latest[instrumentID]
	return reading, ok
}

// Direction returns the rate direction recorded at the most recent ingest
// for the instrument. Instruments never ingested report neutral on both
// sides.
func (c *Cache) Direction(instrumentID int) RateDirection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.directions[instrumentID]
}

// LastBatch reports the timestamp attached to the most recent ingested batch.
func (c *Cache) LastBatch() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastBatch
}

// ClearAll drops every accumulated reading and direction.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.latest = make(map[int]Reading)
	c.history = make(map[int][]Reading)
	c.directions = make(map[int]RateDirection)
	c.lastBatch = time.Time{}
	c.mu.Unlock()

	c.log.WithComponent("feed_cache").Info("cache cleared")
}

// Clear drops one instrument's accumulated state so the next ingest starts a
// fresh accumulation window for it.
func (c *Cache) Clear(instrumentID int) {
	c.mu.Lock()
	delete(c.latest, instrumentID)
	delete(c.history, instrumentID)
	delete(c.directions, instrumentID)
	c.mu.Unlock()
}
