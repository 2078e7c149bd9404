// Package poller drives the periodic refresh of the feed cache. The
// scheduler is a three-state machine (idle, polling all, polling one); at
// most one recurring fetch loop is active system-wide.
package poller

import (
	"context"
	"sync"
	"time"

	"ratewatch/internal/feed"
	"ratewatch/internal/metrics"
	"ratewatch/internal/upstream"
	"ratewatch/logger"
)

// Mode identifies the scheduler state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeAll
	ModeOne
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeOne:
		return "one"
	default:
		return "idle"
	}
}

// Fetcher is the slice of the upstream client the scheduler needs.
type Fetcher interface {
	FetchFeeds(ctx context.Context, ids []int) (*upstream.FeedBatch, error)
}

// Scheduler re-fetches feeds on a fixed interval and hands each completed
// batch to the cache. Switching modes cancels the previous loop before the
// new one is armed; fetches already dispatched are allowed to complete and
// their results are still merged.
type Scheduler struct {
	mu       sync.Mutex
	mode     Mode
	target   []int
	cancel   context.CancelFunc
	loopDone chan struct{}

	inflight sync.WaitGroup
	interval time.Duration
	fetcher  Fetcher
	cache    *feed.Cache
	log      *logger.Log
}

func NewScheduler(interval time.Duration, fetcher Fetcher, cache *feed.Cache) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		mode:     ModeIdle,
		interval: interval,
		fetcher:  fetcher,
		cache:    cache,
		log:      logger.GetLogger(),
	}
}

// PollAll starts the track-everything loop for the given instruments. An
// empty id set is a no-op. Restarting with the current mode and target is
// also a no-op so screen refreshes do not reset the loop.
func (s *Scheduler) PollAll(ids []int) {
	if len(ids) == 0 {
		s.log.WithComponent("poller").Warn("poll-all requested with no instruments")
		return
	}
	s.start(ModeAll, append([]int(nil), ids...))
}

// PollOne starts the single-instrument loop.
func (s *Scheduler) PollOne(id int) {
	s.start(ModeOne, []int{id})
}

// Stop cancels the recurring loop. Fetches already in flight complete and
// still ingest; no further tick fires after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeIdle {
		return
	}
	s.stopLocked()
	s.mode = ModeIdle
	s.target = nil

	s.log.WithComponent("poller").Info("scheduler stopped")
}

// Drain blocks until every dispatched fetch has completed.
func (s *Scheduler) Drain() {
	s.inflight.Wait()
}

// Mode reports the current scheduler state.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Target reports the instrument ids the current mode polls.
func (s *Scheduler) Target() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.target...)
}

func (s *Scheduler) start(mode Mode, ids []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == s.mode && equalIDs(ids, s.target) {
		return
	}

	// Only one recurring loop may exist; tear the old one down first.
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done
	s.mode = mode
	s.target = ids

	s.log.WithComponent("poller").WithFields(logger.Fields{
		"mode":        mode.String(),
		"instruments": len(ids),
		"interval_ms": s.interval.Milliseconds(),
	}).Info("polling started")

	go s.run(ctx, done, mode, ids)
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.loopDone
	s.cancel = nil
	s.loopDone = nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}, mode Mode, ids []int) {
	defer close(done)

	s.dispatch(mode, ids)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(mode, ids)
		}
	}
}

// dispatch issues one fetch without waiting for it. Results are applied in
// completion order; ingest is keyed by instrument id, so a slow response
// overtaken by a faster one is harmless. The fetch deliberately does not use
// the loop context: a mode switch or stop must not discard a batch that is
// already on the wire.
func (s *Scheduler) dispatch(mode Mode, ids []int) {
	logger.IncrementPollTick()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		batch, err := s.fetcher.FetchFeeds(context.Background(), ids)
		if err != nil {
			// The loop keeps ticking, so the next interval retries.
			metrics.IncrementPollError(mode.String())
			s.log.WithComponent("poller").WithError(err).WithFields(logger.Fields{
				"mode": mode.String(),
			}).Warn("feed fetch failed, batch dropped")
			return
		}

		s.cache.IngestBatch(batch.Readings, batch.LastUpdate)
		metrics.IncrementPollSuccess(mode.String())
		metrics.Record(s.log, "poller", "feed_batch", len(batch.Readings), "counter", logger.Fields{
			"mode": mode.String(),
		})
	}()
}

func equalIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
