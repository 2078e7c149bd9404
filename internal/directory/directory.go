// Package directory caches the static list of tradable instruments.
package directory

import (
	"context"
	"sync"

	"ratewatch/internal/feed"
	"ratewatch/logger"
)

// Fetcher is the slice of the upstream client the directory needs.
type Fetcher interface {
	FetchInstruments(ctx context.Context) ([]feed.Instrument, error)
}

// Directory holds the instrument list and an id-keyed lookup. It is
// populated once per session; Ensure only re-fetches while the cached list
// is empty.
type Directory struct {
	mu      sync.RWMutex
	fetcher Fetcher
	list    []feed.Instrument
	byID    map[int]feed.Instrument
	log     *logger.Log
}

func New(fetcher Fetcher) *Directory {
	return &Directory{
		fetcher: fetcher,
		byID:    make(map[int]feed.Instrument),
		log:     logger.GetLogger(),
	}
}

// Ensure populates the directory if it is empty. Safe to call repeatedly.
func (d *Directory) Ensure(ctx context.Context) error {
	d.mu.RLock()
	populated := len(d.list) > 0
	d.mu.RUnlock()
	if populated {
		return nil
	}

	instruments, err := d.fetcher.FetchInstruments(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if len(d.list) == 0 {
		d.list = instruments
		d.byID = make(map[int]feed.Instrument, len(instruments))
		for _, instrument := range instruments {
			d.byID[instrument.ID] = instrument
		}
	}
	d.mu.Unlock()

	d.log.WithComponent("directory").WithFields(logger.Fields{
		"instruments": len(instruments),
	}).Info("instrument directory populated")

	return nil
}

// All returns the cached instrument list in fetch order.
func (d *Directory) All() []feed.Instrument {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]feed.Instrument, len(d.list))
	copy(out, d.list)
	return out
}

// ByID looks up one instrument.
func (d *Directory) ByID(id int) (feed.Instrument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	instrument, ok := d.byID[id]
	return instrument, ok
}

// IDs returns the ids of every cached instrument in fetch order.
func (d *Directory) IDs() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]int, len(d.list))
	for i, instrument := range d.list {
		ids[i] = instrument.ID
	}
	return ids
}
