// Package stats derives display metrics from feed cache contents. Every
// function is pure and re-derives from whatever history it is handed, so the
// package holds no state of its own.
package stats

import (
	"ratewatch/internal/feed"
)

// Row pairs a reading with the metrics derived from it and its predecessor.
type Row struct {
	Reading       feed.Reading
	Spread        *float64
	SellChangePct *float64
}

// Spread returns buy minus sell, or nil when either side is absent.
func Spread(r feed.Reading) *float64 {
	if r.Buy == nil || r.Sell == nil {
		return nil
	}
	v := *r.Buy - *r.Sell
	return &v
}

// Rows computes per-entry metrics for a newest-first history. Entry i is
// compared against entry i+1, the next-older reading. Output order matches
// the input.
func Rows(history []feed.Reading) []Row {
	rows := make([]Row, len(history))
	for i, reading := range history {
		row := Row{
			Reading: reading,
			Spread:  Spread(reading),
		}
		if i+1 < len(history) {
			row.SellChangePct = sellChange(reading, history[i+1])
		}
		rows[i] = row
	}
	return rows
}

func sellChange(current, previous feed.Reading) *float64 {
	if current.Sell == nil || previous.Sell == nil || *previous.Sell == 0 {
		return nil
	}
	v := (*current.Sell - *previous.Sell) / *previous.Sell * 100
	return &v
}

// DailyChange returns the percent change of the buy price between the oldest
// and newest entries of a newest-first history. Histories with fewer than two
// entries, or whose oldest buy price is absent or zero, report 0.
func DailyChange(history []feed.Reading) float64 {
	if len(history) < 2 {
		return 0
	}

	newest := history[0]
	oldest := history[len(history)-1]
	if newest.Buy == nil || oldest.Buy == nil || *oldest.Buy == 0 {
		return 0
	}

	return (*newest.Buy - *oldest.Buy) / *oldest.Buy * 100
}
