package dashboard

import (
	"strings"

	"ratewatch/internal/feed"
	"ratewatch/internal/stats"
)

// ListView is the list screen's view model: every instrument with its latest
// rates, rendered through the list column set.
type ListView struct {
	Table     Table  `json:"table"`
	IDs       []int  `json:"ids"`
	Count     int    `json:"count"`
	UpdatedAt string `json:"updated_at"`
}

// DetailView is the detail screen's view model: one instrument's accumulated
// price history rendered through the history column set.
type DetailView struct {
	InstrumentID  int    `json:"instrument_id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Known         bool   `json:"known"`
	BuyDirection  string `json:"buy_direction"`
	SellDirection string `json:"sell_direction"`
	DailyChange   Cell   `json:"daily_change"`
	Table         Table  `json:"table"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *Server) listView(query string) ListView {
	query = strings.TrimSpace(query)

	instruments := s.directory.All()
	entries := make([]listEntry, 0, len(instruments))
	ids := make([]int, 0, len(instruments))
	position := 1
	for _, instrument := range instruments {
		if query != "" && !matchesQuery(instrument, query) {
			continue
		}
		ids = append(ids, instrument.ID)

		reading, hasReading := s.cache.Latest(instrument.ID)
		entries = append(entries, listEntry{
			position:   position,
			instrument: instrument,
			known:      true,
			reading:    reading,
			hasReading: hasReading,
			direction:  s.cache.Direction(instrument.ID),
			dailyPct:   stats.DailyChange(s.cache.History(instrument.ID)),
			query:      query,
		})
		position++
	}

	return ListView{
		Table:     renderListTable(entries),
		IDs:       ids,
		Count:     len(entries),
		UpdatedAt: formatLocalTime(s.cache.LastBatch()),
	}
}

func (s *Server) detailView(id int) DetailView {
	instrument, known := s.directory.ByID(id)

	name := "Unknown"
	symbol := "?"
	precision := defaultPrecision
	if known {
		name = instrument.Name
		symbol = instrument.Symbol
		precision = instrument.Precision
	}

	history := s.cache.History(id)
	rows := stats.Rows(history)
	entries := make([]historyEntry, len(rows))
	for i, row := range rows {
		entries[i] = historyEntry{
			position:  i + 1,
			reading:   row.Reading,
			spread:    row.Spread,
			changePct: row.SellChangePct,
			precision: precision,
		}
	}

	daily := stats.DailyChange(history)
	direction := s.cache.Direction(id)

	return DetailView{
		InstrumentID:  id,
		Name:          name,
		Symbol:        symbol,
		Known:         known,
		BuyDirection:  direction.Buy.String(),
		SellDirection: direction.Sell.String(),
		DailyChange:   Cell{Text: formatSignedPercent(&daily), Class: signClass(&daily)},
		Table:         renderHistoryTable(entries),
		UpdatedAt:     formatLocalTime(s.cache.LastBatch()),
	}
}

func matchesQuery(instrument feed.Instrument, query string) bool {
	query = strings.ToLower(query)
	return strings.Contains(strings.ToLower(instrument.Name), query) ||
		strings.Contains(strings.ToLower(instrument.Symbol), query)
}
