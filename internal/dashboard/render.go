package dashboard

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"ratewatch/internal/feed"
)

// defaultPrecision is used when an instrument lookup comes back absent.
const defaultPrecision = 2

const (
	classPositive = "positive"
	classNegative = "negative"
	classNeutral  = "neutral"
)

// Cell is one rendered table cell: display text and a conditional styling
// class. HTML marks cells whose text carries highlight markup and must not
// be re-escaped by the consumer.
type Cell struct {
	Text  string `json:"text"`
	Class string `json:"class,omitempty"`
	HTML  bool   `json:"html,omitempty"`
}

// Table is a fully rendered screen table: column titles, the named fields
// they were produced from and one cell row per entry.
type Table struct {
	Headers []string `json:"headers"`
	Fields  []string `json:"fields"`
	Rows    [][]Cell `json:"rows"`
}

// listEntry is the raw material for one list screen row.
type listEntry struct {
	position   int
	instrument feed.Instrument
	known      bool
	reading    feed.Reading
	hasReading bool
	direction  feed.RateDirection
	dailyPct   float64
	query      string
}

// listColumn binds a named field to its formatting function.
type listColumn struct {
	title  string
	field  string
	render func(e listEntry) Cell
}

var listColumns = []listColumn{
	{"#", "position", func(e listEntry) Cell {
		return Cell{Text: strconv.Itoa(e.position)}
	}},
	{"Symbol", "symbol", func(e listEntry) Cell {
		text, marked := highlightText(displaySymbol(e), e.query)
		return Cell{Text: text, HTML: marked}
	}},
	{"Name", "name", func(e listEntry) Cell {
		text, marked := highlightText(displayName(e), e.query)
		return Cell{Text: text, HTML: marked}
	}},
	{"Buy", "buy", func(e listEntry) Cell {
		return Cell{Text: formatPrice(readingBuy(e), precisionOf(e)), Class: directionClass(e.direction.Buy)}
	}},
	{"Sell", "sell", func(e listEntry) Cell {
		return Cell{Text: formatPrice(readingSell(e), precisionOf(e)), Class: directionClass(e.direction.Sell)}
	}},
	{"Spread", "spread", func(e listEntry) Cell {
		spread := entrySpread(e)
		return Cell{Text: formatPrice(spread, precisionOf(e)), Class: signClass(spread)}
	}},
	{"Day %", "daily_change", func(e listEntry) Cell {
		v := e.dailyPct
		return Cell{Text: formatSignedPercent(&v), Class: signClass(&v)}
	}},
	{"Updated", "updated_at", func(e listEntry) Cell {
		if !e.hasReading {
			return Cell{Text: emptyValue}
		}
		return Cell{Text: formatLocalTime(e.reading.ObservedAt)}
	}},
}

// historyEntry is the raw material for one detail screen row.
type historyEntry struct {
	position  int
	reading   feed.Reading
	spread    *float64
	changePct *float64
	precision int
}

type historyColumn struct {
	title  string
	field  string
	render func(e historyEntry) Cell
}

var historyColumns = []historyColumn{
	{"#", "position", func(e historyEntry) Cell {
		return Cell{Text: strconv.Itoa(e.position)}
	}},
	{"Time", "observed_at", func(e historyEntry) Cell {
		return Cell{Text: formatLocalTime(e.reading.ObservedAt)}
	}},
	{"Buy", "buy", func(e historyEntry) Cell {
		return Cell{Text: formatPrice(e.reading.Buy, e.precision)}
	}},
	{"Sell", "sell", func(e historyEntry) Cell {
		return Cell{Text: formatPrice(e.reading.Sell, e.precision)}
	}},
	{"Spread", "spread", func(e historyEntry) Cell {
		return Cell{Text: formatPrice(e.spread, e.precision), Class: signClass(e.spread)}
	}},
	{"Change %", "sell_change", func(e historyEntry) Cell {
		return Cell{Text: formatSignedPercent(e.changePct), Class: signClass(e.changePct)}
	}},
}

func renderListTable(entries []listEntry) Table {
	table := Table{
		Headers: make([]string, len(listColumns)),
		Fields:  make([]string, len(listColumns)),
		Rows:    make([][]Cell, 0, len(entries)),
	}
	for i, col := range listColumns {
		table.Headers[i] = col.title
		table.Fields[i] = col.field
	}
	for _, entry := range entries {
		row := make([]Cell, len(listColumns))
		for i, col := range listColumns {
			row[i] = col.render(entry)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func renderHistoryTable(entries []historyEntry) Table {
	table := Table{
		Headers: make([]string, len(historyColumns)),
		Fields:  make([]string, len(historyColumns)),
		Rows:    make([][]Cell, 0, len(entries)),
	}
	for i, col := range historyColumns {
		table.Headers[i] = col.title
		table.Fields[i] = col.field
	}
	for _, entry := range entries {
		row := make([]Cell, len(historyColumns))
		for i, col := range historyColumns {
			row[i] = col.render(entry)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

const emptyValue = "—"

func formatPrice(v *float64, precision int) string {
	if v == nil {
		return emptyValue
	}
	if precision < 0 {
		precision = defaultPrecision
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func formatSignedPercent(v *float64) string {
	if v == nil {
		return emptyValue
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func formatLocalTime(t time.Time) string {
	if t.IsZero() {
		return emptyValue
	}
	return t.Local().Format("15:04:05")
}

func directionClass(d feed.Direction) string {
	switch d {
	case feed.DirectionUp:
		return classPositive
	case feed.DirectionDown:
		return classNegative
	default:
		return classNeutral
	}
}

func signClass(v *float64) string {
	if v == nil {
		return classNeutral
	}
	switch {
	case *v > 0:
		return classPositive
	case *v < 0:
		return classNegative
	default:
		return classNeutral
	}
}

// highlightText escapes text for HTML and wraps case-insensitive matches of
// query in <mark> tags. The second return reports whether any markup was
// produced.
//
// Lowercasing can change a rune's byte length, so offsets found in the
// lowered copy cannot index the original text directly. A per-byte offset
// table maps every lowered byte back to the original rune it came from.
func highlightText(text, query string) (string, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return template.HTMLEscapeString(text), false
	}

	needle := strings.ToLower(query)

	var lowered strings.Builder
	lowered.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		low := unicode.ToLower(r)
		for j := 0; j < utf8.RuneLen(low); j++ {
			offsets = append(offsets, i)
		}
		lowered.WriteRune(low)
	}
	offsets = append(offsets, len(text))
	haystack := lowered.String()

	var b strings.Builder
	idx := 0
	marked := false
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			b.WriteString(template.HTMLEscapeString(text[offsets[idx]:]))
			break
		}
		i += idx
		end := i + len(needle)
		b.WriteString(template.HTMLEscapeString(text[offsets[idx]:offsets[i]]))
		b.WriteString("<mark>")
		b.WriteString(template.HTMLEscapeString(text[offsets[i]:offsets[end]]))
		b.WriteString("</mark>")
		marked = true
		idx = end
	}
	if !marked {
		return template.HTMLEscapeString(text), false
	}
	return b.String(), true
}

func displayName(e listEntry) string {
	if !e.known {
		return "Unknown"
	}
	return e.instrument.Name
}

func displaySymbol(e listEntry) string {
	if !e.known {
		return "?"
	}
	return e.instrument.Symbol
}

func precisionOf(e listEntry) int {
	if !e.known {
		return defaultPrecision
	}
	return e.instrument.Precision
}

func readingBuy(e listEntry) *float64 {
	if !e.hasReading {
		return nil
	}
	return e.reading.Buy
}

func readingSell(e listEntry) *float64 {
	if !e.hasReading {
		return nil
	}
	return e.reading.Sell
}

func entrySpread(e listEntry) *float64 {
	if !e.hasReading || e.reading.Buy == nil || e.reading.Sell == nil {
		return nil
	}
	v := *e.reading.Buy - *e.reading.Sell
	return &v
}
