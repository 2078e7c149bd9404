package dashboard

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ratewatch/internal/feed"
)

func fv(f float64) *float64 { return &f }

func TestFormatPrice(t *testing.T) {
	if got := formatPrice(fv(1234.5678), 2); got != "1234.57" {
		t.Errorf("formatPrice = %q, want 1234.57", got)
	}
	if got := formatPrice(fv(1234.5678), 4); got != "1234.5678" {
		t.Errorf("formatPrice = %q, want 1234.5678", got)
	}
	if got := formatPrice(fv(5), 0); got != "5" {
		t.Errorf("formatPrice = %q, want 5", got)
	}
	if got := formatPrice(fv(5), -1); got != "5.00" {
		t.Errorf("negative precision should fall back to the default, got %q", got)
	}
	if got := formatPrice(nil, 2); got != emptyValue {
		t.Errorf("nil price = %q, want placeholder", got)
	}
}

func TestFormatSignedPercent(t *testing.T) {
	if got := formatSignedPercent(fv(2.5)); got != "+2.50%" {
		t.Errorf("positive percent = %q", got)
	}
	if got := formatSignedPercent(fv(-0.333)); got != "-0.33%" {
		t.Errorf("negative percent = %q", got)
	}
	if got := formatSignedPercent(fv(0)); got != "+0.00%" {
		t.Errorf("zero percent = %q", got)
	}
	if got := formatSignedPercent(nil); got != emptyValue {
		t.Errorf("nil percent = %q, want placeholder", got)
	}
}

func TestFormatLocalTime(t *testing.T) {
	if got := formatLocalTime(time.Time{}); got != emptyValue {
		t.Errorf("zero time = %q, want placeholder", got)
	}

	at := time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC)
	if got := formatLocalTime(at); got != at.Local().Format("15:04:05") {
		t.Errorf("formatLocalTime = %q", got)
	}
}

func TestDirectionAndSignClasses(t *testing.T) {
	if got := directionClass(feed.DirectionUp); got != classPositive {
		t.Errorf("up class = %q", got)
	}
	if got := directionClass(feed.DirectionDown); got != classNegative {
		t.Errorf("down class = %q", got)
	}
	if got := directionClass(feed.DirectionNeutral); got != classNeutral {
		t.Errorf("neutral class = %q", got)
	}

	if got := signClass(fv(1)); got != classPositive {
		t.Errorf("positive sign class = %q", got)
	}
	if got := signClass(fv(-1)); got != classNegative {
		t.Errorf("negative sign class = %q", got)
	}
	if got := signClass(fv(0)); got != classNeutral {
		t.Errorf("zero sign class = %q", got)
	}
	if got := signClass(nil); got != classNeutral {
		t.Errorf("nil sign class = %q", got)
	}
}

func TestHighlightText(t *testing.T) {
	text, marked := highlightText("Gold Ounce", "")
	if marked || text != "Gold Ounce" {
		t.Errorf("empty query: %q, %v", text, marked)
	}

	text, marked = highlightText("Gold Ounce", "gold")
	if !marked || text != "<mark>Gold</mark> Ounce" {
		t.Errorf("case-insensitive match: %q, %v", text, marked)
	}

	text, marked = highlightText("Gold Ounce", "silver")
	if marked || text != "Gold Ounce" {
		t.Errorf("no match: %q, %v", text, marked)
	}

	// The original text is escaped whether or not a match was found.
	text, marked = highlightText("A<B", "b")
	if !marked || text != "A&lt;<mark>B</mark>" {
		t.Errorf("escaped match: %q, %v", text, marked)
	}
	text, _ = highlightText("A<B", "z")
	if text != "A&lt;B" {
		t.Errorf("escaped non-match: %q", text)
	}

	text, marked = highlightText("papa", "pa")
	if !marked || strings.Count(text, "<mark>") != 2 {
		t.Errorf("repeated match: %q", text)
	}
}

func TestHighlightTextUnicodeFolds(t *testing.T) {
	// Ⱥ (2 bytes) lowercases to ⱥ (3 bytes); the match after it must not
	// index past the original text.
	text, marked := highlightText("Ⱥb", "b")
	if !marked || text != "Ⱥ<mark>b</mark>" {
		t.Errorf("length-growing fold: %q, %v", text, marked)
	}

	text, marked = highlightText("Ⱥb", "ⱥ")
	if !marked || text != "<mark>Ⱥ</mark>b" {
		t.Errorf("matching the folded rune itself: %q, %v", text, marked)
	}

	// İ (2 bytes) lowercases to i (1 byte); the mark must wrap the whole
	// following rune, not a byte inside İ.
	text, marked = highlightText("AİB", "b")
	if !marked || text != "Aİ<mark>B</mark>" {
		t.Errorf("length-shrinking fold: %q, %v", text, marked)
	}
	if !utf8.ValidString(text) {
		t.Errorf("highlight produced invalid UTF-8: %q", text)
	}

	text, marked = highlightText("ÖLÇÜ birimi", "ölçü")
	if !marked || text != "<mark>ÖLÇÜ</mark> birimi" {
		t.Errorf("multi-rune case-insensitive match: %q, %v", text, marked)
	}
}

func TestRenderListTable(t *testing.T) {
	entries := []listEntry{
		{
			position:   1,
			instrument: feed.Instrument{ID: 1, Name: "Gold Ounce", Symbol: "XAU", Precision: 2},
			known:      true,
			reading: feed.Reading{
				InstrumentID: 1,
				Buy:          fv(2400.123),
				Sell:         fv(2399.5),
				ObservedAt:   time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC),
			},
			hasReading: true,
			direction:  feed.RateDirection{Buy: feed.DirectionUp, Sell: feed.DirectionDown},
			dailyPct:   1.5,
		},
		{position: 2, known: false},
	}

	table := renderListTable(entries)
	if len(table.Headers) != len(listColumns) || len(table.Fields) != len(listColumns) {
		t.Fatalf("header/field count mismatch: %d/%d", len(table.Headers), len(table.Fields))
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}

	row := table.Rows[0]
	if row[0].Text != "1" {
		t.Errorf("position cell = %q", row[0].Text)
	}
	if row[1].Text != "XAU" || row[2].Text != "Gold Ounce" {
		t.Errorf("identity cells = %q/%q", row[1].Text, row[2].Text)
	}
	if row[3].Text != "2400.12" || row[3].Class != classPositive {
		t.Errorf("buy cell = %+v", row[3])
	}
	if row[4].Text != "2399.50" || row[4].Class != classNegative {
		t.Errorf("sell cell = %+v", row[4])
	}
	if row[5].Text != "0.62" || row[5].Class != classPositive {
		t.Errorf("spread cell = %+v", row[5])
	}
	if row[6].Text != "+1.50%" || row[6].Class != classPositive {
		t.Errorf("daily change cell = %+v", row[6])
	}

	// An unknown instrument with no readings degrades to placeholders.
	fallback := table.Rows[1]
	if fallback[1].Text != "?" || fallback[2].Text != "Unknown" {
		t.Errorf("fallback identity cells = %q/%q", fallback[1].Text, fallback[2].Text)
	}
	if fallback[3].Text != emptyValue || fallback[4].Text != emptyValue {
		t.Errorf("fallback price cells = %q/%q", fallback[3].Text, fallback[4].Text)
	}
	if fallback[7].Text != emptyValue {
		t.Errorf("fallback updated cell = %q", fallback[7].Text)
	}
}

func TestRenderHistoryTable(t *testing.T) {
	entries := []historyEntry{
		{
			position: 1,
			reading: feed.Reading{
				Buy:        fv(110),
				Sell:       fv(109.5),
				ObservedAt: time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC),
			},
			spread:    fv(0.5),
			changePct: fv(10.05),
			precision: 2,
		},
		{position: 2, reading: feed.Reading{Buy: fv(100), Sell: nil}, precision: 2},
	}

	table := renderHistoryTable(entries)
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}

	row := table.Rows[0]
	if row[2].Text != "110.00" || row[3].Text != "109.50" {
		t.Errorf("price cells = %q/%q", row[2].Text, row[3].Text)
	}
	if row[4].Text != "0.50" || row[4].Class != classPositive {
		t.Errorf("spread cell = %+v", row[4])
	}
	if row[5].Text != "+10.05%" || row[5].Class != classPositive {
		t.Errorf("change cell = %+v", row[5])
	}

	oldest := table.Rows[1]
	if oldest[3].Text != emptyValue || oldest[4].Text != emptyValue || oldest[5].Text != emptyValue {
		t.Errorf("missing values should render placeholders: %+v", oldest)
	}
}
