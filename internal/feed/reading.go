package feed

import (
	"encoding/json"
	"time"
)

// Instrument is one tradable entity as reported by the instruments endpoint.
// The list is static for the lifetime of a session.
type Instrument struct {
	ID        int    `json:"Id"`
	Name      string `json:"Name"`
	Symbol    string `json:"Symbol"`
	Precision int    `json:"PrecisionDigit"`
}

// RawPrice carries a price exactly as the upstream API sent it. The feeds
// endpoint emits plain numbers for live quotes and bare strings such as
// "Infinity" or "-Infinity" for halted instruments, so the wire value is
// captured verbatim and interpreted later by Normalize.
type RawPrice string

func (p *RawPrice) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = RawPrice(s)
		return nil
	}
	*p = RawPrice(data)
	return nil
}

func (p RawPrice) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// RawReading is one instrument's quote as received from the feeds endpoint.
type RawReading struct {
	InstrumentID int      `json:"StockId"`
	Buy          RawPrice `json:"BuyPrice"`
	Sell         RawPrice `json:"SellPrice"`
}

// Reading is a normalized quote. Buy and Sell are either finite or nil,
// never NaN and never infinite.
type Reading struct {
	InstrumentID int
	Buy          *float64
	Sell         *float64
	ObservedAt   time.Time
}

// Direction classifies a value against its immediate predecessor.
type Direction int

const (
	DirectionNeutral Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "neutral"
	}
}

// RateDirection holds the per-side direction computed at the most recent
// ingest for an instrument.
type RateDirection struct {
	Buy  Direction
	Sell Direction
}
