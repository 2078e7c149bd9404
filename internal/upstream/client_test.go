package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratewatch/config"
	"ratewatch/internal/feed"
)

func newTestClient(feedsURL, instrumentsURL string) *Client {
	return NewClient(config.UpstreamConfig{
		FeedsURL:       feedsURL,
		InstrumentsURL: instrumentsURL,
		TimeoutMs:      2000,
	})
}

func TestFetchFeeds(t *testing.T) {
	var gotIDs string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{
			"Feeds": [
				{"StockId": 1, "BuyPrice": 142.5, "SellPrice": 142.1},
				{"StockId": 2, "BuyPrice": "Infinity", "SellPrice": "-Infinity"}
			],
			"LastUpdate": "2024-05-01T10:30:00Z"
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	batch, err := client.FetchFeeds(context.Background(), []int{1, 2})
	if err != nil {
		t.Fatalf("FetchFeeds failed: %v", err)
	}

	if gotIDs != "1,2" {
		t.Errorf("ids query parameter = %q, want %q", gotIDs, "1,2")
	}
	if len(batch.Readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(batch.Readings))
	}

	want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	if !batch.LastUpdate.Equal(want) {
		t.Errorf("LastUpdate = %v, want %v", batch.LastUpdate, want)
	}

	if buy := feed.Normalize(batch.Readings[0].Buy); buy == nil || *buy != 142.5 {
		t.Errorf("numeric price lost on the wire: %v", buy)
	}
	if sell := feed.Normalize(batch.Readings[1].Sell); sell != nil {
		t.Errorf("sentinel price should normalize to nil, got %v", *sell)
	}
}

func TestFetchFeedsOmitsEmptyIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("ids") {
			t.Error("empty id set must omit the ids parameter")
		}
		fmt.Fprintln(w, `{"Feeds": [], "LastUpdate": "2024-05-01T10:30:00Z"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	if _, err := client.FetchFeeds(context.Background(), nil); err != nil {
		t.Fatalf("FetchFeeds failed: %v", err)
	}
}

func TestFetchFeedsBadLastUpdateFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"Feeds": [{"StockId": 1, "BuyPrice": 1, "SellPrice": 1}], "LastUpdate": "yesterday"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	before := time.Now()
	batch, err := client.FetchFeeds(context.Background(), []int{1})
	if err != nil {
		t.Fatalf("FetchFeeds failed: %v", err)
	}
	if batch.LastUpdate.Before(before) {
		t.Errorf("expected local-time fallback, got %v", batch.LastUpdate)
	}
}

func TestFetchFeedsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	if _, err := client.FetchFeeds(context.Background(), []int{1}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestFetchInstruments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `[
			{"Id": 1, "Name": "Gold Ounce", "Symbol": "XAU", "PrecisionDigit": 2},
			{"Id": 2, "Name": "Silver Ounce", "Symbol": "XAG", "PrecisionDigit": 4}
		]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	instruments, err := client.FetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("FetchInstruments failed: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("instruments = %d, want 2", len(instruments))
	}
	if instruments[0].Symbol != "XAU" || instruments[0].Precision != 2 {
		t.Errorf("unexpected first instrument: %+v", instruments[0])
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int{5}); got != "5" {
		t.Errorf("joinIDs single = %q", got)
	}
	if got := joinIDs([]int{1, 22, 333}); got != "1,22,333" {
		t.Errorf("joinIDs = %q", got)
	}
}
