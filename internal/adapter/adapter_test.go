package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"procurepulse/aggregator-service/internal/model"
)

// ── Filter ─────────────────────────────────────────────────────────────────

func TestFilterAllows(t *testing.T) {
	empty := NewFilter(nil)
	if !empty.Allows("TX") || !empty.Allows("NY") {
		t.Error("empty filter must admit every state")
	}

	f := NewFilter([]string{"TX", "FL"})
	if !f.Allows("TX") {
		t.Error("Allows(TX) should be true")
	}
	if f.Allows("NY") {
		t.Error("Allows(NY) should be false")
	}
}

// ── Error classification ───────────────────────────────────────────────────

func TestCategorize(t *testing.T) {
	statusErr := fmt.Errorf("fetch: %w", &HTTPStatusError{StatusCode: 404, URL: "https://example.gov"})
	if got := Categorize(statusErr); got != ErrCategoryHTTPStatus {
		t.Errorf("Categorize(status error) = %s, want %s", got, ErrCategoryHTTPStatus)
	}

	netErr := errors.New("dial tcp: connection refused")
	if got := Categorize(netErr); got != ErrCategoryNetwork {
		t.Errorf("Categorize(net error) = %s, want %s", got, ErrCategoryNetwork)
	}
}

// ── fetcher ────────────────────────────────────────────────────────────────

func TestFetcherGet_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	body, err := newFetcher().get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}
}

// Non-2xx responses fail immediately with no retry.
func TestFetcherGet_StatusErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newFetcher().get(context.Background(), srv.URL)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", statusErr.StatusCode)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (no retry on status errors)", n)
	}
}

// A transient transport failure is retried and eventually succeeds.
func TestFetcherGet_RetriesTransportError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// Kill the connection mid-request to simulate a reset.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer does not support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer srv.Close()

	body, err := newFetcher().get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get after retry returned error: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("body = %q, want recovered", body)
	}
	if n := hits.Load(); n < 2 {
		t.Errorf("server hit %d times, want at least 2", n)
	}
}

// An unreachable endpoint exhausts the budget and yields a network error.
func TestFetcherGet_UnreachableEndpoint(t *testing.T) {
	// Grab a port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadURL := "http://" + l.Addr().String()
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = newFetcher().get(ctx, deadURL)
	if err == nil {
		t.Fatal("get against dead endpoint should fail")
	}
	if got := Categorize(err); got != ErrCategoryNetwork {
		t.Errorf("Categorize = %s, want %s", got, ErrCategoryNetwork)
	}
}

// ── RSS adapter ────────────────────────────────────────────────────────────

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Open Solicitations</title>
    <item>
      <title>Janitorial Services, Capitol Complex</title>
      <link>https://example.gov/ads/1</link>
      <guid>https://example.gov/ads/detail?id=CR100</guid>
      <description>Bids due: 03/15/2025</description>
    </item>
    <item>
      <title></title>
      <link>https://example.gov/ads/2</link>
    </item>
    <item>
      <title>Custodial Services, Region 4 Schools</title>
      <link>https://example.gov/ads/3</link>
      <description>Due Date: April 1, 2025</description>
    </item>
  </channel>
</rss>`

func testRSSMapper(item *gofeed.Item, state string) (model.RawRecord, error) {
	if strings.TrimSpace(item.Title) == "" {
		return model.RawRecord{}, errMissingTitle
	}
	return model.RawRecord{
		Title:      item.Title,
		State:      state,
		Link:       item.Link,
		DueDateRaw: extractDueDate(item.Description),
	}, nil
}

func TestRSSAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	a := newRSSAdapter("test_rss", []rssFeed{{URL: srv.URL, State: "NY"}}, testRSSMapper)
	records, report := a.Fetch(context.Background(), NewFilter(nil))

	if report.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", report.Fetched)
	}
	if report.Errors[ErrCategoryParse] != 1 {
		t.Errorf("parse errors = %d, want 1 (the titleless item)", report.Errors[ErrCategoryParse])
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].State != "NY" {
		t.Errorf("State = %s, want NY", records[0].State)
	}
	if records[0].DueDateRaw != "03/15/2025" {
		t.Errorf("DueDateRaw = %q, want 03/15/2025", records[0].DueDateRaw)
	}
}

func TestRSSAdapter_FilterSkipsFeed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	a := newRSSAdapter("test_rss", []rssFeed{{URL: srv.URL, State: "NY"}}, testRSSMapper)
	records, report := a.Fetch(context.Background(), NewFilter([]string{"TX"}))

	if len(records) != 0 || report.Fetched != 0 {
		t.Errorf("filtered feed should yield nothing, got %d records", len(records))
	}
	if hits.Load() != 0 {
		t.Error("filtered feed must not be requested at all")
	}
}

// A feed endpoint serving garbage counts one parse error and nothing else.
func TestRSSAdapter_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not xml")
	}))
	defer srv.Close()

	a := newRSSAdapter("test_rss", []rssFeed{{URL: srv.URL, State: "NY"}}, testRSSMapper)
	records, report := a.Fetch(context.Background(), NewFilter(nil))

	if len(records) != 0 {
		t.Errorf("got %d records from malformed feed, want 0", len(records))
	}
	if report.Errors[ErrCategoryParse] != 1 {
		t.Errorf("parse errors = %d, want 1", report.Errors[ErrCategoryParse])
	}
}

// ── JSON adapter ───────────────────────────────────────────────────────────

func TestJSONAdapter_Pagination(t *testing.T) {
	// Page 1 is full (2 items), page 2 is short (1 item) — the walk stops.
	pages := map[string]string{
		"1": `{"items":[{"t":"Janitorial A"},{"t":"Janitorial B"}]}`,
		"2": `{"items":[{"t":"Janitorial C"}]}`,
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	decode := func(body []byte, state string) ([]model.RawRecord, error) {
		var resp struct {
			Items []struct {
				T string `json:"t"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		var out []model.RawRecord
		for _, it := range resp.Items {
			out = append(out, model.RawRecord{Title: it.T, State: state})
		}
		return out, nil
	}

	endpoints := []jsonEndpoint{{
		State:   "TX",
		PageURL: func(page int) string { return fmt.Sprintf("%s/search?page=%d", srv.URL, page) },
	}}
	a := newJSONAdapter("test_json", endpoints, decode, 2, 5)
	records, report := a.Fetch(context.Background(), NewFilter(nil))

	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
	if report.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3", report.Fetched)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2 (short page ends the walk)", hits.Load())
	}
}

// A failing page keeps earlier pages' records and counts one error.
func TestJSONAdapter_MidWalkFailureKeepsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"items":[{"t":"Janitorial A"},{"t":"Janitorial B"}]}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	decode := func(body []byte, state string) ([]model.RawRecord, error) {
		var resp struct {
			Items []struct {
				T string `json:"t"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		var out []model.RawRecord
		for _, it := range resp.Items {
			out = append(out, model.RawRecord{Title: it.T, State: state})
		}
		return out, nil
	}

	endpoints := []jsonEndpoint{{
		State:   "TX",
		PageURL: func(page int) string { return fmt.Sprintf("%s/search?page=%d", srv.URL, page) },
	}}
	a := newJSONAdapter("test_json", endpoints, decode, 2, 5)
	records, report := a.Fetch(context.Background(), NewFilter(nil))

	if len(records) != 2 {
		t.Errorf("got %d records, want the 2 from page 1", len(records))
	}
	if report.Errors[ErrCategoryHTTPStatus] != 1 {
		t.Errorf("http_status errors = %d, want 1", report.Errors[ErrCategoryHTTPStatus])
	}
}

// ── HTML adapter ───────────────────────────────────────────────────────────

const testHTML = `<html><body>
<table class="bid-search-results"><tbody>
  <tr>
    <td>RFP-01</td><td><a href="/bids/1">Janitorial Services HQ</a></td>
    <td>DMS</td><td>03/15/2025</td>
  </tr>
  <tr><td>broken row</td></tr>
  <tr>
    <td>RFP-02</td><td><a href="/bids/2">Custodial Services Annex</a></td>
    <td>DOT</td><td>04/01/2025</td>
  </tr>
</tbody></table>
</body></html>`

func TestHTMLAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testHTML)
	}))
	defer srv.Close()

	pages := []htmlPage{{URL: srv.URL, State: "FL"}}
	a := newHTMLAdapter("test_html", pages, "table.bid-search-results tbody tr", parseFLRow)
	records, report := a.Fetch(context.Background(), NewFilter(nil))

	if report.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", report.Fetched)
	}
	if report.Errors[ErrCategoryParse] != 1 {
		t.Errorf("parse errors = %d, want 1 (the broken row)", report.Errors[ErrCategoryParse])
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].SolicitationNumber != "RFP-01" {
		t.Errorf("SolicitationNumber = %q, want RFP-01", records[0].SolicitationNumber)
	}
	if records[0].Link == "" || !strings.HasPrefix(records[0].Link, "https://") {
		t.Errorf("relative link not absolutized: %q", records[0].Link)
	}
}

// ── Registry ───────────────────────────────────────────────────────────────

func TestAll_OmitsSAMGovWithoutKey(t *testing.T) {
	without := All("")
	with := All("test-key")
	if len(with) != len(without)+1 {
		t.Errorf("with key %d adapters, without %d — want exactly one more", len(with), len(without))
	}
	for _, a := range without {
		if a.Name() == "sam_gov" {
			t.Error("sam_gov present despite missing API key")
		}
	}
}

func TestDefaultPriority_CoversAllSources(t *testing.T) {
	prio := make(map[string]bool)
	for _, name := range DefaultPriority() {
		prio[name] = true
	}
	for _, a := range All("test-key") {
		if !prio[a.Name()] {
			t.Errorf("source %s missing from default priority order", a.Name())
		}
	}
}

// extractDueDate feeds the RSS mappers; pin its formats.
func TestExtractDueDate(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Bids due: 03/15/2025", "03/15/2025"},
		{"DUE DATE: March 15, 2025", "March 15, 2025"},
		{"Responses due 2025-03-15", "2025-03-15"},
		{"no date here", ""},
	}
	for _, c := range cases {
		if got := extractDueDate(c.text); got != c.want {
			t.Errorf("extractDueDate(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
