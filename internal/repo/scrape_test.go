package repo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/cardinality-observer/internal/utils"
)

func TestScrapeReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Accept"), "text/plain") {
			t.Fatalf("unexpected accept header: %q", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, "phoenix_a 1\n")
	}))
	defer srv.Close()

	body, err := NewScrapeClient(srv.URL+"/metrics", time.Second).Scrape(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "phoenix_a 1\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestScrapeNon2xxIsFetchError(t *testing.T) {
	client := NewScrapeClient("https://collector.example/metrics", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Status:     "503 Service Unavailable",
			Body:       io.NopCloser(strings.NewReader("down")),
			Header:     make(http.Header),
		}, nil
	}))

	_, err := client.Scrape(context.Background())
	if !utils.IsKind(err, utils.KindFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestScrapeTransportErrorIsFetchError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	client := NewScrapeClient("https://collector.example/metrics", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	}))

	_, err := client.Scrape(context.Background())
	if !utils.IsKind(err, utils.KindFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error to be wrapped, got %v", err)
	}
}

func TestScrapeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewScrapeClient(srv.URL, 50*time.Millisecond).Scrape(context.Background())
	if !utils.IsKind(err, utils.KindFetch) {
		t.Fatalf("expected fetch error on timeout, got %v", err)
	}
}

func TestScrapeWithoutURL(t *testing.T) {
	if _, err := NewScrapeClient("  ", 0).Scrape(context.Background()); !utils.IsKind(err, utils.KindFetch) {
		t.Fatalf("expected fetch error for empty URL, got %v", err)
	}
}
