package serper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/domainresolve/domainresolve/internal/httpx"
	"github.com/domainresolve/domainresolve/internal/limiter"
)

func TestLocaleFor(t *testing.T) {
	cases := []struct {
		name string
		ctx  map[string]string
		want Locale
	}{
		{"country code column", map[string]string{"country_code": "fr"}, Locale{"fr", "fr"}},
		{"iso2 column", map[string]string{"iso2": "JP"}, Locale{"jp", "ja"}},
		{"country name", map[string]string{"country": "France"}, Locale{"fr", "fr"}},
		{"unknown country", map[string]string{"country": "Atlantis"}, Locale{}},
		{"no locale context", map[string]string{"industry": "retail"}, Locale{}},
	}
	for _, c := range cases {
		if got := LocaleFor(c.ctx); got != c.want {
			t.Errorf("%s: LocaleFor = %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestLocaleFor_CodeColumnWinsOverCountryName(t *testing.T) {
	ctx := map[string]string{
		"country_code": "JP",
		"country":      "France",
	}
	want := Locale{"jp", "ja"}
	// Map iteration order varies between calls; the code column must win
	// every time.
	for i := 0; i < 200; i++ {
		if got := LocaleFor(ctx); got != want {
			t.Fatalf("iteration %d: LocaleFor = %+v, want %+v", i, got, want)
		}
	}
	// An empty code column falls back to the country name.
	got := LocaleFor(map[string]string{"country_code": " ", "country": "France"})
	if got != (Locale{"fr", "fr"}) {
		t.Fatalf("empty code fallback: LocaleFor = %+v", got)
	}
}

func TestCacheKey_DistinguishesLocale(t *testing.T) {
	a := CacheKey("acme", Locale{"fr", "fr"}, 12, 1)
	b := CacheKey("acme", Locale{}, 12, 1)
	if a == b {
		t.Fatal("cache keys must differ by locale")
	}
	if a != CacheKey("acme", Locale{"fr", "fr"}, 12, 1) {
		t.Fatal("cache key must be deterministic")
	}
}

func TestSearch_SendsBodyAndAPIKey(t *testing.T) {
	var got searchBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "k" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"organic":[{"link":"https://carrefour.fr","title":"Carrefour"}]}`))
	}))
	defer srv.Close()

	c := &Client{
		APIKey:  "k",
		BaseURL: srv.URL,
		HTTP:    &httpx.Client{HTTPClient: srv.Client(), MaxRetries: 1},
		Limiter: limiter.NewRPS(50),
	}
	results, err := c.Search(context.Background(), "carrefour official website", Locale{"fr", "fr"}, 12)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Q != "carrefour official website" || got.Num != 12 || got.GL != "fr" || got.HL != "fr" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if len(results) != 1 || results[0].Link != "https://carrefour.fr" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearch_Non200YieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTP: &httpx.Client{HTTPClient: srv.Client(), MaxRetries: 1}}
	results, err := c.Search(context.Background(), "x", Locale{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %v", results)
	}
}

func TestSearch_ClampsNum(t *testing.T) {
	var got searchBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTP: &httpx.Client{HTTPClient: srv.Client(), MaxRetries: 1}}
	if _, err := c.Search(context.Background(), "x", Locale{}, 500); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Num != 100 {
		t.Fatalf("num = %d, want clamped to 100", got.Num)
	}
}
