package legal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/domainresolve/domainresolve/internal/httpx"
	"github.com/domainresolve/domainresolve/internal/regid"
)

const homepage = `<html><body>
<a href="/mentions-legales">Mentions légales</a>
<a href="https://example.fr/about">About us</a>
<a href="/fr/cgv-page">Nos conditions de vente</a>
</body></html>`

func TestFindLegalLinks(t *testing.T) {
	links := FindLegalLinks(homepage, "https://example.fr")
	if len(links) == 0 {
		t.Fatal("no links found")
	}
	if links[0] != "https://example.fr/mentions-legales" {
		t.Fatalf("first link = %q", links[0])
	}
	if len(links) > HardCapPages {
		t.Fatalf("len = %d, cap is %d", len(links), HardCapPages)
	}
	for _, l := range links {
		if strings.Contains(l, "/about") {
			t.Fatal("non-legal anchor kept")
		}
	}
	// Well-known paths appended after anchors.
	found := false
	for _, l := range links {
		if l == "https://example.fr/impressum" {
			found = true
		}
	}
	if !found {
		t.Error("well-known /impressum path missing")
	}
}

func TestFindLegalLinks_Dedupe(t *testing.T) {
	html := `<a href="/legal">Legal</a><a href="/legal">Legal notice</a>`
	links := FindLegalLinks(html, "https://example.fr")
	n := 0
	for _, l := range links {
		if l == "https://example.fr/legal" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("duplicate /legal kept %d times", n)
	}
}

func newCrawlServer(t *testing.T, legalBody string) (*httptest.Server, *Crawler, string) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<a href="/mentions-legales">Mentions légales</a>`))
		case "/mentions-legales":
			w.Write([]byte(legalBody))
		default:
			http.NotFound(w, r)
		}
	}))
	c := &Crawler{HTTP: &httpx.Client{HTTPClient: srv.Client(), MaxRetries: 1}}
	domain := strings.TrimPrefix(srv.URL, "https://")
	return srv, c, domain
}

func TestCrawlDomain_ExtractsIDs(t *testing.T) {
	srv, c, domain := newCrawlServer(t, `<p>SIREN : 732 829 320 - RCS Paris</p>`)
	defer srv.Close()

	res := c.CrawlDomain(context.Background(), domain)
	if _, ok := res.Found.SIREN["732829320"]; !ok {
		t.Fatalf("SIREN not extracted: %+v", res.Found)
	}
	if len(res.LegalURLs) == 0 || !strings.HasSuffix(res.LegalURLs[0], "/mentions-legales") {
		t.Fatalf("legal urls = %v", res.LegalURLs)
	}
}

func TestCrawlDomains_FirstMatchInCandidateOrder(t *testing.T) {
	miss, cm, missDomain := newCrawlServer(t, `<p>nothing to see</p>`)
	defer miss.Close()
	hit, ch, hitDomain := newCrawlServer(t, `<p>SIREN : 732 829 320</p>`)
	defer hit.Close()

	// One crawler cannot trust both test certificates, so crawl each
	// domain with its own client and merge, then check match ordering.
	expected := regid.NewSet()
	expected.SIREN["732829320"] = struct{}{}

	resMiss, _, okMiss := cm.CrawlDomains(context.Background(), []string{missDomain}, expected)
	if okMiss {
		t.Fatal("match reported for domain without IDs")
	}
	if _, ok := resMiss[missDomain]; !ok {
		t.Fatal("missing crawl result for unmatched domain")
	}

	resHit, best, okHit := ch.CrawlDomains(context.Background(), []string{hitDomain}, expected)
	if !okHit || best != hitDomain {
		t.Fatalf("best = %q ok = %v", best, okHit)
	}
	if _, ok := resHit[hitDomain].Found.SIREN["732829320"]; !ok {
		t.Fatal("matched result lost extracted SIREN")
	}
}

func TestBrowserHeaders(t *testing.T) {
	h := browserHeaders()
	if h["User-Agent"] == "" {
		t.Fatal("missing User-Agent")
	}
	if h["Accept-Language"] != "fr-FR,fr;q=0.9,en;q=0.8,de;q=0.7,nl;q=0.7" {
		t.Fatalf("Accept-Language = %q", h["Accept-Language"])
	}
}
