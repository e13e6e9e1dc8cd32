// Package legal crawls candidate websites for their legal notice pages and
// extracts company registration identifiers from them.
package legal

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/domainresolve/domainresolve/internal/httpx"
	"github.com/domainresolve/domainresolve/internal/regid"
	"github.com/domainresolve/domainresolve/internal/token"
)

// HardCapPages bounds the number of legal-page URLs crawled per domain. The
// homepage does not count against the cap.
const HardCapPages = 12

var legalTextPatterns = []string{
	"mentions légales", "mentions legales", "informations légales", "informations legales",
	"legal notice", "legal notices", "impressum", "imprint", "terms", "conditions", "cgu", "cgv",
	"conditions générales", "conditions generales", "informations juridiques", "legal",
}

var legalHrefParts = []string{"legal", "impressum", "mentions", "conditions", "terms"}

var commonLegalPaths = []string{
	"/mentions-legales", "/mentions_legales", "/informations-legales", "/legal", "/legal-notice",
	"/legal-notices", "/impressum", "/imprint", "/cgu", "/cgv", "/terms", "/conditions",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var headersBase = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "fr-FR,fr;q=0.9,en;q=0.8,de;q=0.7,nl;q=0.7",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
	"Connection":      "keep-alive",
}

func browserHeaders() map[string]string {
	h := make(map[string]string, len(headersBase)+1)
	for k, v := range headersBase {
		h[k] = v
	}
	h["User-Agent"] = userAgents[rand.Intn(len(userAgents))]
	return h
}

// HostLimiter paces page fetches per hostname so a crawl of twelve legal
// URLs does not hammer one site.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}

// Result holds everything one domain crawl produced.
type Result struct {
	Domain    string
	Found     regid.Set
	LegalURLs []string
}

// Crawler fetches legal pages for candidate domains. A zero Hosts limiter
// disables politeness pacing.
type Crawler struct {
	HTTP        *httpx.Client
	Hosts       *HostLimiter
	MaxParallel int
}

// FindLegalLinks returns candidate legal-page URLs for a fetched homepage:
// anchors whose visible text or href look legal-ish, resolved against the
// base URL, then the well-known paths with and without a trailing slash.
// Order is preserved, duplicates dropped, capped at HardCapPages.
func FindLegalLinks(htmlText, baseURL string) []string {
	var out []string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText)); err == nil {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(a.Text()))
			href, _ := a.Attr("href")
			href = strings.TrimSpace(href)
			if href == "" {
				return
			}
			if matchesAny(text, legalTextPatterns) || matchesAny(strings.ToLower(href), legalHrefParts) {
				if abs := resolveRef(baseURL, href); abs != "" {
					out = append(out, abs)
				}
			}
		})
	}
	out = append(out, wellKnownURLs(baseURL)...)
	return dedupeCap(out, HardCapPages)
}

func matchesAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func resolveRef(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func wellKnownURLs(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	root := u.Scheme + "://" + u.Host
	out := make([]string, 0, 2*len(commonLegalPaths))
	for _, p := range commonLegalPaths {
		out = append(out, root+p, root+p+"/")
	}
	return out
}

func dedupeCap(urls []string, limit int) []string {
	seen := make(map[string]struct{}, len(urls))
	var uniq []string
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		uniq = append(uniq, u)
		if len(uniq) >= limit {
			break
		}
	}
	return uniq
}

// CrawlDomain fetches the homepage, derives the legal-page URL list and
// extracts registration IDs from every page that answers with HTML. The
// homepage itself is scanned too when it is not in the list. Fetch failures
// on individual pages are skipped.
func (c *Crawler) CrawlDomain(ctx context.Context, domain string) Result {
	res := Result{Domain: domain, Found: regid.NewSet()}
	base := "https://" + token.StripToDomain(domain)

	var pages []string
	if _, home, err := c.get(ctx, base); err == nil && home != "" {
		pages = FindLegalLinks(home, base)
	} else {
		pages = dedupeCap(wellKnownURLs(base), HardCapPages)
	}
	res.LegalURLs = pages
	if !contains(pages, base) {
		pages = append(pages, base)
	}

	for _, u := range pages {
		if ctx.Err() != nil {
			return res
		}
		_, html, err := c.get(ctx, u)
		if err != nil || html == "" {
			continue
		}
		res.Found.Merge(regid.Extract(html))
	}
	return res
}

func (c *Crawler) get(ctx context.Context, rawURL string) (int, string, error) {
	if c.Hosts != nil {
		if err := c.Hosts.WaitURL(ctx, rawURL); err != nil {
			return 0, "", err
		}
	}
	return c.HTTP.GetHTML(ctx, rawURL, browserHeaders())
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// CrawlDomains crawls every candidate domain in parallel and returns all
// results plus the first domain, in candidate order, whose extracted IDs
// match the expected set. The boolean reports whether a match was found.
func (c *Crawler) CrawlDomains(ctx context.Context, domains []string, expected regid.Set) (map[string]Result, string, bool) {
	results := make(map[string]Result, len(domains))
	var mu sync.Mutex

	par := c.MaxParallel
	if par <= 0 {
		par = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	for _, d := range domains {
		d := d
		if d == "" {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			r := c.CrawlDomain(gctx, d)
			log.Debug().
				Str("domain", d).
				Int("pages", len(r.LegalURLs)).
				Dur("took", time.Since(start)).
				Msg("legal crawl done")
			mu.Lock()
			results[d] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, d := range domains {
		if r, ok := results[d]; ok && regid.Match(expected, r.Found) {
			return results, d, true
		}
	}
	return results, "", false
}
