// Package candidate turns raw web-search results into the deduplicated,
// host-filtered candidate list handed to the LLM chooser.
package candidate

import (
	"strings"

	"github.com/domainresolve/domainresolve/internal/token"
)

const (
	// TitleLimit and SnippetLimit bound the text carried per candidate,
	// in code points.
	TitleLimit   = 90
	SnippetLimit = 180
)

// blockedHostParts excludes social networks, aggregators, news and
// encyclopedic sites: these hosts are never a company's own domain.
var blockedHostParts = []string{
	"linkedin.com", "facebook.com", "instagram.com", "twitter.com", "x.com",
	"youtube.com", "tiktok.com", "wikipedia.org", "wikidata.org",
	"crunchbase.com", "rocketreach.co", "apollo.io", "zoominfo.com",
	"glassdoor", "indeed", "ycombinator.com", "angel.co", "medium.com",
	"blogspot", "news.",
}

// Candidate is a single filtered search result.
type Candidate struct {
	URL     string
	Domain  string
	Title   string
	Snippet string
}

// Raw is the shape of one entry in a search provider's organic results.
// Providers disagree on field names, hence the three URL variants.
type Raw struct {
	Link         string `json:"link"`
	URL          string `json:"url"`
	FormattedURL string `json:"formattedUrl"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	Description  string `json:"description"`
}

// HostBlocked reports whether the host contains any blocked-host substring.
func HostBlocked(host string) bool {
	for _, bad := range blockedHostParts {
		if strings.Contains(host, bad) {
			return true
		}
	}
	return false
}

// Filter keeps the first result per host, drops blocked and empty hosts, and
// truncates title and snippet.
func Filter(results []Raw) []Candidate {
	seen := make(map[string]struct{}, len(results))
	out := make([]Candidate, 0, len(results))
	for _, it := range results {
		link := it.Link
		if link == "" {
			link = it.URL
		}
		if link == "" {
			link = it.FormattedURL
		}
		snippet := it.Snippet
		if snippet == "" {
			snippet = it.Description
		}
		host := token.StripToDomain(link)
		if host == "" {
			continue
		}
		if HostBlocked(host) {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, Candidate{
			URL:     link,
			Domain:  host,
			Title:   truncate(it.Title, TitleLimit),
			Snippet: truncate(snippet, SnippetLimit),
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
