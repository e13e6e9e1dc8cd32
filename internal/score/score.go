// Package score turns a model choice into an accepted domain and a numeric
// confidence: homonym guard, ambiguity penalty, context penalty and bonus,
// optional DNS existence check.
package score

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"github.com/domainresolve/domainresolve/internal/candidate"
	"github.com/domainresolve/domainresolve/internal/table"
	"github.com/domainresolve/domainresolve/internal/token"
)

// Base scores per confidence label. Unknown labels score like null.
var baseScores = map[string]int{
	"entity":  95,
	"country": 78,
	"group":   65,
	"null":    50,
}

// FoundDomainFloor is the minimum score for a domain the model produced from
// its own knowledge rather than the candidate list.
const FoundDomainFloor = 75

// Guard rejects homonym picks: a domain is accepted when the label already
// concedes indirection (country or group), when a known brand alias links
// name and domain, when name and domain tokens overlap strongly, or when the
// joined token strings are close enough in edit distance. Short brand names
// get the looser threshold.
func Guard(company, domain, confidence string) bool {
	switch confidence {
	case "group", "country":
		return true
	}
	if token.AliasMatch(company, domain) {
		return true
	}
	if token.StrongTokenOverlap(company, domain) {
		return true
	}
	a := token.JoinedNameTokens(company)
	b := token.JoinedDomainTokens(domain)
	if a == "" || b == "" {
		return false
	}
	ratio := token.LevenshteinRatio(a, b)
	if len(token.NameTokens(company)) <= 2 {
		return ratio >= 0.60
	}
	return ratio >= 0.70
}

// AmbiguityCount counts non-chosen candidates that look like the company
// themselves, by edit distance or token overlap.
func AmbiguityCount(company string, cands []candidate.Candidate, chosenDomain string) int {
	a := token.JoinedNameTokens(company)
	chosen := token.StripToDomain(chosenDomain)
	count := 0
	for _, c := range cands {
		if c.Domain == "" {
			continue
		}
		if chosen != "" && token.StripToDomain(c.Domain) == chosen {
			continue
		}
		b := token.JoinedDomainTokens(c.Domain)
		if token.LevenshteinRatio(a, b) >= 0.80 || token.StrongTokenOverlap(company, c.Domain) {
			count++
		}
	}
	return count
}

func contextHits(ctx map[string]string, chosen candidate.Candidate) (hits, want int) {
	wantTokens := table.ContextTokens(ctx)
	if len(wantTokens) == 0 {
		return 0, 0
	}
	hay := strings.ToLower(chosen.Title) + " " + strings.ToLower(chosen.Snippet)
	for t := range wantTokens {
		if strings.Contains(hay, t) {
			hits++
		}
	}
	return hits, len(wantTokens)
}

// ContextPenalty charges up to 12 points when the chosen result's title and
// snippet show none of the context tokens. Skipped entirely when the name
// and domain already overlap strongly.
func ContextPenalty(company string, ctx map[string]string, chosen candidate.Candidate, hasChosen bool) int {
	if !hasChosen {
		return 0
	}
	if token.StrongTokenOverlap(company, chosen.Domain) {
		return 0
	}
	hits, want := contextHits(ctx, chosen)
	if want == 0 {
		return 0
	}
	missRatio := 1.0 - float64(hits)/float64(want)
	return int(math.Round(math.Min(12, 12*missRatio)))
}

// ContextBonus rewards context corroboration: +10 for two or more token
// hits, +5 for one.
func ContextBonus(ctx map[string]string, chosen candidate.Candidate, hasChosen bool) int {
	if !hasChosen {
		return 0
	}
	hits, want := contextHits(ctx, chosen)
	if want == 0 {
		return 0
	}
	switch {
	case hits >= 2:
		return 10
	case hits == 1:
		return 5
	}
	return 0
}

// Input carries everything Compute needs for one accepted domain.
type Input struct {
	Company         string
	Confidence      string
	Candidates      []candidate.Candidate
	ChosenDomain    string
	Chosen          candidate.Candidate
	HasChosen       bool
	Ctx             map[string]string
	MaxCandidates   int
	UsedFoundDomain bool
}

// Compute returns the numeric score in [1,100] and the ambiguity count. The
// ambiguity penalty is capped at 12 for one- or two-token brands and 20
// otherwise, scaled by the share of look-alike candidates among those the
// model actually saw.
func Compute(in Input) (score, ambiguity int) {
	base, ok := baseScores[in.Confidence]
	if !ok {
		base = baseScores["null"]
	}
	ambiguity = AmbiguityCount(in.Company, in.Candidates, in.ChosenDomain)

	maxCands := in.MaxCandidates
	if maxCands <= 0 {
		maxCands = 8
	}
	considered := len(in.Candidates)
	if considered > maxCands {
		considered = maxCands
	}
	if considered < 1 {
		considered = 1
	}
	ambRatio := math.Min(1.0, float64(ambiguity)/float64(considered))
	ambCap := 20
	if len(token.NameTokens(in.Company)) <= 2 {
		ambCap = 12
	}
	ambPenalty := int(math.Round(float64(ambCap) * ambRatio))

	ctxPen := ContextPenalty(in.Company, in.Ctx, in.Chosen, in.HasChosen)
	ctxBonus := ContextBonus(in.Ctx, in.Chosen, in.HasChosen)

	score = base - ambPenalty - ctxPen + ctxBonus
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}
	if in.UsedFoundDomain && score < FoundDomainFloor {
		score = FoundDomainFloor
	}
	return score, ambiguity
}

// DNSChecker verifies that an accepted domain resolves at all. Disabled by
// default; each lookup gets its own deadline so one dead domain cannot
// stall the batch.
type DNSChecker struct {
	Enabled  bool
	Timeout  time.Duration
	Resolver *net.Resolver
}

// OK reports whether the domain resolves. A disabled checker accepts
// everything.
func (d *DNSChecker) OK(ctx context.Context, domain string) bool {
	if d == nil || !d.Enabled {
		return true
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, err := r.LookupHost(lctx, token.StripToDomain(domain))
	return err == nil && len(addrs) > 0
}
