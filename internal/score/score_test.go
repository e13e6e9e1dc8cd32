package score

import (
	"context"
	"testing"
	"time"

	"github.com/domainresolve/domainresolve/internal/candidate"
)

func TestGuard(t *testing.T) {
	cases := []struct {
		name       string
		company    string
		domain     string
		confidence string
		want       bool
	}{
		{"token overlap", "Airbus", "airbus.com", "entity", true},
		{"country label trusted", "Total Energies", "unrelated.com", "country", true},
		{"group label trusted", "Total Energies", "unrelated.com", "group", true},
		{"brand alias", "Reel IT", "reel.fr", "entity", true},
		{"close edit distance short brand", "Acme", "acm.com", "entity", true},
		{"homonym rejected", "Boulangerie Martin", "martinair.com", "entity", false},
		{"empty domain tokens", "Acme", "", "entity", false},
	}
	for _, c := range cases {
		if got := Guard(c.company, c.domain, c.confidence); got != c.want {
			t.Errorf("%s: Guard(%q, %q, %q) = %v, want %v", c.name, c.company, c.domain, c.confidence, got, c.want)
		}
	}
}

func TestAmbiguityCount(t *testing.T) {
	cands := []candidate.Candidate{
		{Domain: "carrefour.fr"},
		{Domain: "carrefour.com"},
		{Domain: "carrefour-banque.fr"},
		{Domain: "totally-unrelated.io"},
	}
	// Chosen is excluded; two look-alikes remain.
	got := AmbiguityCount("Carrefour", cands, "carrefour.fr")
	if got != 2 {
		t.Fatalf("AmbiguityCount = %d, want 2", got)
	}
	if AmbiguityCount("Carrefour", nil, "carrefour.fr") != 0 {
		t.Fatal("no candidates must give zero ambiguity")
	}
}

func TestContextPenalty_SkippedOnOverlap(t *testing.T) {
	ctx := map[string]string{"description": "aerospace manufacturer toulouse"}
	chosen := candidate.Candidate{Domain: "airbus.com", Title: "totally off topic", Snippet: ""}
	if p := ContextPenalty("Airbus", ctx, chosen, true); p != 0 {
		t.Fatalf("penalty = %d, want 0 when tokens overlap", p)
	}
}

func TestContextPenalty_FullMiss(t *testing.T) {
	ctx := map[string]string{"description": "aerospace manufacturer toulouse"}
	chosen := candidate.Candidate{Domain: "example.org", Title: "cooking recipes", Snippet: "pastry"}
	if p := ContextPenalty("Nonoverlap Name", ctx, chosen, true); p != 12 {
		t.Fatalf("penalty = %d, want 12 for a full miss", p)
	}
	if p := ContextPenalty("Nonoverlap Name", nil, chosen, true); p != 0 {
		t.Fatalf("penalty = %d, want 0 with no context", p)
	}
	if p := ContextPenalty("Nonoverlap Name", ctx, candidate.Candidate{}, false); p != 0 {
		t.Fatalf("penalty = %d, want 0 without a chosen result", p)
	}
}

func TestContextBonus(t *testing.T) {
	ctx := map[string]string{"description": "aerospace manufacturer toulouse"}
	two := candidate.Candidate{Title: "Aerospace leader", Snippet: "based in Toulouse"}
	one := candidate.Candidate{Title: "Aerospace something", Snippet: "elsewhere"}
	none := candidate.Candidate{Title: "cooking", Snippet: "recipes"}
	if b := ContextBonus(ctx, two, true); b != 10 {
		t.Errorf("two hits: bonus = %d, want 10", b)
	}
	if b := ContextBonus(ctx, one, true); b != 5 {
		t.Errorf("one hit: bonus = %d, want 5", b)
	}
	if b := ContextBonus(ctx, none, true); b != 0 {
		t.Errorf("no hits: bonus = %d, want 0", b)
	}
}

func TestCompute_CleanEntity(t *testing.T) {
	cands := []candidate.Candidate{
		{Domain: "airbus.com", Title: "Airbus", Snippet: "Aerospace pioneer"},
		{Domain: "unrelated.io"},
	}
	got, amb := Compute(Input{
		Company:      "Airbus",
		Confidence:   "entity",
		Candidates:   cands,
		ChosenDomain: "airbus.com",
		Chosen:       cands[0],
		HasChosen:    true,
	})
	if amb != 0 {
		t.Fatalf("ambiguity = %d, want 0", amb)
	}
	if got != 95 {
		t.Fatalf("score = %d, want 95", got)
	}
}

func TestCompute_AmbiguityPenaltyShortBrand(t *testing.T) {
	cands := []candidate.Candidate{
		{Domain: "carrefour.fr"},
		{Domain: "carrefour.com"},
	}
	got, amb := Compute(Input{
		Company:      "Carrefour",
		Confidence:   "entity",
		Candidates:   cands,
		ChosenDomain: "carrefour.fr",
		Chosen:       cands[0],
		HasChosen:    true,
	})
	if amb != 1 {
		t.Fatalf("ambiguity = %d, want 1", amb)
	}
	// Base 95, one look-alike out of two considered, cap 12: 95 - 6 = 89.
	if got != 89 {
		t.Fatalf("score = %d, want 89", got)
	}
}

func TestCompute_FoundDomainFloor(t *testing.T) {
	got, _ := Compute(Input{
		Company:         "Acme",
		Confidence:      "null",
		UsedFoundDomain: true,
	})
	if got != FoundDomainFloor {
		t.Fatalf("score = %d, want floor %d", got, FoundDomainFloor)
	}
}

func TestCompute_ClampLow(t *testing.T) {
	// Ten look-alike candidates against a group label drive the raw score
	// toward the floor but never below 1.
	var cands []candidate.Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, candidate.Candidate{Domain: "acme.io"})
	}
	ctx := map[string]string{"description": "industrial robotics supplier hamburg"}
	got, _ := Compute(Input{
		Company:      "Acme",
		Confidence:   "null",
		Candidates:   cands,
		ChosenDomain: "other.com",
		Chosen:       candidate.Candidate{Domain: "other.com", Title: "irrelevant", Snippet: ""},
		HasChosen:    true,
		Ctx:          ctx,
	})
	if got < 1 || got > 100 {
		t.Fatalf("score = %d, out of range", got)
	}
	if got != 26 {
		// 50 base - 12 ambiguity cap - 12 context miss = 26.
		t.Fatalf("score = %d, want 26", got)
	}
}

func TestDNSChecker_DisabledAcceptsAll(t *testing.T) {
	var d *DNSChecker
	if !d.OK(context.Background(), "no-such-domain.invalid") {
		t.Fatal("nil checker must accept")
	}
	off := &DNSChecker{Enabled: false}
	if !off.OK(context.Background(), "no-such-domain.invalid") {
		t.Fatal("disabled checker must accept")
	}
}

func TestDNSChecker_TimeoutBounded(t *testing.T) {
	d := &DNSChecker{Enabled: true, Timeout: 50 * time.Millisecond}
	start := time.Now()
	d.OK(context.Background(), "no-such-domain.invalid")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("lookup took %v, deadline not applied", elapsed)
	}
}
