// Package table models the dynamic input rows: ordered columns of strings,
// one company column resolved by name heuristics, and context columns
// classified into five semantic buckets.
package table

import (
	"errors"
	"strings"

	"github.com/domainresolve/domainresolve/internal/token"
)

// Row is a single record. Column order lives in Table.Columns.
type Row map[string]string

// Table is an ordered sequence of rows sharing one header.
type Table struct {
	Columns []string
	Rows    []Row
}

// ErrNoCompanyColumn is returned before any I/O when the input has no
// recognizable company column.
var ErrNoCompanyColumn = errors.New("table: no company name column found")

// Output columns appended by enrichment.
const (
	ColURL         = "URL"
	ColScore       = "URL_confidence_score"
	ColAmbiguity   = "URL_ambiguity"
	ColCandCount   = "URL_cand_count"
	ColRegMatch    = "URL_reg_match"
	ColRegIDs      = "URL_reg_ids_found"
	ColDebug       = "URL_debug"
	ColFoundDomain = "URL_found_domain"
)

// OutputColumns in emission order.
var OutputColumns = []string{
	ColURL, ColScore, ColAmbiguity, ColCandCount,
	ColRegMatch, ColRegIDs, ColDebug, ColFoundDomain,
}

var companyColumnCandidates = []string{
	"company name", "company", "organisation", "organization",
	"entreprise", "nom entreprise", "raison sociale",
}

// Bucket is the semantic role of a context column.
type Bucket int

const (
	Location Bucket = iota
	Description
	Sector
	Socials
	Registration
)

var bucketNames = map[Bucket][]string{
	Location:     {"country", "pays", "country_code", "iso2", "location", "city", "ville", "region", "state", "province"},
	Description:  {"description", "about", "bio", "summary", "notes"},
	Sector:       {"industry", "sector", "secteur", "naics", "sic"},
	Socials:      {"website", "site web", "url", "domain", "homepage", "linkedin", "linkedin url", "profile", "company url"},
	Registration: {"siren", "siret", "vat", "vat id", "kvk", "kvk number"},
}

// Classify maps an exact (case-insensitive) column name to its bucket.
func Classify(column string) (Bucket, bool) {
	name := strings.ToLower(strings.TrimSpace(column))
	for b, names := range bucketNames {
		for _, n := range names {
			if name == n {
				return b, true
			}
		}
	}
	return 0, false
}

// IsRegistration reports whether the column carries an expected registration
// identifier.
func IsRegistration(column string) bool {
	b, ok := Classify(column)
	return ok && b == Registration
}

// FindCompanyColumn resolves the company column: exact candidate names first,
// then any column containing company/entreprise/raison.
func FindCompanyColumn(columns []string) (string, error) {
	low := make(map[string]string, len(columns))
	for _, c := range columns {
		low[strings.ToLower(c)] = c
	}
	for _, cand := range companyColumnCandidates {
		if orig, ok := low[cand]; ok {
			return orig, nil
		}
	}
	for _, c := range columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "company") || strings.Contains(lc, "entreprise") || strings.Contains(lc, "raison") {
			return c, nil
		}
	}
	return "", ErrNoCompanyColumn
}

// DetectContextColumns returns, in header order, every column whose name
// contains any bucket keyword. Detection is substring-based; bucket
// classification stays exact.
func DetectContextColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		cl := strings.ToLower(strings.TrimSpace(c))
		if containsAnyKeyword(cl) {
			out = append(out, c)
		}
	}
	return out
}

func containsAnyKeyword(name string) bool {
	for _, names := range bucketNames {
		for _, k := range names {
			if strings.Contains(name, k) {
				return true
			}
		}
	}
	return false
}

// EnsureOutputColumns appends any missing output column to the header.
// Existing columns keep their position.
func (t *Table) EnsureOutputColumns() {
	have := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = struct{}{}
	}
	for _, c := range OutputColumns {
		if _, ok := have[c]; !ok {
			t.Columns = append(t.Columns, c)
		}
	}
}

// ContextTokens collects the tokens (length ≥ 3) from description, sector and
// location context values; used for the context penalty and bonus.
func ContextTokens(ctx map[string]string) map[string]struct{} {
	want := make(map[string]struct{})
	for k, v := range ctx {
		b, ok := Classify(k)
		if !ok || (b != Description && b != Sector && b != Location) {
			continue
		}
		for _, t := range token.NameTokens(v) {
			if len(t) >= 3 {
				want[t] = struct{}{}
			}
		}
	}
	return want
}

// CleanValue trims a cell and treats the usual spreadsheet null spellings as
// empty.
func CleanValue(v string) string {
	s := strings.TrimSpace(v)
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return ""
	}
	return s
}
