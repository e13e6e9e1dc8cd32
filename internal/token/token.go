// Package token normalizes company names and domains into comparable token
// sets and provides the string-distance primitives used by the acceptance
// guard and scoring.
package token

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// genericTokens are legal-form suffixes and filler words that carry no brand
// signal. "hub" and "one" are deliberately absent: they are real brand tokens.
var genericTokens = map[string]struct{}{
	"group": {}, "holding": {}, "holdings": {}, "company": {}, "co": {},
	"inc": {}, "llc": {}, "ltd": {}, "plc": {}, "sa": {}, "sas": {},
	"sasu": {}, "spa": {}, "gmbh": {}, "bv": {}, "nv": {}, "oy": {},
	"ab": {}, "ag": {}, "kg": {}, "srl": {}, "sl": {}, "ltda": {},
	"pte": {}, "pty": {}, "limited": {}, "corp": {}, "corporation": {},
	"international": {}, "global": {}, "solutions": {}, "services": {},
	"consulting": {}, "recruitment": {}, "recruiting": {}, "partners": {},
	"management": {}, "systems": {}, "technologies": {}, "technology": {},
	"tech": {}, "digital": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// asciiLower decomposes to NFD, drops combining marks, and lowercases, so
// "Société" folds to "societe".
func asciiLower(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NameTokens splits a company name into lowercase brand tokens with generic
// legal-form tokens removed.
func NameTokens(name string) []string {
	n := strings.TrimSpace(nonAlnum.ReplaceAllString(asciiLower(name), " "))
	if n == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Fields(n) {
		if _, generic := genericTokens[t]; generic {
			continue
		}
		out = append(out, t)
	}
	return out
}

// JoinedNameTokens is the concatenated token string used for edit distance.
func JoinedNameTokens(name string) string {
	return strings.Join(NameTokens(name), "")
}

// JoinedDomainTokens is the concatenated domain token string used for edit
// distance.
func JoinedDomainTokens(domain string) string {
	return strings.Join(DomainTokens(domain), "")
}

func isGeneric(t string) bool {
	_, ok := genericTokens[t]
	return ok
}
