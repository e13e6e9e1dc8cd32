package token

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var wwwPrefix = regexp.MustCompile(`^www\d*\.`)

// subdomainStop lists subdomain labels that carry no brand signal.
var subdomainStop = map[string]struct{}{
	"www": {}, "m": {}, "en": {}, "fr": {}, "de": {}, "es": {},
	"it": {}, "nl": {}, "pt": {}, "pl": {}, "jp": {},
}

// gluePattern splits tokens like "reelit" into "reel"+"it". The lazy root
// keeps the split at the shortest root whose remainder is exactly one of the
// known glue suffixes.
var gluePattern = regexp.MustCompile(`^(.*?)(it|ai|data|group|groupe|sante|santé|labs)$`)

// StripToDomain reduces a URL or bare host to a lowercase host with any
// leading www/wwwN label removed. It is idempotent.
func StripToDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	host := strings.ToLower(raw)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		host = strings.ToLower(u.Host)
	}
	host = wwwPrefix.ReplaceAllString(host, "")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}

// splitHost separates a host into registrable SLD and subdomain prefix.
func splitHost(host string) (sld, sub string) {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Not under a known public suffix (bare label, IP). Fall back to a
		// plain label split.
		labels := strings.Split(host, ".")
		if len(labels) >= 2 {
			return labels[len(labels)-2], strings.Join(labels[:len(labels)-2], ".")
		}
		return host, ""
	}
	sld = etld1
	if i := strings.IndexByte(etld1, '.'); i >= 0 {
		sld = etld1[:i]
	}
	sub = strings.TrimSuffix(strings.TrimSuffix(host, etld1), ".")
	return sld, sub
}

// DomainTokens splits a domain into brand tokens: registrable SLD plus any
// non-stop subdomain labels, glue-suffix expansion applied, generic tokens
// removed.
func DomainTokens(domain string) []string {
	host := StripToDomain(domain)
	if host == "" {
		return nil
	}
	sld, sub := splitHost(host)

	var toks []string
	for _, t := range strings.FieldsFunc(sld, isSep) {
		toks = append(toks, t)
	}
	if sub != "" {
		for _, t := range strings.FieldsFunc(sub, isSep) {
			if _, stop := subdomainStop[t]; stop {
				continue
			}
			toks = append(toks, t)
		}
	}

	var expanded []string
	for _, t := range toks {
		if m := gluePattern.FindStringSubmatch(t); m != nil && m[1] != "" {
			expanded = append(expanded, m[1], t[len(m[1]):])
			continue
		}
		expanded = append(expanded, t)
	}

	var out []string
	for _, t := range expanded {
		if t == "" || isGeneric(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isSep(r rune) bool {
	return r == '-' || r == '_' || r == '.'
}
