package token

import "strings"

// brandAliases maps a normalized company name to token aliases that its
// official domains are known to use instead of the name itself.
var brandAliases = map[string][]string{
	"dassaultsystemes":    {"3ds", "3dsexperience"},
	"reelit":              {"reel", "it"},
	"lefigaroclassifieds": {"le", "figaro", "classifieds"},
}

// AliasMatch reports whether a known brand alias links the company name to
// the domain's tokens.
func AliasMatch(company, domain string) bool {
	cname := JoinedNameTokens(company)
	dtoks := DomainTokens(domain)
	if cname == "" || len(dtoks) == 0 {
		return false
	}
	dset := toSet(dtoks)
	joined := strings.Join(dtoks, "")
	for base, aliases := range brandAliases {
		if !strings.Contains(cname, base) {
			continue
		}
		for _, al := range aliases {
			if _, ok := dset[al]; ok {
				return true
			}
			if strings.Contains(joined, al) {
				return true
			}
		}
	}
	return false
}
