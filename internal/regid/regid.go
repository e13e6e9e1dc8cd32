// Package regid extracts and cross-checks company registration identifiers:
// French SIREN/SIRET (Luhn-checked), VAT numbers and Dutch KvK numbers.
package regid

import (
	"regexp"
	"sort"
	"strings"
)

// Set holds the four disjoint identifier families.
type Set struct {
	SIREN map[string]struct{}
	SIRET map[string]struct{}
	VAT   map[string]struct{}
	KVK   map[string]struct{}
}

func NewSet() Set {
	return Set{
		SIREN: map[string]struct{}{},
		SIRET: map[string]struct{}{},
		VAT:   map[string]struct{}{},
		KVK:   map[string]struct{}{},
	}
}

// Empty reports whether no identifier of any family is present.
func (s Set) Empty() bool {
	return len(s.SIREN) == 0 && len(s.SIRET) == 0 && len(s.VAT) == 0 && len(s.KVK) == 0
}

// Merge adds every identifier of other into s.
func (s Set) Merge(other Set) {
	for k := range other.SIREN {
		s.SIREN[k] = struct{}{}
	}
	for k := range other.SIRET {
		s.SIRET[k] = struct{}{}
	}
	for k := range other.VAT {
		s.VAT[k] = struct{}{}
	}
	for k := range other.KVK {
		s.KVK[k] = struct{}{}
	}
}

// SortedJoin returns every identifier across families, sorted and
// semicolon-joined, for the output column.
func (s Set) SortedJoin() string {
	var all []string
	for _, m := range []map[string]struct{}{s.SIREN, s.SIRET, s.VAT, s.KVK} {
		for k := range m {
			all = append(all, k)
		}
	}
	sort.Strings(all)
	return strings.Join(all, ";")
}

// Spaces inside printed registration numbers include NBSP and NNBSP.
const spaceClass = `[ \x{00A0}\x{202F}]*`

var (
	sirenCore = `\d{3}` + spaceClass + `\d{3}` + spaceClass + `\d{3}`
	siretCore = sirenCore + spaceClass + `\d{5}`

	// Labelled forms anchor the number to its keyword within 20 non-digit
	// characters. Unlabelled fallbacks exist only for SIREN/SIRET.
	sirenRe = regexp.MustCompile(`(?i)\b(?:siren|n°\s*siren|numero\s*siren|num\s*siren)\b[^0-9]{0,20}(` + sirenCore + `)\b`)
	siretRe = regexp.MustCompile(`(?i)\b(?:siret|n°\s*siret|numero\s*siret|num\s*siret)\b[^0-9]{0,20}(` + siretCore + `)\b`)
	sirenFb = regexp.MustCompile(`(?i)\b(` + sirenCore + `)\b`)
	siretFb = regexp.MustCompile(`(?i)\b(` + siretCore + `)\b`)
	vatRe   = regexp.MustCompile(`(?i)\b(?:VAT|TVA|USt-IdNr|Partita IVA|BTW|GST)\b[^A-Z0-9]{0,12}([A-Z0-9\-]{8,16})\b`)
	kvkRe   = regexp.MustCompile(`(?i)\b(?:KvK|Kamer van Koophandel)\b[^0-9]{0,12}(\d{6,12})\b`)
)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Luhn runs the standard mod-10 check over the digits of s, doubling every
// other digit from the right.
func Luhn(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) == 0 {
		return false
	}
	sum := 0
	parity := len(digits) % 2
	for i, d := range digits {
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// Extract pulls identifiers out of free-form page text. Labelled matches take
// priority; unlabelled digit groups are accepted for SIREN/SIRET only when
// they pass Luhn. A SIRET's embedded SIREN is derived when none was found
// directly.
func Extract(text string) Set {
	out := NewSet()
	if text == "" {
		return out
	}
	t := strings.NewReplacer("\u00A0", " ", "\u202F", " ").Replace(text)

	for _, m := range append(findAll(siretRe, t), findAll(siretFb, t)...) {
		d := digitsOnly(m)
		if len(d) == 14 && Luhn(d[:9]) {
			out.SIRET[d] = struct{}{}
		}
	}
	for _, m := range append(findAll(sirenRe, t), findAll(sirenFb, t)...) {
		d := digitsOnly(m)
		if len(d) == 9 && Luhn(d) {
			out.SIREN[d] = struct{}{}
		}
	}
	if len(out.SIRET) > 0 && len(out.SIREN) == 0 {
		for siret := range out.SIRET {
			if Luhn(siret[:9]) {
				out.SIREN[siret[:9]] = struct{}{}
			}
		}
	}
	for _, m := range findAll(vatRe, t) {
		out.VAT[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	for _, m := range findAll(kvkRe, t) {
		out.KVK[digitsOnly(m)] = struct{}{}
	}
	return out
}

func findAll(re *regexp.Regexp, t string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(t, -1) {
		out = append(out, m[1])
	}
	return out
}

// Expected builds the identifier set declared in input context columns.
// Column names are matched exactly (case-insensitive) against
// siren, siret, vat, vat id, kvk, kvk number.
func Expected(ctx map[string]string) Set {
	exp := NewSet()
	for k, v := range ctx {
		vs := strings.TrimSpace(v)
		if vs == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "siren":
			if d := digitsOnly(vs); len(d) == 9 {
				exp.SIREN[d] = struct{}{}
			}
		case "siret":
			d := digitsOnly(vs)
			if len(d) == 14 {
				exp.SIRET[d] = struct{}{}
			}
			if len(d) >= 9 {
				exp.SIREN[d[:9]] = struct{}{}
			}
		case "vat", "vat id":
			exp.VAT[strings.ToUpper(vs)] = struct{}{}
		case "kvk", "kvk number":
			if d := digitsOnly(vs); len(d) >= 6 {
				exp.KVK[d] = struct{}{}
			}
		}
	}
	return exp
}

// Match reports whether any expected identifier corroborates a found one:
// exact SIREN/SIRET intersection, a SIREN equal to a SIRET's first nine
// digits in either direction, or substring containment for VAT (length ≥ 8)
// and KvK.
func Match(expected, found Set) bool {
	for s := range expected.SIREN {
		if _, ok := found.SIREN[s]; ok {
			return true
		}
	}
	for s := range expected.SIRET {
		if _, ok := found.SIRET[s]; ok {
			return true
		}
	}
	for s := range expected.SIREN {
		for siret := range found.SIRET {
			if s == siret[:9] {
				return true
			}
		}
	}
	for siret := range expected.SIRET {
		for s := range found.SIREN {
			if s == siret[:9] {
				return true
			}
		}
	}
	for v := range expected.VAT {
		if len(v) < 8 {
			continue
		}
		for f := range found.VAT {
			if strings.Contains(f, v) || strings.Contains(v, f) {
				return true
			}
		}
	}
	for k := range expected.KVK {
		for f := range found.KVK {
			if strings.Contains(f, k) || strings.Contains(k, f) {
				return true
			}
		}
	}
	return false
}
