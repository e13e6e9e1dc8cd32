package serper

import (
	"strconv"
	"strings"
)

// Locale is the (gl, hl) hint pair sent with a search. Zero value means no
// hint.
type Locale struct {
	GL string
	HL string
}

var iso2ToLocale = map[string]Locale{
	"FR": {"fr", "fr"}, "BE": {"be", "fr"}, "CH": {"ch", "fr"}, "CA": {"ca", "en"},
	"US": {"us", "en"}, "GB": {"gb", "en"}, "IE": {"ie", "en"}, "AU": {"au", "en"}, "NZ": {"nz", "en"},
	"DE": {"de", "de"}, "AT": {"at", "de"}, "CH-DE": {"ch", "de"},
	"ES": {"es", "es"}, "MX": {"mx", "es"}, "AR": {"ar", "es"},
	"IT": {"it", "it"}, "NL": {"nl", "nl"}, "SE": {"se", "sv"}, "NO": {"no", "no"}, "DK": {"dk", "da"},
	"PT": {"pt", "pt"}, "BR": {"br", "pt"}, "PL": {"pl", "pl"}, "CZ": {"cz", "cs"}, "RO": {"ro", "ro"},
	"HU": {"hu", "hu"}, "FI": {"fi", "fi"}, "EE": {"ee", "et"}, "LT": {"lt", "lt"}, "LV": {"lv", "lv"},
	"AE": {"ae", "en"}, "IN": {"in", "en"}, "SG": {"sg", "en"}, "JP": {"jp", "ja"},
}

var countryNameToISO2 = map[string]string{
	"france": "FR", "belgium": "BE", "switzerland": "CH", "canada": "CA",
	"united states": "US", "usa": "US", "united kingdom": "GB", "uk": "GB",
	"ireland": "IE", "australia": "AU", "new zealand": "NZ",
	"germany": "DE", "austria": "AT", "spain": "ES", "mexico": "MX", "argentina": "AR",
	"italy": "IT", "netherlands": "NL", "sweden": "SE", "norway": "NO", "denmark": "DK",
	"portugal": "PT", "brazil": "BR", "poland": "PL", "czech republic": "CZ", "romania": "RO",
	"hungary": "HU", "finland": "FI", "estonia": "EE", "lithuania": "LT", "latvia": "LV",
	"united arab emirates": "AE", "india": "IN", "singapore": "SG", "japan": "JP",
	"switzerland (de)": "CH-DE",
}

// LocaleFor derives the search locale from context columns. An explicit
// country-code column always wins; a country name mapped through the fixed
// table is only consulted when no code column is present, so the result is
// stable regardless of map iteration order. Unknown countries produce no
// hint.
func LocaleFor(ctx map[string]string) Locale {
	code := ""
	for k, v := range ctx {
		kl := strings.ToLower(strings.TrimSpace(k))
		if strings.Contains(kl, "country_code") || kl == "iso2" {
			if vs := strings.ToUpper(strings.TrimSpace(v)); vs != "" {
				code = vs
				break
			}
		}
	}
	if code == "" {
		for k, v := range ctx {
			kl := strings.ToLower(strings.TrimSpace(k))
			if kl == "country" || strings.Contains(kl, "pays") {
				if c := countryNameToISO2[strings.ToLower(strings.TrimSpace(v))]; c != "" {
					code = c
					break
				}
			}
		}
	}
	if loc, ok := iso2ToLocale[code]; code != "" && ok {
		return loc
	}
	return Locale{}
}

// CacheKey identifies one search call for the process-lifetime cache.
func CacheKey(query string, loc Locale, num, page int) string {
	return strings.Join([]string{query, loc.GL, loc.HL, strconv.Itoa(num), strconv.Itoa(page)}, "\x1f")
}
