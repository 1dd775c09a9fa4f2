package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Country aliases keyed by lowercased raw value. Only spellings that
// title-casing alone would not land on the canonical form need an entry.
var countryAliases = map[string]string{
	"usa":                      "United States",
	"u.s.a.":                   "United States",
	"us":                       "United States",
	"u.s.":                     "United States",
	"america":                  "United States",
	"united states of america": "United States",
	"uk":                       "United Kingdom",
	"u.k.":                     "United Kingdom",
	"great britain":            "United Kingdom",
	"uae":                      "United Arab Emirates",
	"u.a.e.":                   "United Arab Emirates",
	"deutschland":              "Germany",
	"holland":                  "Netherlands",
	"the netherlands":          "Netherlands",
	"republic of korea":        "South Korea",
	"viet nam":                 "Vietnam",
}

// City aliases keyed by lowercased raw value with all whitespace removed, so
// "New York", "newyork" and "NEW YORK CITY" converge.
var cityAliases = map[string]string{
	"nyc":             "New York",
	"newyork":         "New York",
	"newyorkcity":     "New York",
	"sf":              "San Francisco",
	"sanfran":         "San Francisco",
	"sanfrancisco":    "San Francisco",
	"la":              "Los Angeles",
	"losangeles":      "Los Angeles",
	"mexicocity":      "Mexico City",
	"riodejaneiro":    "Rio de Janeiro",
	"hongkong":        "Hong Kong",
	"kualalumpur":     "Kuala Lumpur",
	"newdelhi":        "New Delhi",
	"saintpetersburg": "Saint Petersburg",
	"stpetersburg":    "Saint Petersburg",
	"frankfurtammain": "Frankfurt",
	"frankfurt":       "Frankfurt",
}

// CanonicalCountry standardizes a free-text country value. Lookup is
// case-insensitive; unmapped values fall back to the title-cased original.
// Empty input stays empty, it never becomes a literal "Nan".
func CanonicalCountry(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := countryAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return titleCase(trimmed)
}

// CanonicalCity standardizes a free-text city value. Lookup keys drop case
// and every whitespace rune; unmapped values fall back to the title-cased
// original.
func CanonicalCity(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	key := strings.ToLower(strings.Join(strings.Fields(trimmed), ""))
	if canonical, ok := cityAliases[key]; ok {
		return canonical
	}
	return titleCase(trimmed)
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
