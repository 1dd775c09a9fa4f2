package normalize

import "strings"

// Record is one raw event as delivered by a source: named fields with
// inconsistent presence, everything a string. Field names are matched after
// CanonicalColumn has been applied to them.
type Record map[string]string

// Source field names recognized by the normalizer.
const (
	fieldID        = "ID"
	fieldURL       = "URL"
	fieldElementID = "Element_ID"
	fieldEventName = "Event_Name"
	fieldSentiment = "Sentiment"
	fieldUserID    = "Unity_User_ID"
	fieldEntities  = "Entities"
	fieldIP        = "IP"
	fieldCountry   = "Country"
	fieldCity      = "City"
	fieldDate      = "Date"
	fieldBannerID  = "Banner_ID"
	fieldCategory  = "Category"
	fieldAmount    = "Amount"
)

// CanonicalColumn cleans a source column name: surrounding whitespace is
// dropped and interior spaces become underscores.
func CanonicalColumn(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

func canonicalKeys(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[CanonicalColumn(k)] = v
	}
	return out
}
