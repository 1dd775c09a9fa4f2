// Package normalize turns raw banner-interaction records into the fixed
// staging-row shape the warehouse loads. All transforms are pure; a field
// that cannot be interpreted degrades to null for that row, it never fails
// the batch.
package normalize

import "strconv"

// Row is one normalized staging row. The column contract is fixed: every row
// carries the full set regardless of which source fields were present. Nil
// means null in the warehouse.
type Row struct {
	ID                 *int64
	URL                *string
	ElementID          *string
	EventName          *string
	Sentiment          *float64
	UserNaturalID      *string
	Entities           *string
	IP                 *string
	Country            *string
	City               *string
	IssueTimestampText *string
	BannerName         *string
	BannerSize         *string
	UnitName           string
	UnitValue          *float64
	CategoryL1         *string
	CategoryL2         *string
	CategoryL3         *string
}

// UnitName derives the measurement unit from the event name.
func UnitName(eventName string) string {
	switch eventName {
	case "dwell":
		return "seconds"
	case "scroll":
		return "pixels"
	default:
		return "count"
	}
}

// Batch normalizes a raw batch into staging rows, one per record, in order.
func Batch(records []Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, normalizeRecord(canonicalKeys(rec)))
	}
	return rows
}

func normalizeRecord(rec Record) Row {
	row := Row{
		ID:                 parseInt(rec[fieldID]),
		URL:                text(rec[fieldURL]),
		ElementID:          text(rec[fieldElementID]),
		EventName:          text(rec[fieldEventName]),
		Sentiment:          parseFloat(rec[fieldSentiment]),
		UserNaturalID:      text(rec[fieldUserID]),
		Entities:           text(rec[fieldEntities]),
		IP:                 text(rec[fieldIP]),
		Country:            text(CanonicalCountry(rec[fieldCountry])),
		City:               text(CanonicalCity(rec[fieldCity])),
		IssueTimestampText: text(rec[fieldDate]),
		UnitName:           UnitName(rec[fieldEventName]),
		UnitValue:          parseFloat(rec[fieldAmount]),
	}

	if banner := rec[fieldBannerID]; banner != "" {
		name, size := SplitBanner(banner)
		row.BannerName = text(name)
		row.BannerSize = text(size)
	}

	l1, l2, l3 := SplitCategory(rec[fieldCategory])
	row.CategoryL1 = text(l1)
	row.CategoryL2 = text(l2)
	row.CategoryL3 = text(l3)

	return row
}

// text maps the empty string to null; sources deliver absent fields as "".
func text(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
