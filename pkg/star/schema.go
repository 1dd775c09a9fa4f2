// Package star owns the star schema: the staging table fed by each run, the
// append-only dimension tables keyed by fingerprinted surrogate keys, and the
// fact table. It implements the merge protocol that promotes staged rows into
// dimensions and facts without ever creating duplicates.
package star

import (
	"fmt"
	"strings"
)

const (
	StagingTable = "staging_raw_events"
	FactTable    = "fact_events"
	TimeTable    = "dim_time"
)

// Column definitions are "name:type" pairs, in warehouse column order.
var stagingColumns = []string{
	"id:BIGINT",
	"url:VARCHAR",
	"element_id:VARCHAR",
	"event_name:VARCHAR",
	"sentiment:DOUBLE",
	"user_natural_id:VARCHAR",
	"entities:VARCHAR",
	"ip:VARCHAR",
	"country:VARCHAR",
	"city:VARCHAR",
	"issue_timestamp_text:VARCHAR",
	"banner_name:VARCHAR",
	"banner_size:VARCHAR",
	"unit_name:VARCHAR",
	"unit_value:DOUBLE",
	"category_l1:VARCHAR",
	"category_l2:VARCHAR",
	"category_l3:VARCHAR",
}

var factColumns = []string{
	"event_id:BIGINT",
	"event_timestamp:TIMESTAMP",
	"time_fk:BIGINT",
	"user_fk:BIGINT",
	"content_fk:BIGINT",
	"banner_fk:BIGINT",
	"location_fk:BIGINT",
	"event_name:VARCHAR",
	"unit_name:VARCHAR",
	"unit_value:DOUBLE",
	"element_id:VARCHAR",
}

var timeColumns = []string{
	"time_sk:BIGINT",
	"date:DATE",
	"year:INTEGER",
	"quarter:INTEGER",
	"month:INTEGER",
	"day:INTEGER",
	"day_of_week:INTEGER",
}

// Dimension describes one append-only dimension table. NaturalKeys are the
// staging columns identifying an entity; the first component must be non-null
// for a tuple to qualify, later components follow the null-as-empty-string
// equality rule. Attributes are copied from one arbitrary staging row per
// tuple at insert time.
type Dimension struct {
	Table        string
	SurrogateKey string
	NaturalKeys  []string
	Attributes   []string
}

// Dimensions in merge order. The fact step depends on all of them; they do
// not depend on each other.
var Dimensions = []Dimension{
	{
		Table:        "dim_user",
		SurrogateKey: "user_sk",
		NaturalKeys:  []string{"user_natural_id:VARCHAR"},
	},
	{
		Table:        "dim_location",
		SurrogateKey: "location_sk",
		NaturalKeys:  []string{"ip:VARCHAR"},
		Attributes:   []string{"country:VARCHAR", "city:VARCHAR"},
	},
	{
		Table:        "dim_banner",
		SurrogateKey: "banner_sk",
		NaturalKeys:  []string{"banner_name:VARCHAR", "banner_size:VARCHAR"},
	},
	{
		Table:        "dim_content",
		SurrogateKey: "content_sk",
		NaturalKeys:  []string{"url:VARCHAR"},
		Attributes: []string{
			"sentiment:DOUBLE",
			"entities:VARCHAR",
			"category_l1:VARCHAR",
			"category_l2:VARCHAR",
			"category_l3:VARCHAR",
		},
	},
}

func columnName(def string) string {
	name, _, _ := strings.Cut(def, ":")
	return name
}

func columnType(def string) string {
	_, typ, ok := strings.Cut(def, ":")
	if !ok {
		return "VARCHAR"
	}
	return typ
}

func columnNames(defs []string) []string {
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = columnName(def)
	}
	return names
}

func createTableSQL(catalog, schema, table string, defs []string) string {
	cols := make([]string, len(defs))
	for i, def := range defs {
		cols[i] = columnName(def) + " " + columnType(def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s.%s (%s)", catalog, schema, table, strings.Join(cols, ", "))
}

func (d Dimension) createSQL(catalog, schema string) string {
	defs := make([]string, 0, 1+len(d.NaturalKeys)+len(d.Attributes))
	defs = append(defs, d.SurrogateKey+":BIGINT")
	defs = append(defs, d.NaturalKeys...)
	defs = append(defs, d.Attributes...)
	return createTableSQL(catalog, schema, d.Table, defs)
}

// columns returns the dimension's insert column list: surrogate key, natural
// keys, then attributes.
func (d Dimension) columns() []string {
	cols := make([]string, 0, 1+len(d.NaturalKeys)+len(d.Attributes))
	cols = append(cols, d.SurrogateKey)
	cols = append(cols, columnNames(d.NaturalKeys)...)
	cols = append(cols, columnNames(d.Attributes)...)
	return cols
}
