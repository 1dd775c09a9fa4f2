// Package fingerprint derives the surrogate keys used across the star schema.
//
// Keys are FarmHash Fingerprint64 values reinterpreted as signed 64-bit
// integers, which is what the warehouse already holds for every dimension row
// ever inserted. The function is frozen: changing it would orphan all
// existing dimension rows.
package fingerprint

import (
	"strings"

	farm "github.com/dgryski/go-farm"
)

// Key fingerprints a natural key. Composite keys concatenate their components
// in definition order with no separator; missing components must be passed as
// empty strings so that a key with an absent component and one with an empty
// component collapse to the same entry.
func Key(parts ...string) int64 {
	if len(parts) == 1 {
		return int64(farm.Fingerprint64([]byte(parts[0])))
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p)
	}
	return int64(farm.Fingerprint64([]byte(b.String())))
}
