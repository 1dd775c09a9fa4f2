package normalize

import "regexp"

// Banner identifiers optionally end in an underscore-separated pixel size,
// e.g. "sidebar_ad_300x250".
var bannerSizeRe = regexp.MustCompile(`_(\d+x\d+)$`)

// SplitBanner decomposes a composite banner identifier into its display name
// and pixel size. Identifiers without a trailing size keep their full text as
// the name and return "" for the size.
func SplitBanner(id string) (name, size string) {
	m := bannerSizeRe.FindStringSubmatchIndex(id)
	if m == nil {
		return id, ""
	}
	return id[:m[2]-1], id[m[2]:m[3]]
}
