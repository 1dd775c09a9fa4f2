package normalize

import "strings"

// SplitCategory decomposes a slash-delimited category path into its first
// three levels. Outer slashes are stripped before splitting, so
// "/News/World/Europe/" and "News/World/Europe" are the same path. Levels
// beyond the third are dropped; missing levels come back as "".
func SplitCategory(path string) (l1, l2, l3 string) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", ""
	}
	parts := strings.Split(trimmed, "/")
	l1 = parts[0]
	if len(parts) > 1 {
		l2 = parts[1]
	}
	if len(parts) > 2 {
		l3 = parts[2]
	}
	return l1, l2, l3
}
