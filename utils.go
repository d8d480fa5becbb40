package shiurhub

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	categoryRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	shiurIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidCategory reports whether s is usable as a category key. Category
// keys appear in object keys and index keys, so only word characters are
// allowed.
func IsValidCategory(s string) bool {
	return categoryRegex.MatchString(s)
}

// IsValidShiurID reports whether s is usable as a record id in a URL path.
func IsValidShiurID(s string) bool {
	return shiurIDRegex.MatchString(s)
}

// IsValidFileName validates an uploaded file name before it is embedded in
// an object key. It rejects:
//   - empty names, "." and ".."
//   - path separators (the object key supplies its own "/")
//   - null bytes, control characters, and invalid UTF-8
func IsValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	if strings.ContainsAny(name, `/\`) {
		return false
	}

	if !utf8.ValidString(name) {
		return false
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	return true
}
