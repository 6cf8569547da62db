package naming

import "strings"

// NameParts is a basename split around its digit-led suffix.
type NameParts struct {
	Head string
	Tail string // "" or starts with "-"; carries the variant marker last
}

// SplitName splits basename (no extension) into head and tail.
//
// The tail begins at the first "-" immediately followed by an ASCII digit.
// When basename contains "@", only the part before the first "@" is searched
// and the "@..." remainder is appended to the tail verbatim, so a density
// marker like "@2x" is never mistaken for a size suffix.
func SplitName(basename string) NameParts {
	before, variant := basename, ""
	if i := strings.IndexByte(basename, '@'); i >= 0 {
		before, variant = basename[:i], basename[i:]
	}
	head, tail := splitAtDashDigit(before)
	return NameParts{Head: head, Tail: tail + variant}
}

// splitAtDashDigit returns the shortest head for which the remainder matches
// "-<digit>...". Names containing a line terminator never split, matching
// the single-line pattern the naming scheme was defined with.
func splitAtDashDigit(name string) (string, string) {
	if strings.ContainsAny(name, "\n\r\u2028\u2029") {
		return name, ""
	}
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '-' && isDigit(name[i+1]) {
			return name[:i], name[i:]
		}
	}
	return name, ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
