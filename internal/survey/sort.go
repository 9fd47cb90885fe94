package survey

import (
	"strconv"
	"strings"
	"unicode"
)

// NaturalLess orders labels so that numeric prefixes compare as numbers:
// "2" < "10 (Very Satisfied)" and "9" < "10". Labels without a numeric prefix
// compare digit runs by value, so "wave-2" < "wave-10".
func NaturalLess(a, b string) bool {
	na, ra, okA := leadingNumber(a)
	nb, rb, okB := leadingNumber(b)
	switch {
	case okA && okB:
		if na != nb {
			return na < nb
		}
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	}
	return digitRunLess(a, b)
}

func digitRunLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		if da && db {
			ra, rest1 := digitRun(a)
			rb, rest2 := digitRun(b)
			if ta, tb := strings.TrimLeft(ra, "0"), strings.TrimLeft(rb, "0"); ta != tb {
				if len(ta) != len(tb) {
					return len(ta) < len(tb)
				}
				return ta < tb
			}
			if ra != rb {
				return len(ra) < len(rb)
			}
			a, b = rest1, rest2
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digitRun(s string) (string, string) {
	end := 0
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	return s[:end], s[end:]
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func leadingNumber(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (unicode.IsDigit(rune(s[end])) || (s[end] == '.' && end > 0)) {
		end++
	}
	if end == 0 {
		return 0, s, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, s, false
	}
	return n, s[end:], true
}
