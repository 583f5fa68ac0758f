// Package natsort orders strings the way humans expect: runs of digits are
// compared by numeric value, everything else lexically.
//
//	ckpt_1, ckpt_2, ckpt_9, ckpt_10
package natsort

import (
	"sort"
	"strings"
)

// Strings sorts s in place in natural order. The sort is stable.
func Strings(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return Less(s[i], s[j]) })
}

// Less reports whether a sorts before b in natural order.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Compare returns -1, 0 or +1 comparing a and b in natural order.
//
// Both strings are split into alternating non-digit/digit chunks. Chunks at
// the same position always have the same kind, so digit chunks are compared
// by value and the rest byte-wise. A string that is a chunk prefix of the
// other sorts first.
func Compare(a, b string) int {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		var c int
		if i%2 == 1 {
			c = compareDigits(ca[i], cb[i])
		} else {
			c = strings.Compare(ca[i], cb[i])
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return 0
}

// chunks splits s into [text, digits, text, digits, ..., text]. Even indices
// hold non-digit runs (possibly empty), odd indices digit runs.
func chunks(s string) []string {
	out := make([]string, 0, 4)
	start := 0
	inDigits := false
	for i := 0; i < len(s); i++ {
		d := isDigit(s[i])
		if d != inDigits {
			out = append(out, s[start:i])
			start = i
			inDigits = d
		}
	}
	out = append(out, s[start:])
	if inDigits {
		out = append(out, "")
	}
	return out
}

// compareDigits compares two ASCII digit runs by numeric value without
// converting them, so arbitrarily long runs do not overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
