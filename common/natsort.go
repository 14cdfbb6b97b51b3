package common

import (
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// NaturalLess reports whether a sorts before b using a "human" ordering: runs of digits are compared
// as integers and everything else is compared case-insensitively, so "plot2" sorts before "plot10".
// Names which only differ by case fall back to a plain byte comparison so the ordering is total.
func NaturalLess(a string, b string) bool {

	lower_a := strings.ToLower(a)
	lower_b := strings.ToLower(b)

	if lower_a != lower_b {
		return natural.Less(lower_a, lower_b)
	}

	return a < b
}

// NaturalSort sorts paths in place using NaturalLess.
func NaturalSort(paths []string) {

	sort.SliceStable(paths, func(i, j int) bool {
		return NaturalLess(paths[i], paths[j])
	})
}
