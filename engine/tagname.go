package engine

import (
	"fmt"
	"time"
)

// tagLayout is spec §6's snapshot tag name format: "YYYY-MM-DDTHH:MM:SS" in
// UTC, second resolution.
const tagLayout = "2006-01-02T15:04:05"

// generateTagName builds a snapshot tag for `at`, uniquified with a "-NN"
// suffix (NN = smallest integer >= 1) if the base name is already taken,
// per spec §9(b)'s Open Question resolution.
func generateTagName(at time.Time, taken func(name string) bool) string {
	base := at.UTC().Format(tagLayout)
	if !taken(base) {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%02d", base, n)
		if !taken(candidate) {
			return candidate
		}
	}
}
