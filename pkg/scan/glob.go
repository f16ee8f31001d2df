// Artifact keys are path-like strings (note paths, query strings); the diagnostic port checks them
// against glob patterns for its KEYS command. The following module implements glob matching over
// entry streams.

package scan

import (
	"iter"
	"slices"

	"v.io/v23/glob"

	"github.com/inkfold/bcache/pkg/utils"
)

// MatchGlob filters the `pairs` stream down to the entries whose key matches the given `pattern`.
func MatchGlob[V any](pattern string, pairs iter.Seq[utils.Pair[string, V]]) iter.Seq[utils.Pair[string, V]] {
	// Parse the glob pattern.
	parsedPattern, err := glob.Parse(pattern)
	if err != nil { // If pattern is invalid, return empty sequence.
		return func(yield func(utils.Pair[string, V]) bool) {}
	}
	return func(yield func(utils.Pair[string, V]) bool) {
		for pair := range pairs {
			if parsedPattern.Head().Match(pair.Key) {
				if !yield(pair) {
					return
				}
			}
		}
	}
}

// MatchingKeys collects the keys of `pairs` that match the given `pattern`.
func MatchingKeys[V any](pattern string, pairs []utils.Pair[string, V]) []string {
	keys := make([]string, 0, len(pairs))
	for pair := range MatchGlob(pattern, slices.Values(pairs)) {
		keys = append(keys, pair.Key)
	}
	return keys
}
