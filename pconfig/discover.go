package pconfig

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DiscoverFiles expands a doublestar glob pattern (supporting `**`)
// against the local filesystem, returning matches in a deterministic
// (lexical) order. It lets a caller gather a context-section catalog,
// pattern file, or tone map split across several files under a
// directory; nothing else in this module calls it, and the loaders it
// could feed each take a single path — grounded on the teacher's
// ast-indexer path-globbing use of the same library.
func DiscoverFiles(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("pconfig: glob %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
