package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultExclusionGlobs is the fixed set of names every reconciler refuses
// to sync regardless of job configuration, grounded on the scanner
// package's global exclusion list for this same class of noise.
var defaultExclusionGlobs = []string{
	"~$*",
	"*.tmp",
	"*.temp",
	"*.swp",
	"*~",
	"desktop.ini",
	"Thumbs.db",
	"$RECYCLE.BIN",
	"System Volume Information",
}

// exclusionSet is a compiled set of glob-derived regexes matched against a
// bare file or directory name (not a full path) during tree descent.
type exclusionSet struct {
	patterns []*regexp.Regexp
}

func newExclusionSet(extra []*regexp.Regexp) *exclusionSet {
	set := &exclusionSet{}
	for _, g := range defaultExclusionGlobs {
		set.patterns = append(set.patterns, regexp.MustCompile(globToRegex(g)))
	}
	set.patterns = append(set.patterns, extra...)
	return set
}

// newExclusionSetFromGlobs compiles the fixed set plus job-specific globs.
func newExclusionSetFromGlobs(globs []string) (*exclusionSet, error) {
	set := newExclusionSet(nil)
	for _, g := range globs {
		re, err := regexp.Compile(globToRegex(g))
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", g, err)
		}
		set.patterns = append(set.patterns, re)
	}
	return set, nil
}

func (s *exclusionSet) matches(name string) bool {
	for _, p := range s.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// globToRegex converts a single-segment glob (no path separators expected)
// into an anchored regex, the same escaping/wildcard rules the scanner
// package's exclusion engine applies.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		ch := glob[i]
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")
	return b.String()
}
