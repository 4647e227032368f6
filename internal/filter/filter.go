// Package filter implements include/exclude glob filtering over logical
// archive paths. Patterns are compiled once at startup and evaluated against
// root-relative paths, so a pattern given on the command line applies the
// same way inside nested containers as at the archive root.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/javi11/pkgexpand/internal/errors"
)

// PatternSet holds the compiled include and exclude globs for one run.
// It is immutable after construction.
type PatternSet struct {
	includes []string
	excludes []string
}

// NewPatternSet validates the given globs and builds a PatternSet.
// Invalid patterns are a usage error.
func NewPatternSet(includes, excludes []string) (*PatternSet, error) {
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.NewUsageError(fmt.Sprintf("invalid pattern %q", p))
		}
	}
	return &PatternSet{
		includes: includes,
		excludes: excludes,
	}, nil
}

// Empty reports whether the set has no patterns at all.
func (ps *PatternSet) Empty() bool {
	return len(ps.includes) == 0 && len(ps.excludes) == 0
}

// ShouldExtract reports whether the entry at logicalPath should be
// materialized. logicalPath uses '/' separators and is relative to the
// outermost archive root.
//
// With no include patterns every path is accepted unless excluded. With
// include patterns a path is accepted when it matches an include, lies on
// the way down to an include (ancestor), or sits below an included path
// (descendant). Excludes always win.
func (ps *PatternSet) ShouldExtract(logicalPath string) bool {
	p := strings.Trim(logicalPath, "/")
	if p == "" {
		return false
	}

	if ps.matchesAny(ps.excludes, p) {
		return false
	}

	if len(ps.includes) == 0 {
		return true
	}

	for _, pat := range ps.includes {
		if match(pat, p) {
			return true
		}
		// Ancestor of an include: keep descending so the included path
		// stays reachable (accept "Scripts" when "Scripts/postinstall"
		// is included).
		if isPatternDescendant(pat, p) {
			return true
		}
		// Descendant of an included directory.
		if matchesAncestor(pat, p) {
			return true
		}
	}
	return false
}

// matchesAny reports whether any pattern matches p itself or one of p's
// ancestors; an excluded directory takes its whole subtree with it.
func (ps *PatternSet) matchesAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if match(pat, p) || matchesAncestor(pat, p) {
			return true
		}
	}
	return false
}

// matchesAncestor reports whether pat matches a strict ancestor of p.
func matchesAncestor(pat, p string) bool {
	for {
		i := strings.LastIndexByte(p, '/')
		if i < 0 {
			return false
		}
		p = p[:i]
		if match(pat, p) {
			return true
		}
	}
}

// isPatternDescendant reports whether the pattern names a path strictly
// below p, comparing the pattern's leading literal segments. A wildcard
// segment is treated as matching anything at that depth.
func isPatternDescendant(pat, p string) bool {
	patSegs := strings.Split(strings.Trim(pat, "/"), "/")
	pSegs := strings.Split(p, "/")
	if len(pSegs) >= len(patSegs) {
		return false
	}
	for i, seg := range pSegs {
		ok, err := doublestar.Match(patSegs[i], seg)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func match(pat, p string) bool {
	ok, err := doublestar.Match(strings.Trim(pat, "/"), p)
	return err == nil && ok
}
