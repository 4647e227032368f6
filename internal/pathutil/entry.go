package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/javi11/pkgexpand/internal/errors"
)

// isSeparator reports whether c separates path segments. Archive entries
// always use '/', but the platform separator is accepted too.
func isSeparator(c byte) bool {
	return c == '/' || c == filepath.Separator
}

// splitSegments splits a pathname on separators, dropping empty segments
// produced by doubled or trailing separators.
func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
}

// Sanitize validates a raw entry pathname and returns it as a safe relative
// path. A single leading "./" is stripped. Empty names, absolute paths and
// any ".." segment are rejected; this is the only check standing between an
// archive entry and a write outside the output tree, so it runs before any
// directory creation or filtering.
func Sanitize(raw string) (string, error) {
	p := strings.TrimPrefix(raw, "./")
	if p == "" {
		return "", errors.NewPathSecurityError(fmt.Sprintf("entry has empty pathname %q", raw))
	}
	if isSeparator(p[0]) {
		return "", errors.NewPathSecurityError(fmt.Sprintf("entry has absolute pathname %q", raw))
	}
	for _, seg := range splitSegments(p) {
		if seg == ".." {
			return "", errors.NewPathSecurityError(fmt.Sprintf("entry pathname %q contains a %q segment", raw, ".."))
		}
	}
	return p, nil
}

// StripComponents removes n leading path segments from p. It returns
// ok=false when p has n or fewer segments, signaling the caller to skip the
// entry rather than extract it at the wrong depth. n=0 returns p unchanged.
func StripComponents(p string, n int) (string, bool) {
	if n == 0 {
		return p, true
	}
	segs := splitSegments(p)
	if len(segs) <= n {
		return "", false
	}
	return strings.Join(segs[n:], "/"), true
}

// SegmentCount returns the number of path segments in p.
func SegmentCount(p string) int {
	return len(splitSegments(p))
}
