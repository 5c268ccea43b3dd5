// Package treepath implements the dotted-path grammar shared by the
// tree and store packages: splitting a path into
// segments, testing segment-wise containment, and joining segments back
// into a path string. Paths are literal, dot-separated segments; there
// is no wildcard or pattern language.
package treepath

import "strings"

// Split returns the segment list for path. The empty string yields an
// empty (non-nil) slice, denoting the root.
func Split(path string) []string {
	if path == "" {
		return []string{}
	}
	return strings.Split(path, ".")
}

// Join is the inverse of Split.
func Join(segments []string) string {
	return strings.Join(segments, ".")
}

// IsBeneath reports whether a is b, or a extends b by one or more
// segments. It is reflexive, transitive, and segment-wise: "a.b" is
// beneath "a", but "ab" is not beneath "a". Everything is beneath the
// empty path, since it denotes the root.
func IsBeneath(a, b string) bool {
	if b == "" {
		return true
	}
	if a == b {
		return true
	}
	bSegs := Split(b)
	aSegs := Split(a)
	if len(aSegs) <= len(bSegs) {
		return false
	}
	for i, seg := range bSegs {
		if aSegs[i] != seg {
			return false
		}
	}
	return true
}

// CommonMount returns the longest entry of namespaces that is either
// equal to path or a segment-wise prefix of it (followed by a "."
// boundary), along with the residual path beneath that mount. It
// reports false if no namespace qualifies. The match must be
// segment-wise: a namespace "a" matches path "a.b" but never "ab".
func CommonMount(path string, namespaces []string) (namespace, residual string, ok bool) {
	best := ""
	bestLen := -1
	for _, ns := range namespaces {
		if ns == path {
			if len(ns) > bestLen {
				best, bestLen = ns, len(ns)
			}
			continue
		}
		if IsBeneath(path, ns) && len(ns) > bestLen {
			best, bestLen = ns, len(ns)
		}
	}
	if bestLen == -1 {
		return "", path, false
	}
	if best == path {
		return best, "", true
	}
	residual = strings.TrimPrefix(path, best+".")
	return best, residual, true
}
