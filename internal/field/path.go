package field

import "strings"

// Path separators accepted in external input. They are interchangeable.
const (
	pathSeparator  = "."
	topicSeparator = "/"
)

// Canonical returns the dotted form of a field path: separators unified to
// '.', surrounding whitespace and leading/trailing separators trimmed.
func Canonical(path string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, topicSeparator, pathSeparator)
	return strings.Trim(p, pathSeparator)
}

// Segments splits a path into its canonical segment names.
// An empty path yields no segments.
func Segments(path string) []string {
	p := Canonical(path)
	if p == "" {
		return nil
	}
	return strings.Split(p, pathSeparator)
}

// TopicPath converts a dotted path to its topic form.
func TopicPath(path string) string {
	return strings.ReplaceAll(Canonical(path), pathSeparator, topicSeparator)
}

// Filter is an immutable set of canonical field paths.
//
// A path passes the filter when it equals a member or lies under one.
// The zero Filter is empty and passes everything.
type Filter struct {
	paths []string
}

// NewFilter builds a filter from raw entries. Each entry may hold several
// comma-separated paths; empty entries are dropped and duplicates collapsed.
func NewFilter(entries ...string) Filter {
	seen := make(map[string]bool)
	var paths []string
	for _, raw := range entries {
		for _, chunk := range strings.Split(raw, ",") {
			p := Canonical(chunk)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return Filter{paths: paths}
}

// Empty reports whether no paths are configured.
func (f Filter) Empty() bool {
	return len(f.paths) == 0
}

// Paths returns the configured paths in configuration order.
func (f Filter) Paths() []string {
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	return out
}

// Allows reports whether path is published under this filter.
func (f Filter) Allows(path string) bool {
	if f.Empty() {
		return true
	}
	for _, p := range f.paths {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// Unmatched returns the configured paths that match none of the given paths.
func (f Filter) Unmatched(paths []string) []string {
	var out []string
	for _, p := range f.paths {
		found := false
		for _, candidate := range paths {
			if matchesPrefix(candidate, p) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, p)
		}
	}
	return out
}

func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+pathSeparator)
}
