package docstore

import (
	"fmt"
	"strings"
)

// Path is a slash separated document or collection path such as
// "shops/S1/orders/O1". Documents have an even number of segments,
// collections an odd number.
type Path string

// Join builds a path from segments, rejecting empty segments and segments
// containing a slash.
func Join(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("empty path")
	}
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			return "", fmt.Errorf("invalid path segment %q", s)
		}
	}
	return Path(strings.Join(segments, "/")), nil
}

// MustJoin is Join for constant segments; it panics on invalid input.
func MustJoin(segments ...string) Path {
	p, err := Join(segments...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string { return string(p) }

func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

func (p Path) IsDocument() bool {
	n := len(p.Segments())
	return n > 0 && n%2 == 0
}

// ID is the last segment of the path.
func (p Path) ID() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the collection that holds a document, or the document that
// holds a sub-collection.
func (p Path) Parent() Path {
	i := strings.LastIndex(string(p), "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Child appends segments to p.
func (p Path) Child(segments ...string) (Path, error) {
	return Join(append(p.Segments(), segments...)...)
}

// MatchCollection reports whether collection matches pattern, where a "*"
// pattern segment matches exactly one segment.
func MatchCollection(pattern, collection Path) bool {
	ps, cs := pattern.Segments(), collection.Segments()
	if len(ps) != len(cs) {
		return false
	}
	for i := range ps {
		if ps[i] != "*" && ps[i] != cs[i] {
			return false
		}
	}
	return true
}
