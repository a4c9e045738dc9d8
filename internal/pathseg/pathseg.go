// Package pathseg splits virtual filesystem paths into the segment lists
// the Catalog and Engine walk against, the same normalization the source
// service applied ahead of every tree lookup.
package pathseg

import "strings"

// Split normalizes p (forward-slash separated, as on a remote) and splits
// it into non-empty, non-"." segments. The root path splits to nil.
func Split(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")

	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// Join re-renders segments into a canonical absolute path.
func Join(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
