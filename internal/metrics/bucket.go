package metrics

import (
	"strings"

	"github.com/google/uuid"
)

// IDPlaceholder replaces identifier segments in normalized paths
const IDPlaceholder = "{id}"

// NormalizePath strips the query string and replaces every path segment
// that parses as a UUID with IDPlaceholder, so requests that differ only
// by entity id share one bucket.
func NormalizePath(rawPath string) string {
	path := rawPath
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" || seg == IDPlaceholder {
			continue
		}
		if _, err := uuid.Parse(seg); err == nil {
			segments[i] = IDPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

// BucketKey builds the aggregation key "METHOD /normalized/path"
func BucketKey(method, rawPath string) string {
	return strings.ToUpper(method) + " " + NormalizePath(rawPath)
}
