package cdn

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WildcardPath matches every cached object of a distribution.
const WildcardPath = "/*"

// Batch is one invalidation request: the paths to purge, the distribution they
// belong to and the idempotency key the CDN API deduplicates on. A Batch is
// never mutated once built; Merge returns a new value.
type Batch struct {
	CallerReference string   `json:"callerReference"`
	Paths           []string `json:"paths"`
	Distribution    string   `json:"distribution"`
}

// Wildcard builds the "invalidate everything" batch.
func Wildcard(distribution string, now time.Time) Batch {
	return Batch{
		CallerReference: NewCallerReference("all", now),
		Paths:           []string{WildcardPath},
		Distribution:    distribution,
	}
}

// IsWildcard reports whether the batch is exactly the "invalidate everything" request.
func (b Batch) IsWildcard() bool {
	return len(b.Paths) == 1 && b.Paths[0] == WildcardPath
}

// Clone returns a deep copy.
func (b Batch) Clone() Batch {
	out := b
	out.Paths = append([]string(nil), b.Paths...)
	return out
}

// Merge folds next into b: paths are unioned preserving first-seen order and the
// caller reference is regenerated. A union that contains the wildcard, or grows
// beyond maxPaths, collapses to the wildcard.
func Merge(b, next Batch, maxPaths int, now time.Time) Batch {
	merged := Batch{
		CallerReference: NewCallerReference("merged", now),
		Distribution:    b.Distribution,
	}
	if merged.Distribution == "" {
		merged.Distribution = next.Distribution
	}
	merged.Paths = UnionPaths(b.Paths, next.Paths)
	for _, path := range merged.Paths {
		if path == WildcardPath {
			merged.Paths = []string{WildcardPath}
			return merged
		}
	}
	if maxPaths > 0 && len(merged.Paths) > maxPaths {
		merged.Paths = []string{WildcardPath}
	}
	return merged
}

// UnionPaths returns the deduplicated union of the given path lists in first-seen order.
func UnionPaths(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, path := range list {
			if path == "" {
				continue
			}
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}
	return out
}

// NewCallerReference derives a unique idempotency key from a prefix and the wall clock.
func NewCallerReference(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "batch"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixNano(), uuid.NewString()[:8])
}
