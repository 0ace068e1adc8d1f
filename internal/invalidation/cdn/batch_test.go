package cdn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeUnionsPathsInFirstSeenOrder(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pending := Batch{CallerReference: "p", Paths: []string{"/a", "/b"}, Distribution: "E1"}
	next := Batch{CallerReference: "n", Paths: []string{"/b", "/c"}, Distribution: "E1"}

	merged := Merge(pending, next, 3000, now)

	require.Equal(t, []string{"/a", "/b", "/c"}, merged.Paths)
	require.Equal(t, "E1", merged.Distribution)
	require.NotEqual(t, "p", merged.CallerReference)
	require.NotEqual(t, "n", merged.CallerReference)
	require.Equal(t, []string{"/a", "/b"}, pending.Paths, "inputs must not be mutated")
}

func TestMergeKeepsEveryOriginalPath(t *testing.T) {
	pending := Batch{Paths: []string{"/x", "/y", "/z"}}
	next := Batch{Paths: []string{"/z", "/w", "/x"}}

	merged := Merge(pending, next, 0, time.Now())

	for _, path := range append(pending.Paths, next.Paths...) {
		require.Contains(t, merged.Paths, path)
	}
	require.Len(t, merged.Paths, 4)
}

func TestMergeCollapsesToWildcard(t *testing.T) {
	t.Run("wildcard on either side", func(t *testing.T) {
		merged := Merge(Batch{Paths: []string{WildcardPath}}, Batch{Paths: []string{"/a"}}, 3000, time.Now())
		require.True(t, merged.IsWildcard())
	})
	t.Run("beyond max paths", func(t *testing.T) {
		merged := Merge(Batch{Paths: []string{"/a", "/b"}}, Batch{Paths: []string{"/c"}}, 2, time.Now())
		require.True(t, merged.IsWildcard())
	})
	t.Run("at max paths", func(t *testing.T) {
		merged := Merge(Batch{Paths: []string{"/a"}}, Batch{Paths: []string{"/b"}}, 2, time.Now())
		require.Equal(t, []string{"/a", "/b"}, merged.Paths)
	})
}

func TestIsWildcard(t *testing.T) {
	require.True(t, Wildcard("E1", time.Now()).IsWildcard())
	require.False(t, Batch{Paths: []string{"/*", "/a"}}.IsWildcard())
	require.False(t, Batch{Paths: []string{"/a"}}.IsWildcard())
	require.False(t, Batch{}.IsWildcard())
}

func TestNewCallerReferenceIsUnique(t *testing.T) {
	now := time.Unix(1700000000, 0)
	first := NewCallerReference("post-42", now)
	second := NewCallerReference("post-42", now)
	require.NotEqual(t, first, second)
	require.Contains(t, first, "post-42-1700000000000000000-")
	require.Contains(t, NewCallerReference(" ", now), "batch-")
}

func TestUnionPathsSkipsEmpty(t *testing.T) {
	require.Equal(t, []string{"/a", "/b"}, UnionPaths([]string{"", "/a"}, []string{"/a", "/b", ""}))
	require.Nil(t, UnionPaths())
}
