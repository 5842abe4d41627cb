package search_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/internal/search"
)

func TestBuildQueryNormalizes(t *testing.T) {
	q, err := search.BuildQuery([]string{" Beach", "sunset ", "BEACH", ""}, "  golden\t hour  ", "", nil, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"beach", "sunset"}, q.Tags)
	assert.Equal(t, "golden hour", q.Caption)
	assert.Equal(t, []string{"golden", "hour"}, q.Terms)
	assert.Equal(t, search.MatchAny, q.Match)
	assert.Equal(t, 20, q.Limit)
	assert.Equal(t, search.ShapeCombined, q.Shape)
	assert.Equal(t, "combined", q.Category())
	assert.False(t, q.Empty)
}

func TestBuildQueryShapes(t *testing.T) {
	cases := []struct {
		tags    []string
		caption string
		want    search.Shape
	}{
		{nil, "", search.ShapeUnfiltered},
		{[]string{"a"}, "", search.ShapeTagsOnly},
		{nil, "dog", search.ShapeCaptionOnly},
		{[]string{"a"}, "dog", search.ShapeCombined},
		{[]string{" "}, "   ", search.ShapeUnfiltered},
	}

	for _, tc := range cases {
		q, err := search.BuildQuery(tc.tags, tc.caption, "any", nil, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.want, q.Shape, "tags=%v caption=%q", tc.tags, tc.caption)
	}
}

func TestBuildQueryEmptyCaption(t *testing.T) {
	q, err := search.BuildQuery(nil, "!!! ...", "any", nil, 10, nil)
	require.NoError(t, err)
	assert.True(t, q.Empty)

	// any 模式下仍可由标签命中
	q, err = search.BuildQuery([]string{"cat"}, "???", "any", nil, 10, nil)
	require.NoError(t, err)
	assert.False(t, q.Empty)
	assert.Equal(t, search.ShapeTagsOnly, q.Shape)

	q, err = search.BuildQuery([]string{"cat"}, "???", "all", nil, 10, nil)
	require.NoError(t, err)
	assert.True(t, q.Empty)
}

func TestBuildQueryErrors(t *testing.T) {
	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = string(rune('a' + i))
	}

	_, err := search.BuildQuery(eleven, "", "any", nil, 10, nil)
	require.ErrorIs(t, err, search.ErrTooManyFilters)

	// 去重后不超过上限
	dup := append(eleven[:10:10], "A")
	_, err = search.BuildQuery(dup, "", "any", nil, 10, nil)
	require.NoError(t, err)

	_, err = search.BuildQuery(nil, "", "some", nil, 10, nil)
	require.ErrorIs(t, err, search.ErrInvalidMatch)

	for _, limit := range []int{-1, 51} {
		_, err = search.BuildQuery(nil, "", "any", nil, limit, nil)
		require.ErrorIs(t, err, search.ErrInvalidLimit)
	}

	_, err = search.BuildQuery(nil, strings.Repeat("x", 300), "any", nil, 10, nil)
	require.ErrorIs(t, err, search.ErrCaptionTooLong)

	zero := int64(0)
	_, err = search.BuildQuery(nil, "", "any", nil, 10, &zero)
	require.ErrorIs(t, err, search.ErrInvalidScope)
}

func TestSearchKeyTagOrderIndependent(t *testing.T) {
	a, err := search.BuildQuery([]string{"a", "b"}, "", "any", nil, 20, nil)
	require.NoError(t, err)

	b, err := search.BuildQuery([]string{"B", " a"}, "", "any", nil, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, search.SearchKey(1, a), search.SearchKey(1, b))
	assert.True(t, strings.HasPrefix(search.SearchKey(1, a), "user:1:search:tags:"))
	assert.True(t, strings.HasSuffix(search.SearchKey(1, a), ":any"))
}

func TestSearchKeyDistinguishes(t *testing.T) {
	base, _ := search.BuildQuery([]string{"dog"}, "", "any", nil, 20, nil)
	caption, _ := search.BuildQuery(nil, "dog", "any", nil, 20, nil)
	all, _ := search.BuildQuery([]string{"dog"}, "", "all", nil, 20, nil)
	album := int64(3)
	scoped, _ := search.BuildQuery([]string{"dog"}, "", "any", nil, 20, &album)

	keys := map[string]struct{}{
		search.SearchKey(1, base):    {},
		search.SearchKey(1, caption): {},
		search.SearchKey(1, all):     {},
		search.SearchKey(1, scoped):  {},
		search.SearchKey(2, base):    {},
	}
	assert.Len(t, keys, 5)

	spaced, _ := search.BuildQuery(nil, "  DOG ", "any", nil, 20, nil)
	assert.Equal(t, search.SearchKey(1, caption), search.SearchKey(1, spaced))
	assert.Equal(t, search.SearchKey(1, base)+":complete", search.CompleteKey(search.SearchKey(1, base)))
}
