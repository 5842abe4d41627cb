package search_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/search/searchtest"
	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

const owner = int64(7)

type fixture struct {
	store  *kv.MemoryKV
	source *searchtest.Source
	meta   *search.KVMetadataCache
	svc    *search.Service
}

func newFixture(t *testing.T, opts ...search.Option) *fixture {
	t.Helper()

	store := kv.NewMemory()
	source := searchtest.New()
	meta := search.NewMetadataCache(store, 0)
	svc := search.NewService(source, meta,
		search.NewTagResultCache(store, time.Minute, 0),
		search.NewRankedResultCache(store, time.Minute, 0),
		opts...,
	)

	return &fixture{store: store, source: source, meta: meta, svc: svc}
}

// seed 100 张照片，其中 40 张带 common 标签；caption 交替包含 dog / cat.
func (f *fixture) seed() {
	for id := int64(1); id <= 100; id++ {
		tags := []string{fmt.Sprintf("t%d", id%3)}
		if id%5 < 2 {
			tags = append(tags, "common")
		}

		caption := "a cat on a mat"
		if id%2 == 0 {
			caption = "a dog in the park"
		}

		if id%7 == 0 {
			caption += " with a cat"
		}

		f.source.Add(search.Photo{
			ID:         id,
			UserID:     owner,
			FilePath:   fmt.Sprintf("p/%d.jpg", id),
			Caption:    &caption,
			Tags:       tags,
			UploadedAt: t0.Add(time.Duration(id) * time.Minute),
		})
	}

	// 其他用户的照片不能出现
	other := "a dog"
	f.source.Add(search.Photo{ID: 1000, UserID: 8, Caption: &other, Tags: []string{"common"}, UploadedAt: t0})
}

func (f *fixture) query(t *testing.T, tags []string, caption, match string, limit int) search.Query {
	t.Helper()

	q, err := search.BuildQuery(tags, caption, match, nil, limit, nil)
	require.NoError(t, err)

	return q
}

type walk struct {
	ids       []int64
	pages     int
	fromCache []bool
}

func (f *fixture) walk(t *testing.T, q search.Query) walk {
	t.Helper()

	var w walk

	q.Cursor = nil

	for range 1000 {
		res, err := f.svc.Search(context.Background(), owner, q)
		require.NoError(t, err)

		w.pages++
		w.fromCache = append(w.fromCache, res.FromCache)

		for _, p := range res.Photos {
			w.ids = append(w.ids, p.ID)
		}

		if res.NextCursor == nil {
			return w
		}

		q.Cursor = res.NextCursor
	}

	t.Fatal("pagination did not terminate")

	return w
}

func assertUnique(t *testing.T, ids []int64) {
	t.Helper()

	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)

		seen[id] = struct{}{}
	}
}

func TestTagScenarioTwoPages(t *testing.T) {
	f := newFixture(t)
	f.seed()

	q := f.query(t, []string{"common"}, "", "any", 20)

	cold := f.walk(t, q)
	assert.Equal(t, 2, cold.pages)
	assert.Len(t, cold.ids, 40)
	assertUnique(t, cold.ids)
	assert.Equal(t, []bool{false, false}, cold.fromCache)

	// 顺序：uploaded_at DESC，测试数据中即 id DESC
	for i := 1; i < len(cold.ids); i++ {
		assert.Greater(t, cold.ids[i-1], cold.ids[i])
	}

	f.source.ResetCalls()

	warm := f.walk(t, q)
	assert.Equal(t, cold.ids, warm.ids)
	assert.Equal(t, []bool{true, true}, warm.fromCache)
	assert.Zero(t, f.source.Calls().FindByTags)
	assert.Equal(t, 2, f.source.Calls().FilterLive)
}

func photoIDs(photos []search.Photo) []int64 {
	out := make([]int64, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.ID)
	}

	return out
}

func TestRepeatedFirstPageServedFromCache(t *testing.T) {
	cases := []struct {
		name    string
		tags    []string
		caption string
		calls   func(searchtest.Calls) int
	}{
		{"tags", []string{"common"}, "", func(c searchtest.Calls) int { return c.FindByTags }},
		{"caption", nil, "cat", func(c searchtest.Calls) int { return c.SearchCaption }},
		{"combined", []string{"common"}, "dog", func(c searchtest.Calls) int { return c.SearchCombined }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed()

			q := f.query(t, tc.tags, tc.caption, "any", 5)

			first, err := f.svc.Search(context.Background(), owner, q)
			require.NoError(t, err)
			require.False(t, first.FromCache)
			require.NotNil(t, first.NextCursor)
			require.Equal(t, 1, tc.calls(f.source.Calls()))

			for range 2 {
				again, err := f.svc.Search(context.Background(), owner, q)
				require.NoError(t, err)
				assert.True(t, again.FromCache)
				assert.Equal(t, photoIDs(first.Photos), photoIDs(again.Photos))
				assert.Equal(t, first.NextCursor, again.NextCursor)
			}

			assert.Equal(t, 1, tc.calls(f.source.Calls()), "source queried again for a cached first page")
		})
	}
}

func TestWalkEquivalenceAcrossShapes(t *testing.T) {
	cases := []struct {
		name    string
		tags    []string
		caption string
		match   string
	}{
		{"unfiltered", nil, "", "any"},
		{"tags any", []string{"t1", "common"}, "", "any"},
		{"tags all", []string{"t1", "common"}, "", "all"},
		{"caption any", nil, "dog cat", "any"},
		{"caption all", nil, "dog cat", "all"},
		{"combined any", []string{"t2"}, "dog", "any"},
		{"combined all", []string{"common"}, "cat", "all"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cached := newFixture(t)
			cached.seed()

			cold := newFixture(t, search.WithResultCacheBypass(true))
			cold.seed()

			for _, limit := range []int{1, 7, 20, 50} {
				q := cached.query(t, tc.tags, tc.caption, tc.match, limit)

				want := cold.walk(t, q).ids
				first := cached.walk(t, q).ids
				second := cached.walk(t, q).ids

				assertUnique(t, want)
				assert.Equal(t, want, first, "limit=%d", limit)
				assert.Equal(t, want, second, "limit=%d", limit)
				assert.NotContains(t, want, int64(1000))
			}
		})
	}
}

func TestMixedCacheAndSourceWalk(t *testing.T) {
	cold := newFixture(t, search.WithResultCacheBypass(true))
	cold.seed()

	f := newFixture(t)
	f.seed()

	want := cold.walk(t, f.query(t, nil, "cat", "any", 4)).ids

	// 先用较大的 limit 缓存一页，较小 limit 的前两页可以直接命中
	_, err := f.svc.Search(context.Background(), owner, f.query(t, nil, "cat", "any", 9))
	require.NoError(t, err)

	q := f.query(t, nil, "cat", "any", 4)

	mixed := f.walk(t, q)
	assert.Equal(t, want, mixed.ids)
	assert.Equal(t, []bool{true, true, false}, mixed.fromCache[:3])

	warm := f.walk(t, q)
	assert.Equal(t, want, warm.ids)

	for _, hit := range warm.fromCache {
		assert.True(t, hit)
	}
}

func TestRankTieScenario(t *testing.T) {
	f := newFixture(t)

	for _, id := range []int64{3, 5} {
		caption := "old photo"
		f.source.Add(search.Photo{ID: id, UserID: owner, Caption: &caption, UploadedAt: t0})
		f.source.SetRank(id, 0)
	}

	q := f.query(t, nil, "photo", "any", 1)

	for range 2 {
		w := f.walk(t, q)
		assert.Equal(t, []int64{5, 3}, w.ids)
		assert.Equal(t, 2, w.pages)
	}

	res, err := f.svc.Search(context.Background(), owner, q)
	require.NoError(t, err)
	require.NotNil(t, res.NextCursor)
	require.NotNil(t, res.NextCursor.Rank)
	assert.Equal(t, int64(5), res.NextCursor.ID)
	assert.Zero(t, *res.NextCursor.Rank)
}

func TestSoftDeleteNeverServedFromStaleCache(t *testing.T) {
	f := newFixture(t)
	f.seed()

	q := f.query(t, []string{"common"}, "", "any", 50)
	before := f.walk(t, q).ids
	require.Contains(t, before, int64(95))

	f.source.SoftDelete(95)

	after := f.walk(t, q)
	assert.Equal(t, []bool{true}, after.fromCache)
	assert.NotContains(t, after.ids, int64(95))
	assert.Len(t, after.ids, len(before)-1)

	f.source.Restore(95)
	assert.Contains(t, f.walk(t, q).ids, int64(95))
}

func TestInvalidationRefetchesMetadata(t *testing.T) {
	f := newFixture(t)
	f.seed()

	ctx := context.Background()
	q := f.query(t, nil, "", "any", 5)

	res, err := f.svc.Search(ctx, owner, q)
	require.NoError(t, err)
	require.Equal(t, int64(100), res.Photos[0].ID)

	updated := "renamed"
	f.source.SetCaption(100, &updated)

	// 未失效时展示字段允许是旧的
	res, err = f.svc.Search(ctx, owner, q)
	require.NoError(t, err)
	assert.NotEqual(t, "renamed", *res.Photos[0].Caption)

	require.NoError(t, f.meta.Invalidate(ctx, []int64{100}))

	res, err = f.svc.Search(ctx, owner, q)
	require.NoError(t, err)
	assert.Equal(t, "renamed", *res.Photos[0].Caption)
}

func TestRecacheIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed()

	ctx := context.Background()
	want := f.walk(t, f.query(t, []string{"common"}, "", "any", 50)).ids

	f2 := newFixture(t)
	f2.seed()

	// 缓存 21 条(两页加一项前瞻)但未完整
	q := f2.query(t, []string{"common"}, "", "any", 10)
	res, err := f2.svc.Search(ctx, owner, q)
	require.NoError(t, err)

	q.Cursor = res.NextCursor
	_, err = f2.svc.Search(ctx, owner, q)
	require.NoError(t, err)

	// limit 15 的第二页与已缓存的 16..20 重叠，追加时只写入新的部分
	walked := f2.walk(t, f2.query(t, []string{"common"}, "", "any", 15))
	assert.Equal(t, want, walked.ids)
	assert.Equal(t, []bool{true, false, false}, walked.fromCache)

	again := f2.walk(t, f2.query(t, []string{"common"}, "", "any", 15))
	assert.Equal(t, want, again.ids)
	assert.Equal(t, []bool{true, true, true}, again.fromCache)
}

func TestEmptyQueryTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed()

	q := f.query(t, nil, " ?! ", "any", 10)
	require.True(t, q.Empty)

	res, err := f.svc.Search(context.Background(), owner, q)
	require.NoError(t, err)
	assert.Empty(t, res.Photos)
	assert.Nil(t, res.NextCursor)
	assert.Zero(t, f.source.Calls().Total())

	keys, err := f.store.Keys(context.Background(), "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRankedQueryRequiresCursorRank(t *testing.T) {
	f := newFixture(t)

	q := f.query(t, nil, "dog", "any", 10)
	q.Cursor = &search.Cursor{ID: 10}

	_, err := f.svc.Search(context.Background(), owner, q)
	require.ErrorIs(t, err, search.ErrInvalidCursor)
}

func TestSourceErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.seed()
	f.source.FailNext()

	_, err := f.svc.Search(context.Background(), owner, f.query(t, []string{"common"}, "", "any", 10))
	require.ErrorIs(t, err, searchtest.ErrInjected)
}

func TestAlbumScope(t *testing.T) {
	f := newFixture(t)
	f.seed()
	f.source.AddAlbum(searchtest.Album{ID: 1, UserID: owner}, 10, 20, 30, 40)
	f.source.AddAlbum(searchtest.Album{ID: 2, UserID: 8}, 10)

	album := int64(1)
	q, err := search.BuildQuery(nil, "dog", "any", nil, 2, &album)
	require.NoError(t, err)

	assert.Equal(t, []int64{40, 30, 20, 10}, f.walk(t, q).ids)
	assert.Equal(t, []int64{40, 30, 20, 10}, f.walk(t, q).ids)

	foreign := int64(2)
	q, err = search.BuildQuery(nil, "", "any", nil, 10, &foreign)
	require.NoError(t, err)
	assert.Empty(t, f.walk(t, q).ids)
}

// gatedSource 阻塞 FindByTags，用于观察并发回源合并.
type gatedSource struct {
	*searchtest.Source
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (g *gatedSource) FindByTags(ctx context.Context, userID int64, tags []string, match search.MatchMode, page search.Page) ([]search.Photo, *search.Cursor, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	<-g.gate

	return g.Source.FindByTags(ctx, userID, tags, match, page)
}

func TestSingleFlightCollapsesConcurrentMisses(t *testing.T) {
	base := searchtest.New()
	src := &gatedSource{Source: base, gate: make(chan struct{})}
	store := kv.NewMemory()
	svc := search.NewService(src, search.NewMetadataCache(store, 0),
		search.NewTagResultCache(store, time.Minute, 0),
		search.NewRankedResultCache(store, time.Minute, 0),
		search.WithSingleFlight(true),
	)

	for id := int64(1); id <= 5; id++ {
		base.Add(search.Photo{ID: id, UserID: owner, Tags: []string{"x"}, UploadedAt: t0.Add(time.Duration(id))})
	}

	q, err := search.BuildQuery([]string{"x"}, "", "any", nil, 10, nil)
	require.NoError(t, err)

	const n = 8

	var wg sync.WaitGroup

	results := make([][]search.Photo, n)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			res, err := svc.Search(context.Background(), owner, q)
			assert.NoError(t, err)

			results[i] = res.Photos
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, 1, src.calls)

	for _, r := range results {
		assert.Len(t, r, 5)
	}
}

func TestSharedLoadSurvivesLeaderCancel(t *testing.T) {
	base := searchtest.New()
	src := &gatedSource{Source: base, gate: make(chan struct{})}
	store := kv.NewMemory()
	svc := search.NewService(src, search.NewMetadataCache(store, 0),
		search.NewTagResultCache(store, time.Minute, 0),
		search.NewRankedResultCache(store, time.Minute, 0),
		search.WithSingleFlight(true),
	)

	for id := int64(1); id <= 3; id++ {
		base.Add(search.Photo{ID: id, UserID: owner, Tags: []string{"x"}, UploadedAt: t0.Add(time.Duration(id))})
	}

	q, err := search.BuildQuery([]string{"x"}, "", "any", nil, 10, nil)
	require.NoError(t, err)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)

	go func() {
		_, err := svc.Search(leaderCtx, owner, q)
		leaderErr <- err
	}()

	time.Sleep(50 * time.Millisecond)

	waiter := make(chan search.Result, 1)

	go func() {
		res, err := svc.Search(context.Background(), owner, q)
		assert.NoError(t, err)

		waiter <- res
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(src.gate)

	res := <-waiter
	assert.Len(t, res.Photos, 3)
	assert.Equal(t, 1, src.calls)
}
