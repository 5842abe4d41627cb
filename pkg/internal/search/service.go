package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	pctx "github.com/yeisme/photovault/pkg/context"
	"github.com/yeisme/photovault/pkg/metrics"
	"github.com/yeisme/photovault/pkg/tracing"
)

// Result 一页搜索结果. NextCursor 为 nil 表示最后一页.
type Result struct {
	Photos     []Photo
	NextCursor *Cursor
	FromCache  bool
}

// Service 搜索编排：先查结果缓存，未命中回源并回填.
type Service struct {
	source      Source
	meta        MetadataCache
	tagCache    ResultCache
	rankedCache ResultCache

	log          zerolog.Logger
	tracer       trace.Tracer
	flight       *singleflight.Group
	bypassResult bool
}

// Option 配置 Service.
type Option func(*Service)

// WithLogger 设置日志.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithSingleFlight 合并相同 (key, cursor, limit) 的并发回源.
func WithSingleFlight(enabled bool) Option {
	return func(s *Service) {
		if enabled {
			s.flight = &singleflight.Group{}
		} else {
			s.flight = nil
		}
	}
}

// WithResultCacheBypass 跳过结果缓存的读写，元数据缓存仍然生效.
func WithResultCacheBypass(bypass bool) Option {
	return func(s *Service) { s.bypassResult = bypass }
}

// NewService 创建搜索服务.
func NewService(source Source, meta MetadataCache, tagCache, rankedCache ResultCache, opts ...Option) *Service {
	s := &Service{
		source:      source,
		meta:        meta,
		tagCache:    tagCache,
		rankedCache: rankedCache,
		log:         zerolog.Nop(),
		tracer:      otel.Tracer("photovault/search"),
		flight:      &singleflight.Group{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// segment 一次回源得到的结果段.
type segment struct {
	entries []Entry
	photos  []Photo // 标签查询直接带回完整记录
	next    *Cursor
}

type fetchSegment func(ctx context.Context, userID int64, q Query, page Page) (segment, error)

// Search 执行查询.
func (s *Service) Search(ctx context.Context, userID int64, q Query) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		tracing.UserID(userID),
		tracing.AlbumID(q.AlbumID),
		tracing.AttrShape.String(q.Shape.String()),
		attribute.String("match", string(q.Match)),
		attribute.Int("limit", q.Limit),
		attribute.Bool("cursor", q.Cursor != nil),
	))

	start := time.Now()

	defer func() {
		source := "source"
		if res.FromCache {
			source = "cache"
		}

		metrics.SearchDuration.WithLabelValues(q.Shape.String(), source).Observe(time.Since(start).Seconds())

		span.SetAttributes(tracing.AttrPhotos.Int(len(res.Photos)), tracing.AttrFromCache.Bool(res.FromCache))
		tracing.End(span, err)
	}()

	ctx = pctx.Logger(ctx, s.log).With().Int64("user_id", userID).Str("shape", q.Shape.String()).Logger().WithContext(ctx)

	if q.Empty {
		return Result{Photos: []Photo{}}, nil
	}

	switch q.Shape {
	case ShapeUnfiltered:
		return s.searchUnfiltered(ctx, userID, q)
	case ShapeTagsOnly:
		return s.searchCached(ctx, userID, q, s.tagCache, s.fetchTags)
	case ShapeCaptionOnly, ShapeCombined:
		if q.Cursor != nil && q.Cursor.Rank == nil {
			return Result{}, fmt.Errorf("%w: ranked query requires cursor rank", ErrInvalidCursor)
		}

		return s.searchCached(ctx, userID, q, s.rankedCache, s.fetchRanked)
	default:
		return Result{}, fmt.Errorf("search: unsupported query shape %s", q.Shape)
	}
}

func (s *Service) page(q Query) Page {
	return Page{Cursor: q.Cursor, Limit: q.Limit, AlbumID: q.AlbumID}
}

// searchUnfiltered 形态 A：只取 id，再经元数据缓存解析.
func (s *Service) searchUnfiltered(ctx context.Context, userID int64, q Query) (Result, error) {
	ids, next, err := s.source.ListIDs(ctx, userID, s.page(q))
	if err != nil {
		return Result{}, fmt.Errorf("list photos: %w", err)
	}

	photos, err := ResolvePhotos(ctx, s.meta, userID, ids, s.source.FindByIDs)
	if err != nil {
		return Result{}, err
	}

	return Result{Photos: photos, NextCursor: next}, nil
}

func (s *Service) searchCached(ctx context.Context, userID int64, q Query, cache ResultCache, fetch fetchSegment) (Result, error) {
	key := SearchKey(userID, q)
	shape := q.Shape.String()

	if s.bypassResult {
		return s.fill(ctx, userID, q, key, cache, fetch)
	}

	w, ok, err := cache.Lookup(ctx, key, q.Cursor, q.Limit)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("result cache lookup failed")
		metrics.SearchCacheLookups.WithLabelValues(shape, "error").Inc()

		ok = false
	}

	if ok {
		metrics.SearchCacheLookups.WithLabelValues(shape, "hit").Inc()
		return s.serveWindow(ctx, userID, q, w)
	}

	if err == nil {
		metrics.SearchCacheLookups.WithLabelValues(shape, "miss").Inc()
	}

	return s.fill(ctx, userID, q, key, cache, fetch)
}

// serveWindow 缓存命中：并发复核存活状态与解析元数据，保持缓存顺序.
func (s *Service) serveWindow(ctx context.Context, userID int64, q Query, w Window) (Result, error) {
	ids := make([]int64, len(w.Entries))
	for i, e := range w.Entries {
		ids[i] = e.ID
	}

	var (
		live   []int64
		photos []Photo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error

		live, err = s.source.FilterLive(gctx, userID, ids, q.AlbumID)
		if err != nil {
			return fmt.Errorf("filter live photos: %w", err)
		}

		return nil
	})
	g.Go(func() error {
		var err error

		photos, err = ResolvePhotos(gctx, s.meta, userID, ids, s.source.FindByIDs)

		return err
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	alive := make(map[int64]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}

	out := make([]Photo, 0, len(photos))

	for _, p := range photos {
		if _, ok := alive[p.ID]; ok {
			out = append(out, p)
		}
	}

	res := Result{Photos: out, FromCache: true}
	if w.HasMore && len(w.Entries) > 0 {
		res.NextCursor = w.Entries[len(w.Entries)-1].Cursor()
	}

	return res, nil
}

// sharedLoadTimeout 合并回源脱离发起请求的取消后使用的超时.
const sharedLoadTimeout = 15 * time.Second

// fill 缓存未命中：回源、回填结果缓存与元数据缓存.
//
// 回源多取一项并一起写入缓存，缓存中的列表仍是结果的真前缀，
// 下次同一页查找能据此得出 HasMore 并直接命中.
func (s *Service) fill(ctx context.Context, userID int64, q Query, key string, cache ResultCache, fetch fetchSegment) (Result, error) {
	load := func(ctx context.Context) (Result, error) {
		page := s.page(q)
		page.Limit = q.Limit + 1

		seg, err := fetch(ctx, userID, q, page)
		if err != nil {
			return Result{}, err
		}

		if !s.bypassResult {
			if err := cache.AppendIDs(ctx, key, q.Cursor, seg.entries, seg.next == nil); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("result cache append failed")
			}
		}

		entries := seg.entries

		var next *Cursor
		if len(entries) > q.Limit {
			entries = entries[:q.Limit]
			next = entries[len(entries)-1].Cursor()
		}

		photos := seg.photos
		if photos != nil {
			if err := s.meta.Put(ctx, photos); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("metadata cache write failed")
			}

			photos = photos[:min(len(photos), q.Limit)]
		} else {
			ids := make([]int64, len(entries))
			for i, e := range entries {
				ids[i] = e.ID
			}

			photos, err = ResolvePhotos(ctx, s.meta, userID, ids, s.source.FindByIDs)
			if err != nil {
				return Result{}, err
			}
		}

		return Result{Photos: photos, NextCursor: next}, nil
	}

	if s.flight == nil {
		return load(ctx)
	}

	// 共享的回源不跟随某一个等待者的取消，各等待者只在自己的 ctx 结束时提前返回
	ch := s.flight.DoChan(fmt.Sprintf("%s|%s|%d", key, q.Cursor, q.Limit), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		return load(lctx)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}

		res := r.Val.(Result)
		// 共享结果的切片不能被调用方互相修改
		res.Photos = append([]Photo(nil), res.Photos...)

		return res, nil
	}
}

func (s *Service) fetchTags(ctx context.Context, userID int64, q Query, page Page) (segment, error) {
	photos, next, err := s.source.FindByTags(ctx, userID, q.Tags, q.Match, page)
	if err != nil {
		return segment{}, fmt.Errorf("find by tags: %w", err)
	}

	entries := make([]Entry, len(photos))
	for i, p := range photos {
		entries[i] = Entry{ID: p.ID}
	}

	if photos == nil {
		photos = []Photo{}
	}

	return segment{entries: entries, photos: photos, next: next}, nil
}

func (s *Service) fetchRanked(ctx context.Context, userID int64, q Query, page Page) (segment, error) {
	var (
		entries []Entry
		next    *Cursor
		err     error
	)

	if q.Shape == ShapeCombined {
		entries, next, err = s.source.SearchCombined(ctx, userID, q.Terms, q.Tags, q.Match, page)
	} else {
		entries, next, err = s.source.SearchCaption(ctx, userID, q.Terms, q.Match, page)
	}

	if err != nil {
		return segment{}, fmt.Errorf("caption search: %w", err)
	}

	return segment{entries: entries, next: next}, nil
}
