// Package searchtest 提供内存版 search.Source，排序、游标与存活规则与 PostgreSQL 实现一致，
// 用于搜索编排与上层服务的测试.
package searchtest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/yeisme/photovault/pkg/internal/search"
)

// Record 内存中的照片.
type Record struct {
	search.Photo
	DeletedAt *time.Time
	Albums    []int64
	// FixedRank 覆盖 caption 命中时的相关度，用于构造并列 rank
	FixedRank *float64
}

// Album 内存中的相册.
type Album struct {
	ID      int64
	UserID  int64
	Deleted bool
}

// Calls 各方法调用次数.
type Calls struct {
	ListIDs, FindByTags, SearchCaption, SearchCombined, FindByIDs, FilterLive int
}

// Total 返回所有调用次数之和.
func (c Calls) Total() int {
	return c.ListIDs + c.FindByTags + c.SearchCaption + c.SearchCombined + c.FindByIDs + c.FilterLive
}

// ErrInjected 通过 FailNext 注入的错误.
var ErrInjected = errors.New("searchtest: injected failure")

// Source 并发安全的内存数据源.
type Source struct {
	mu       sync.Mutex
	photos   map[int64]*Record
	albums   map[int64]*Album
	calls    Calls
	failNext bool
}

// New 创建空数据源.
func New() *Source {
	return &Source{photos: make(map[int64]*Record), albums: make(map[int64]*Album)}
}

// Add 写入或覆盖照片，标签会被规范化.
func (s *Source) Add(p search.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Tags = search.NormalizeTags(p.Tags)
	s.photos[p.ID] = &Record{Photo: p}
}

// AddAlbum 创建相册并关联照片.
func (s *Source) AddAlbum(a Album, photoIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.albums[a.ID] = &a

	for _, id := range photoIDs {
		if r, ok := s.photos[id]; ok {
			r.Albums = append(r.Albums, a.ID)
		}
	}
}

// SoftDelete 标记删除.
func (s *Source) SoftDelete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.photos[id]; ok {
		now := time.Now()
		r.DeletedAt = &now
	}
}

// Restore 恢复删除.
func (s *Source) Restore(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.photos[id]; ok {
		r.DeletedAt = nil
	}
}

// SetCaption 修改 caption，nil 表示清除.
func (s *Source) SetCaption(id int64, caption *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.photos[id]; ok {
		r.Caption = caption
	}
}

// SetRank 固定某张照片 caption 命中时的 rank.
func (s *Source) SetRank(id int64, rank float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.photos[id]; ok {
		r.FixedRank = &rank
	}
}

// Calls 返回调用计数快照.
func (s *Source) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// ResetCalls 清零调用计数.
func (s *Source) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = Calls{}
}

// FailNext 下一次调用返回 ErrInjected.
func (s *Source) FailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = true
}

func (s *Source) takeFailure() error {
	if s.failNext {
		s.failNext = false
		return ErrInjected
	}

	return nil
}

// visible 调用方需持有锁.
func (s *Source) visible(r *Record, userID int64, albumID *int64) bool {
	if r.UserID != userID || r.DeletedAt != nil {
		return false
	}

	if albumID == nil {
		return true
	}

	a, ok := s.albums[*albumID]
	if !ok || a.Deleted || a.UserID != userID {
		return false
	}

	return slices.Contains(r.Albums, *albumID)
}

func (s *Source) scoped(userID int64, albumID *int64, keep func(*Record) bool) []*Record {
	out := make([]*Record, 0)

	for _, r := range s.photos {
		if s.visible(r, userID, albumID) && keep(r) {
			out = append(out, r)
		}
	}

	return out
}

// byUpload uploaded_at DESC, id DESC.
func byUpload(a, b *Record) int {
	if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
		return c
	}

	return cmp.Compare(b.ID, a.ID)
}

// afterUpload 与 SQL 中的 CTE 一致：游标照片不存在时退化为 id < cursor.id.
func (s *Source) afterUpload(rows []*Record, cur *search.Cursor) []*Record {
	if cur == nil {
		return rows
	}

	anchor, ok := s.photos[cur.ID]

	return slices.DeleteFunc(rows, func(r *Record) bool {
		if !ok {
			return r.ID >= cur.ID
		}

		if r.UploadedAt.Equal(anchor.UploadedAt) {
			return r.ID >= cur.ID
		}

		return r.UploadedAt.After(anchor.UploadedAt)
	})
}

func clone(r *Record) search.Photo {
	p := r.Photo
	p.Tags = slices.Clone(r.Tags)

	if r.Caption != nil {
		c := *r.Caption
		p.Caption = &c
	}

	return p
}

func (s *Source) ListIDs(_ context.Context, userID int64, page search.Page) ([]int64, *search.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.ListIDs++
	if err := s.takeFailure(); err != nil {
		return nil, nil, err
	}

	rows := s.scoped(userID, page.AlbumID, func(*Record) bool { return true })
	slices.SortFunc(rows, byUpload)
	rows, next := cut(s.afterUpload(rows, page.Cursor), page.Limit)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	return ids, idCursor(rows, next), nil
}

func (s *Source) FindByTags(_ context.Context, userID int64, tags []string, match search.MatchMode, page search.Page) ([]search.Photo, *search.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.FindByTags++
	if err := s.takeFailure(); err != nil {
		return nil, nil, err
	}

	rows := s.scoped(userID, page.AlbumID, func(r *Record) bool { return tagsMatch(r.Tags, tags, match) })
	slices.SortFunc(rows, byUpload)
	rows, next := cut(s.afterUpload(rows, page.Cursor), page.Limit)

	photos := make([]search.Photo, len(rows))
	for i, r := range rows {
		photos[i] = clone(r)
	}

	return photos, idCursor(rows, next), nil
}

func (s *Source) SearchCaption(_ context.Context, userID int64, terms []string, match search.MatchMode, page search.Page) ([]search.Entry, *search.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.SearchCaption++
	if err := s.takeFailure(); err != nil {
		return nil, nil, err
	}

	return s.ranked(userID, page, func(r *Record) (float64, bool) {
		return captionRank(r, terms, match)
	})
}

func (s *Source) SearchCombined(_ context.Context, userID int64, terms, tags []string, match search.MatchMode, page search.Page) ([]search.Entry, *search.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.SearchCombined++
	if err := s.takeFailure(); err != nil {
		return nil, nil, err
	}

	return s.ranked(userID, page, func(r *Record) (float64, bool) {
		rank, byCaption := captionRank(r, terms, match)
		byTags := tagsMatch(r.Tags, tags, match)

		if match == search.MatchAll {
			return rank, byCaption && byTags
		}

		return rank, byCaption || byTags
	})
}

type rankedRow struct {
	id   int64
	rank float64
}

func (s *Source) ranked(userID int64, page search.Page, score func(*Record) (float64, bool)) ([]search.Entry, *search.Cursor, error) {
	rows := make([]rankedRow, 0)

	for _, r := range s.scoped(userID, page.AlbumID, func(*Record) bool { return true }) {
		if rank, ok := score(r); ok {
			rows = append(rows, rankedRow{id: r.ID, rank: rank})
		}
	}

	// rank DESC, id DESC
	slices.SortFunc(rows, func(a, b rankedRow) int {
		if c := cmp.Compare(b.rank, a.rank); c != 0 {
			return c
		}

		return cmp.Compare(b.id, a.id)
	})

	if cur := page.Cursor; cur != nil && cur.Rank != nil {
		rows = slices.DeleteFunc(rows, func(r rankedRow) bool {
			return !(r.rank < *cur.Rank || (r.rank == *cur.Rank && r.id < cur.ID))
		})
	}

	rows, next := cut(rows, page.Limit)

	entries := make([]search.Entry, len(rows))
	for i, r := range rows {
		entries[i] = search.Entry{ID: r.id, Rank: &r.rank}
	}

	if !next || len(entries) == 0 {
		return entries, nil, nil
	}

	return entries, entries[len(entries)-1].Cursor(), nil
}

func (s *Source) FindByIDs(_ context.Context, userID int64, ids []int64) ([]search.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.FindByIDs++
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	out := make([]search.Photo, 0, len(ids))

	for _, id := range ids {
		if r, ok := s.photos[id]; ok && s.visible(r, userID, nil) {
			out = append(out, clone(r))
		}
	}

	return out, nil
}

func (s *Source) FilterLive(_ context.Context, userID int64, ids []int64, albumID *int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.FilterLive++
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(ids))

	for _, id := range ids {
		if r, ok := s.photos[id]; ok && s.visible(r, userID, albumID) {
			out = append(out, id)
		}
	}

	return out, nil
}

// cut 截取 limit 行并报告是否还有更多.
func cut[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}

	return rows, false
}

func idCursor(rows []*Record, next bool) *search.Cursor {
	if !next || len(rows) == 0 {
		return nil
	}

	return &search.Cursor{ID: rows[len(rows)-1].ID}
}

func tagsMatch(have, want []string, match search.MatchMode) bool {
	if len(want) == 0 {
		return false
	}

	hit := 0

	for _, t := range want {
		if slices.Contains(have, t) {
			hit++
		}
	}

	if match == search.MatchAll {
		return hit == len(want)
	}

	return hit > 0
}

// captionRank 简化的相关度：命中词数 / 10，FixedRank 优先. 未命中时 rank 为 0.
func captionRank(r *Record, terms []string, match search.MatchMode) (float64, bool) {
	if r.Caption == nil || len(terms) == 0 {
		return 0, false
	}

	words := strings.FieldsFunc(strings.ToLower(*r.Caption), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	hit := 0

	for _, t := range terms {
		if slices.Contains(words, t) {
			hit++
		}
	}

	if hit == 0 || (match == search.MatchAll && hit < len(terms)) {
		return 0, false
	}

	if r.FixedRank != nil {
		return *r.FixedRank, true
	}

	return float64(hit) / 10, true
}
