// Package repository 实现基于 PostgreSQL 的搜索数据源.
//
// 所有查询都限定在用户自己的未删除照片内，读取 limit+1 行判断是否还有下一页.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/tracing"
)

// captionVector 与 migrations 中的 GIN 索引表达式保持一致.
const captionVector = "to_tsvector('english', coalesce(p.caption, ''))"

// PhotoRepository 实现 search.Source.
type PhotoRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
}

var _ search.Source = (*PhotoRepository)(nil)

// NewPhotoRepository 创建仓储.
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db, tracer: otel.Tracer("photovault/repository")}
}

// query 逐段拼接 SQL 与位置参数.
type query struct {
	sb   strings.Builder
	args []any
}

func (q *query) add(sql string, args ...any) *query {
	q.sb.WriteString(sql)
	q.sb.WriteByte('\n')
	q.args = append(q.args, args...)

	return q
}

func (q *query) String() string { return q.sb.String() }

// scope 所有权、软删除与相册范围.
func (q *query) scope(userID int64, albumID *int64) *query {
	q.add("p.user_id = ? AND p.deleted_at IS NULL", userID)

	if albumID != nil {
		q.add(`AND EXISTS (
	SELECT 1 FROM album_photos ap
	JOIN albums a ON a.id = ap.album_id
	WHERE ap.photo_id = p.id AND a.id = ? AND a.user_id = ? AND a.deleted_at IS NULL
)`, *albumID, userID)
	}

	return q
}

// tagPredicate any: 任一标签命中；all: 命中全部标签且不产生重复行.
func tagPredicate(tags []string, match search.MatchMode) (string, []any) {
	if match == search.MatchAll {
		return `p.id IN (
	SELECT pt.photo_id FROM photo_tags pt
	WHERE pt.tag_name IN ?
	GROUP BY pt.photo_id
	HAVING COUNT(DISTINCT pt.tag_name) = ?
)`, []any{tags, len(tags)}
	}

	return "p.id IN (SELECT pt.photo_id FROM photo_tags pt WHERE pt.tag_name IN ?)", []any{tags}
}

// tsQuery 把检索词拼成 to_tsquery 表达式. 检索词只含字母和数字，无需转义.
func tsQuery(terms []string, match search.MatchMode) string {
	sep := " | "
	if match == search.MatchAll {
		sep = " & "
	}

	return strings.Join(terms, sep)
}

func (r *PhotoRepository) start(ctx context.Context, name string, userID int64, page search.Page) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "repository."+name, trace.WithAttributes(
		tracing.UserID(userID),
		attribute.Int("limit", page.Limit),
		attribute.Bool("cursor", page.Cursor != nil),
		tracing.AlbumID(page.AlbumID),
	))
}

func finish(span trace.Span, err error) {
	tracing.End(span, err)
}

// uploadOrdered 形态 A/B 共用：uploaded_at DESC, id DESC. 游标照片不存在时退化为 id < cursor.id.
func uploadOrdered(userID int64, page search.Page, filter func(q *query)) *query {
	q := &query{}

	if page.Cursor != nil {
		q.add("WITH cur AS (SELECT c.uploaded_at, c.id FROM photos c WHERE c.id = ? AND c.user_id = ?)",
			page.Cursor.ID, userID)
	}

	q.add("SELECT p.id, p.user_id, p.file_path, p.caption, p.uploaded_at FROM photos p WHERE")
	q.scope(userID, page.AlbumID)

	if filter != nil {
		filter(q)
	}

	if page.Cursor != nil {
		q.add(`AND (
	(NOT EXISTS (SELECT 1 FROM cur) AND p.id < ?)
	OR (p.uploaded_at, p.id) < (SELECT cur.uploaded_at, cur.id FROM cur)
)`, page.Cursor.ID)
	}

	q.add("ORDER BY p.uploaded_at DESC, p.id DESC LIMIT ?", page.Limit+1)

	return q
}

type photoRow struct {
	ID         int64
	UserID     int64
	FilePath   string
	Caption    *string
	UploadedAt time.Time
	TagsJSON   string
}

// ListIDs 形态 A.
func (r *PhotoRepository) ListIDs(ctx context.Context, userID int64, page search.Page) (_ []int64, _ *search.Cursor, err error) {
	ctx, span := r.start(ctx, "ListIDs", userID, page)
	defer func() { finish(span, err) }()

	q := uploadOrdered(userID, page, nil)

	var rows []photoRow
	if err := r.db.WithContext(ctx).Raw(q.String(), q.args...).Scan(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("list photo ids: %w", err)
	}

	rows, next := cut(rows, page.Limit)

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids, nextByID(ids, next), nil
}

// FindByTags 形态 B，直接返回带标签的完整记录.
func (r *PhotoRepository) FindByTags(ctx context.Context, userID int64, tags []string, match search.MatchMode, page search.Page) (_ []search.Photo, _ *search.Cursor, err error) {
	ctx, span := r.start(ctx, "FindByTags", userID, page)
	defer func() { finish(span, err) }()

	if len(tags) == 0 {
		return []search.Photo{}, nil, nil
	}

	q := uploadOrdered(userID, page, func(q *query) {
		pred, args := tagPredicate(tags, match)
		q.add("AND "+pred, args...)
	})

	var rows []photoRow
	if err := r.db.WithContext(ctx).Raw(q.String(), q.args...).Scan(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("find photos by tags: %w", err)
	}

	rows, next := cut(rows, page.Limit)

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	tagMap, err := r.tagsOf(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	photos := make([]search.Photo, len(rows))
	for i, row := range rows {
		photos[i] = row.photo(tagMap[row.ID])
	}

	return photos, nextByID(ids, next), nil
}

type rankedRow struct {
	ID   int64
	Rank float64
}

// ranked 形态 C/D 共用：rank DESC, id DESC，游标谓词 rank < r OR (rank = r AND id < id).
func (r *PhotoRepository) ranked(ctx context.Context, userID int64, page search.Page, tsq string, filter func(q *query), rankExpr string) ([]search.Entry, *search.Cursor, error) {
	q := &query{}
	q.add("WITH ranked AS (")
	q.add("SELECT p.id, ("+rankExpr+")::float8 AS rank FROM photos p, to_tsquery('english', ?) AS tsq(query) WHERE", tsq)
	q.scope(userID, page.AlbumID)
	filter(q)
	q.add(")")
	q.add("SELECT id, rank FROM ranked")

	if c := page.Cursor; c != nil {
		if c.Rank == nil {
			return nil, nil, fmt.Errorf("%w: ranked query requires cursor rank", search.ErrInvalidCursor)
		}

		q.add("WHERE rank < ? OR (rank = ? AND id < ?)", *c.Rank, *c.Rank, c.ID)
	}

	q.add("ORDER BY rank DESC, id DESC LIMIT ?", page.Limit+1)

	var rows []rankedRow
	if err := r.db.WithContext(ctx).Raw(q.String(), q.args...).Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	rows, next := cut(rows, page.Limit)

	entries := make([]search.Entry, len(rows))
	for i, row := range rows {
		rank := row.Rank
		entries[i] = search.Entry{ID: row.ID, Rank: &rank}
	}

	var nc *search.Cursor
	if next && len(entries) > 0 {
		nc = entries[len(entries)-1].Cursor()
	}

	return entries, nc, nil
}

// SearchCaption 形态 C.
func (r *PhotoRepository) SearchCaption(ctx context.Context, userID int64, terms []string, match search.MatchMode, page search.Page) (_ []search.Entry, _ *search.Cursor, err error) {
	ctx, span := r.start(ctx, "SearchCaption", userID, page)
	defer func() { finish(span, err) }()

	if len(terms) == 0 {
		return []search.Entry{}, nil, nil
	}

	entries, next, err := r.ranked(ctx, userID, page, tsQuery(terms, match), func(q *query) {
		q.add("AND " + captionVector + " @@ tsq.query")
	}, "ts_rank("+captionVector+", tsq.query)")
	if err != nil {
		return nil, nil, fmt.Errorf("search captions: %w", err)
	}

	return entries, next, nil
}

// SearchCombined 形态 D：caption 与标签条件按 match 取 AND/OR，仅标签命中时 rank 为 0.
func (r *PhotoRepository) SearchCombined(ctx context.Context, userID int64, terms, tags []string, match search.MatchMode, page search.Page) (_ []search.Entry, _ *search.Cursor, err error) {
	ctx, span := r.start(ctx, "SearchCombined", userID, page)
	defer func() { finish(span, err) }()

	if len(terms) == 0 || len(tags) == 0 {
		return nil, nil, fmt.Errorf("search combined: both terms and tags are required")
	}

	join := " OR "
	if match == search.MatchAll {
		join = " AND "
	}

	pred, args := tagPredicate(tags, match)

	entries, next, err := r.ranked(ctx, userID, page, tsQuery(terms, match), func(q *query) {
		q.add("AND (("+captionVector+" @@ tsq.query)"+join+pred+")", args...)
	}, "CASE WHEN "+captionVector+" @@ tsq.query THEN ts_rank("+captionVector+", tsq.query) ELSE 0 END")
	if err != nil {
		return nil, nil, fmt.Errorf("search combined: %w", err)
	}

	return entries, next, nil
}

// FindByIDs 批量读取，结果顺序不保证.
func (r *PhotoRepository) FindByIDs(ctx context.Context, userID int64, ids []int64) (_ []search.Photo, err error) {
	ctx, span := r.tracer.Start(ctx, "repository.FindByIDs", trace.WithAttributes(
		tracing.UserID(userID),
		tracing.AttrPhotos.Int(len(ids)),
	))
	defer func() { finish(span, err) }()

	if len(ids) == 0 {
		return []search.Photo{}, nil
	}

	var rows []photoRow

	err = r.db.WithContext(ctx).Raw(`SELECT p.id, p.user_id, p.file_path, p.caption, p.uploaded_at,
	COALESCE(json_agg(pt.tag_name ORDER BY pt.tag_name) FILTER (WHERE pt.tag_name IS NOT NULL), '[]')::text AS tags_json
FROM photos p
LEFT JOIN photo_tags pt ON pt.photo_id = p.id
WHERE p.id IN ? AND p.user_id = ? AND p.deleted_at IS NULL
GROUP BY p.id`, ids, userID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find photos by ids: %w", err)
	}

	photos := make([]search.Photo, 0, len(rows))

	for _, row := range rows {
		var tags []string
		if err := sonic.UnmarshalString(row.TagsJSON, &tags); err != nil {
			return nil, fmt.Errorf("decode tags of photo %d: %w", row.ID, err)
		}

		photos = append(photos, row.photo(tags))
	}

	return photos, nil
}

// FilterLive 返回仍可见的 id 子集.
func (r *PhotoRepository) FilterLive(ctx context.Context, userID int64, ids []int64, albumID *int64) (_ []int64, err error) {
	ctx, span := r.tracer.Start(ctx, "repository.FilterLive", trace.WithAttributes(
		tracing.UserID(userID),
		tracing.AttrPhotos.Int(len(ids)),
	))
	defer func() { finish(span, err) }()

	if len(ids) == 0 {
		return []int64{}, nil
	}

	q := &query{}
	q.add("SELECT p.id FROM photos p WHERE p.id IN ? AND", ids)
	q.scope(userID, albumID)

	var live []int64
	if err := r.db.WithContext(ctx).Raw(q.String(), q.args...).Scan(&live).Error; err != nil {
		return nil, fmt.Errorf("filter live photos: %w", err)
	}

	return live, nil
}

// tagsOf 读取一批照片的标签，按名称排序.
func (r *PhotoRepository) tagsOf(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		PhotoID int64
		TagName string
	}

	err := r.db.WithContext(ctx).
		Raw("SELECT photo_id, tag_name FROM photo_tags WHERE photo_id IN ? ORDER BY photo_id, tag_name", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load photo tags: %w", err)
	}

	for _, row := range rows {
		out[row.PhotoID] = append(out[row.PhotoID], row.TagName)
	}

	return out, nil
}

func (row photoRow) photo(tags []string) search.Photo {
	if tags == nil {
		tags = []string{}
	}

	return search.Photo{
		ID:         row.ID,
		UserID:     row.UserID,
		FilePath:   row.FilePath,
		Caption:    row.Caption,
		Tags:       tags,
		UploadedAt: row.UploadedAt.UTC(),
	}
}

// cut 截断到 limit，并报告是否还有下一行.
func cut[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}

	return rows, false
}

func nextByID(ids []int64, next bool) *search.Cursor {
	if !next || len(ids) == 0 {
		return nil
	}

	return &search.Cursor{ID: ids[len(ids)-1]}
}
