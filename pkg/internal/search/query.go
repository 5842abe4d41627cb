package search

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Shape 查询形态，BuildQuery 一次性确定，Service 按形态分派.
type Shape int

const (
	ShapeUnfiltered Shape = iota
	ShapeTagsOnly
	ShapeCaptionOnly
	ShapeCombined
)

func (s Shape) String() string {
	switch s {
	case ShapeUnfiltered:
		return "unfiltered"
	case ShapeTagsOnly:
		return "tags"
	case ShapeCaptionOnly:
		return "caption"
	case ShapeCombined:
		return "combined"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Ranked 是否按 caption 相关度排序.
func (s Shape) Ranked() bool {
	return s == ShapeCaptionOnly || s == ShapeCombined
}

// MatchMode any 为并集，all 为交集. 组合查询中同时作用于 caption 与标签条件之间.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Limits 查询约束.
type Limits struct {
	DefaultLimit     int
	MaxLimit         int
	MaxTags          int
	MaxCaptionLength int
}

// DefaultLimits 默认约束.
var DefaultLimits = Limits{DefaultLimit: 20, MaxLimit: 50, MaxTags: 10, MaxCaptionLength: 256}

// Query 规范化后的查询.
type Query struct {
	Tags    []string // 小写、去重、排序
	Caption string   // 折叠空白后的原文
	Terms   []string // caption 拆出的检索词，小写去重
	Match   MatchMode
	Cursor  *Cursor
	Limit   int
	AlbumID *int64
	Shape   Shape
	// Empty 查询注定为空（caption 无可检索词），直接返回空页
	Empty bool
}

// Category 返回缓存 key 中的类别标签，无过滤查询不缓存结果，返回空串.
func (q Query) Category() string {
	switch q.Shape {
	case ShapeTagsOnly:
		return "tags"
	case ShapeCaptionOnly:
		return "caption"
	case ShapeCombined:
		return "combined"
	default:
		return ""
	}
}

// BuildQuery 使用 DefaultLimits 规范化查询参数.
func BuildQuery(tags []string, caption, match string, cursor *Cursor, limit int, albumID *int64) (Query, error) {
	return DefaultLimits.BuildQuery(tags, caption, match, cursor, limit, albumID)
}

// BuildQuery 规范化查询参数，纯函数. limit 为 0 时使用默认值.
func (l Limits) BuildQuery(tags []string, caption, match string, cursor *Cursor, limit int, albumID *int64) (Query, error) {
	q := Query{Cursor: cursor, AlbumID: albumID}

	switch MatchMode(strings.ToLower(strings.TrimSpace(match))) {
	case "", MatchAny:
		q.Match = MatchAny
	case MatchAll:
		q.Match = MatchAll
	default:
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidMatch, match)
	}

	if limit == 0 {
		limit = l.DefaultLimit
	}

	if limit < 1 || limit > l.MaxLimit {
		return Query{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, l.MaxLimit)
	}

	q.Limit = limit

	if albumID != nil && *albumID <= 0 {
		return Query{}, fmt.Errorf("%w: album id must be positive", ErrInvalidScope)
	}

	q.Tags = NormalizeTags(tags)
	if len(q.Tags) > l.MaxTags {
		return Query{}, fmt.Errorf("%w: %d > %d", ErrTooManyFilters, len(q.Tags), l.MaxTags)
	}

	q.Caption = strings.Join(strings.Fields(caption), " ")
	if l.MaxCaptionLength > 0 && len(q.Caption) > l.MaxCaptionLength {
		return Query{}, fmt.Errorf("%w: %d > %d", ErrCaptionTooLong, len(q.Caption), l.MaxCaptionLength)
	}

	q.Terms = captionTerms(q.Caption)

	hasTags := len(q.Tags) > 0
	hasCaption := len(q.Terms) > 0

	// caption 没有可检索的词时匹配不到任何照片；any 模式下仍可由标签命中
	q.Empty = q.Caption != "" && !hasCaption && (!hasTags || q.Match == MatchAll)

	switch {
	case hasTags && hasCaption:
		q.Shape = ShapeCombined
	case hasCaption:
		q.Shape = ShapeCaptionOnly
	case hasTags:
		q.Shape = ShapeTagsOnly
	default:
		q.Shape = ShapeUnfiltered
	}

	return q, nil
}

// NormalizeTags 去空白、小写、去重并排序.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// captionTerms 按非字母数字切分，保留首次出现的顺序.
func captionTerms(caption string) []string {
	fields := strings.FieldsFunc(strings.ToLower(caption), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))

	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		terms = append(terms, f)
	}

	return terms
}
