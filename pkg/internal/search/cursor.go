package search

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Cursor 指向上一页最后一条记录，下一页严格位于其之后.
// Rank 仅在 caption 排序查询中存在，并且先于 ID 比较.
type Cursor struct {
	ID   int64    `json:"id"`
	Rank *float64 `json:"rank,omitempty"`
}

// Ranked 返回携带 rank 的游标.
func Ranked(id int64, rank float64) *Cursor {
	return &Cursor{ID: id, Rank: &rank}
}

// EncodeCursor 编码为 base64url(JSON).
func EncodeCursor(c Cursor) string {
	// Cursor 只含数字字段，序列化不会失败
	b, _ := sonic.Marshal(c)

	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor 解析 EncodeCursor 的输出，兼容带填充的 base64url.
func DecodeCursor(raw string) (Cursor, error) {
	raw = strings.TrimSpace(raw)

	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var c Cursor
	if err := sonic.Unmarshal(b, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	if err := c.validate(); err != nil {
		return Cursor{}, err
	}

	return c, nil
}

// CursorFromParts 解析 cursor_id/cursor_rank 查询参数. id 为空表示没有游标.
func CursorFromParts(id, rank string) (*Cursor, error) {
	id = strings.TrimSpace(id)
	rank = strings.TrimSpace(rank)

	if id == "" {
		if rank != "" {
			return nil, fmt.Errorf("%w: cursor_rank without cursor_id", ErrInvalidCursor)
		}

		return nil, nil
	}

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor_id %q", ErrInvalidCursor, id)
	}

	c := &Cursor{ID: n}

	if rank != "" {
		r, err := strconv.ParseFloat(rank, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cursor_rank %q", ErrInvalidCursor, rank)
		}

		c.Rank = &r
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c Cursor) validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidCursor)
	}

	if c.Rank != nil && (math.IsNaN(*c.Rank) || math.IsInf(*c.Rank, 0)) {
		return fmt.Errorf("%w: rank must be finite", ErrInvalidCursor)
	}

	return nil
}

// String 用于日志与 singleflight key.
func (c *Cursor) String() string {
	if c == nil {
		return "-"
	}

	if c.Rank == nil {
		return strconv.FormatInt(c.ID, 10)
	}

	return strconv.FormatInt(c.ID, 10) + "@" + strconv.FormatFloat(*c.Rank, 'g', -1, 64)
}
