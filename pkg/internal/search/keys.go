package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// 缓存 key 格式，外部可见，修改会使已有缓存失效.
const (
	photoKeyFormat     = "photo:%d"
	searchKeyFormat    = "user:%d:search:%s:%s:%s"
	searchKeyPattern   = "user:%d:search:*"
	tagListKeyFormat   = "user:%d:tags"
	completeKeySuffix  = ":complete"
	normalizedTemplate = "caption:%s|tags:%s"
)

// MetadataKey photo:{id}.
func MetadataKey(id int64) string {
	return fmt.Sprintf(photoKeyFormat, id)
}

// SearchKey user:{uid}:search:{category}:{sha256(normalized)}:{match}.
// 规范化串只依赖排序后的标签与小写检索词，因此标签顺序、大小写与多余空白不影响 key.
func SearchKey(userID int64, q Query) string {
	normalized := fmt.Sprintf(normalizedTemplate, strings.Join(q.Terms, " "), strings.Join(q.Tags, ","))
	if q.AlbumID != nil {
		normalized += fmt.Sprintf("|album:%d", *q.AlbumID)
	}

	sum := sha256.Sum256([]byte(normalized))

	return fmt.Sprintf(searchKeyFormat, userID, q.Category(), hex.EncodeToString(sum[:]), q.Match)
}

// CompleteKey 完整标记 key.
func CompleteKey(searchKey string) string {
	return searchKey + completeKeySuffix
}

// SearchKeyPattern 匹配某用户全部搜索结果 key（含完整标记）.
func SearchKeyPattern(userID int64) string {
	return fmt.Sprintf(searchKeyPattern, userID)
}

// TagListKey 用户标签词表缓存 key.
func TagListKey(userID int64) string {
	return fmt.Sprintf(tagListKeyFormat, userID)
}
