package handle

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/types"
)

// SearchPhotos GET /photos 搜索照片，按游标分页.
func (h *Handler) SearchPhotos(c *gin.Context) {
	h.search(c, nil)
}

func (h *Handler) search(c *gin.Context, albumID *int64) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req types.SearchPhotosRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	cursor, err := parseCursor(req)
	if err != nil {
		writeError(c, err)
		return
	}

	q, err := h.svc.Limits.BuildQuery(splitTags(req.Tags), req.Caption, req.Match, cursor, req.Limit, albumID)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.svc.Search.Search(c.Request.Context(), userID, q)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := types.SearchPhotosResponse{Photos: h.svc.Photos.Infos(c.Request.Context(), res.Photos)}
	if res.NextCursor != nil {
		resp.NextCursor = &types.NextCursor{
			ID:    res.NextCursor.ID,
			Rank:  res.NextCursor.Rank,
			Token: search.EncodeCursor(*res.NextCursor),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// parseCursor 优先使用不透明 token，否则兼容 cursor_id/cursor_rank.
func parseCursor(req types.SearchPhotosRequest) (*search.Cursor, error) {
	if req.Cursor != "" {
		cur, err := search.DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}

		return &cur, nil
	}

	return search.CursorFromParts(req.CursorID, req.CursorRank)
}

// splitTags 同时支持 tags=a&tags=b 与 tags=a,b.
func splitTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, strings.Split(r, ",")...)
	}

	return out
}

// GetPhoto GET /photos/:id.
func (h *Handler) GetPhoto(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	photo, err := h.svc.Photos.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, photo)
}

// RegisterPhoto POST /photos 登记已上传的照片.
func (h *Handler) RegisterPhoto(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req types.RegisterPhotoRequest
	if !bindJSON(c, &req) {
		return
	}

	photo, err := h.svc.Photos.Register(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, photo)
}

// UpdateCaption PATCH /photos/:id/caption.
func (h *Handler) UpdateCaption(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req types.UpdateCaptionRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.Photos.UpdateCaption(c.Request.Context(), userID, id, req.Caption); err != nil {
		writeError(c, err)
		return
	}

	h.GetPhoto(c)
}

// UpdateTags PATCH /photos/:id/tags.
func (h *Handler) UpdateTags(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req types.UpdateTagsRequest
	if !bindJSON(c, &req) {
		return
	}

	tags, err := h.svc.Photos.UpdateTags(c.Request.Context(), userID, id, req.Add, req.Remove)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "tags": tags})
}

// DeletePhoto DELETE /photos/:id 软删除.
func (h *Handler) DeletePhoto(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Photos.Delete(c.Request.Context(), userID, id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{Affected: 1, Message: "photo moved to trash"})
}

// RestorePhoto PATCH /photos/:id/restore.
func (h *Handler) RestorePhoto(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Photos.Restore(c.Request.Context(), userID, id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{Affected: 1, Message: "photo restored"})
}
