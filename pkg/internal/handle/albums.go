package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/types"
)

// CreateAlbum POST /albums.
func (h *Handler) CreateAlbum(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req types.CreateAlbumRequest
	if !bindJSON(c, &req) {
		return
	}

	album, err := h.svc.Albums.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, album)
}

// ListAlbums GET /albums.
func (h *Handler) ListAlbums(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	albums, err := h.svc.Albums.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ListAlbumsResponse{Albums: albums})
}

// AddAlbumPhotos POST /albums/:id/photos.
func (h *Handler) AddAlbumPhotos(c *gin.Context) {
	h.changeAlbumPhotos(c, true)
}

// RemoveAlbumPhotos DELETE /albums/:id/photos，请求体同 AddAlbumPhotos.
func (h *Handler) RemoveAlbumPhotos(c *gin.Context) {
	h.changeAlbumPhotos(c, false)
}

func (h *Handler) changeAlbumPhotos(c *gin.Context, add bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	albumID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req types.AddAlbumPhotosRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		n   int
		err error
	)

	if add {
		n, err = h.svc.Albums.AddPhotos(c.Request.Context(), userID, albumID, req.PhotoIDs)
	} else {
		n, err = h.svc.Albums.RemovePhotos(c.Request.Context(), userID, albumID, req.PhotoIDs)
	}

	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{Affected: n})
}

// DeleteAlbum DELETE /albums/:id 软删除.
func (h *Handler) DeleteAlbum(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	albumID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Albums.Delete(c.Request.Context(), userID, albumID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{Affected: 1, Message: "album deleted"})
}

// RestoreAlbum PATCH /albums/:id/restore.
func (h *Handler) RestoreAlbum(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	albumID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Albums.Restore(c.Request.Context(), userID, albumID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ActionResponse{Affected: 1, Message: "album restored"})
}

// SearchAlbumPhotos GET /albums/:id/photos 相册范围内搜索，参数同 SearchPhotos.
func (h *Handler) SearchAlbumPhotos(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	albumID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.svc.Albums.Get(c.Request.Context(), userID, albumID); err != nil {
		writeError(c, err)
		return
	}

	h.search(c, &albumID)
}
