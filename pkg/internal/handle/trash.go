package handle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/types"
)

// PurgeTrash 立即永久删除超过保留期的软删除照片.
func (h *Handler) PurgeTrash(c *gin.Context) {
	var req types.PurgeTrashRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conf := configs.GetConfig().Jobs.TrashPurge

	days := conf.RetentionDays
	if req.RetentionDays != nil {
		days = *req.RetentionDays
	}

	batch := conf.BatchSize
	if req.BatchSize > 0 {
		batch = req.BatchSize
	}

	n, before, err := h.svc.Trash.PurgeOlderThan(c.Request.Context(), time.Duration(days)*24*time.Hour, batch)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.PurgeResult{Purged: n, Before: before})
}
