package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yhw2003/claude-openai-bridge/internal/requestlog"
)

// RecentLogs GET /api/logs?limit=N 最近的代理请求记录
func RecentLogs(reqLog *requestlog.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reqLog == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "request logging is disabled"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		entries, err := reqLog.Recent(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		if entries == nil {
			entries = []requestlog.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
	}
}
