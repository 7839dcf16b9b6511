// stats.go serves the usage totals shown on the key dashboard.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UsageStatsResponse summarises every key the caller owns.
type UsageStatsResponse struct {
	TotalAPIKeys    int64 `json:"totalApiKeys"`
	TotalUsage      int64 `json:"totalUsage"`
	TotalLimit      int64 `json:"totalLimit"`
	UsagePercentage int64 `json:"usagePercentage"`
}

// UsageStatsHandler returns the caller's combined usage against their combined limits.
// GET /api/keys/stats
func (h *APIKeyHandlers) UsageStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		stats, err := h.keys.UsageStatsByUser(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to compute usage stats", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}

		c.JSON(http.StatusOK, UsageStatsResponse{
			TotalAPIKeys:    stats.TotalAPIKeys,
			TotalUsage:      stats.TotalUsage,
			TotalLimit:      stats.TotalLimit,
			UsagePercentage: stats.UsagePercentage(),
		})
	}
}
