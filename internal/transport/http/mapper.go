package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// GroupResponse represents a group in API responses.
type GroupResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func groupToResponse(g *store.Group) GroupResponse {
	return GroupResponse{
		ID:        g.ID,
		Name:      g.Name,
		CreatedBy: g.CreatedBy,
		CreatedAt: g.CreatedAt.UTC(),
	}
}

func groupsToResponse(groups []*store.Group) []GroupResponse {
	out := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupToResponse(g))
	}
	return out
}

// historyQuery is the shared ?limit=&before= pair of history endpoints.
type historyQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=0"`
	Before *int64 `form:"before" binding:"omitempty,min=1"`
}

func bindHistoryQuery(c *gin.Context) (historyQuery, bool) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit or before"})
		return q, false
	}
	return q, true
}

func parseGroupID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid group id"})
		return 0, false
	}
	return id, true
}
