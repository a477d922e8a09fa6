package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omochice/realtime-chat/internal/chat"
)

type presenceHTTP struct {
	hub *chat.Hub
}

type onlineResponse struct {
	UserIDs []int64 `json:"userIds"`
	Count   int     `json:"count"`
}

// Online lists the users that currently hold a live session.
func (p presenceHTTP) Online(c *gin.Context) {
	ids := p.hub.Registry().OnlineUserIDs()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	c.JSON(http.StatusOK, onlineResponse{UserIDs: out, Count: len(out)})
}
