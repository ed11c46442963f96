package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamQueue serves the tenant's queue as server-sent events. The stream
// opens with a full snapshot of live calls, then delivers one event per
// call mutation; consoles replace their copy of a call by id.
func (h Handlers) StreamQueue(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}

	ch, cancel, err := h.Hub.Subscribe(c.Request.Context(), tenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case item, open := <-ch:
			if !open {
				return
			}
			c.SSEvent("call", item)
			c.Writer.Flush()
		}
	}
}
