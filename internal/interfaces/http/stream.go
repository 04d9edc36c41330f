package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
)

// StreamEvents handles GET /api/events/stream?project_id=
// It relays committed workflow events as server-sent events until the
// client disconnects. A ready event is sent once the subscription exists.
func (h *Handlers) StreamEvents(c *gin.Context) {
	if h.deps.Events == nil {
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "event stream disabled")
		return
	}

	ctx := c.Request.Context()
	events, err := h.deps.Events.Subscribe(ctx)
	if err != nil {
		h.logger.Error("Failed to subscribe to events", "error", err)
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "event stream unavailable")
		return
	}

	projectID := c.Query("project_id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("ready", gin.H{"project_id": projectID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			if projectID != "" && evt.ProjectID != projectID {
				continue
			}
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		}
	}
}
