package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aditya-dange-m0/prod-fc/core"
)

// sseSink frames events as Server-Sent Events on one response writer. Send
// returns an error once the subscriber's connection fails, which the
// publisher treats as a disconnect.
type sseSink struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

// newSSESink prepares the response for event streaming. It reports false
// (after writing an error response) when the writer cannot stream.
func newSSESink(c *gin.Context) (*sseSink, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "streaming unsupported"})
		return nil, false
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: c.Writer, flusher: flusher}, true
}

// Send implements publisher.Sink.
func (s *sseSink) Send(ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// newRunContext derives the run's cancellation scope from the request: a
// client disconnect cancels the run at its next suspension point.
func newRunContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(c.Request.Context())
}
