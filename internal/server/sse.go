package server

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 25 * time.Second

// sseEvent is the wire form of a bus event on /api/events.
type sseEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// handleEvents streams daemon events to a dashboard client as SSE.
// Each subscriber gets its own bus subscription; a slow client drops
// events rather than stalling the daemon.
func (s *Server) handleEvents(c *gin.Context) {
	events, cancel := s.bus.Subscribe("", 64)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Greet so clients know the stream is live before the first event.
	s.writeSSE(c.Writer, sseEvent{Type: "connected", Timestamp: time.Now()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.writeSSE(c.Writer, sseEvent{Type: ev.Kind, Timestamp: ev.Timestamp, Payload: ev.Payload})
			c.Writer.Flush()
		case t := <-heartbeat.C:
			s.writeSSE(c.Writer, sseEvent{Type: "heartbeat", Timestamp: t})
			c.Writer.Flush()
		case <-clientGone:
			return
		}
	}
}

func (s *Server) writeSSE(w io.Writer, ev sseEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
