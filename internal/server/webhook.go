package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mzahid/dialdesk/internal/inbox"
	"go.uber.org/zap"
)

// handleWebhook ingests Twilio's inbound-message callback. Twilio posts
// application/x-www-form-urlencoded; the message becomes a one-message
// delta through the same merge path as polling, so a copy that already
// arrived by poll or stream deduplicates away.
func (s *Server) handleWebhook(c *gin.Context) {
	sid := c.PostForm("MessageSid")
	from := c.PostForm("From")
	body := c.PostForm("Body")
	if sid == "" || from == "" {
		c.String(http.StatusBadRequest, "missing MessageSid or From")
		return
	}

	delta := inbox.Delta{
		Phone: from,
		Name:  from,
		Kind:  inbox.KindMessage,
		Messages: []inbox.Message{{
			ID:        sid,
			Content:   body,
			Sender:    inbox.SenderContact,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Type:      inbox.TypeText,
		}},
	}
	changed := s.inbox.Merge([]inbox.Delta{delta})
	s.logger.Info("webhook message ingested",
		zap.String("sid", sid),
		zap.Bool("merged", changed > 0))

	// Twilio expects TwiML; an empty response acknowledges without reply.
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}
