package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/store"
	"go.uber.org/zap"
)

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"conversations": s.inbox.Len(),
		"selected":      s.inbox.SelectedID(),
	}
	if s.machine != nil {
		resp["state"] = s.machine.Current()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSyncNow(c *gin.Context) {
	if err := s.poller.SyncNow(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": "sync failed", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, s.inbox.Snapshot())
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, ok := s.inbox.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// handleSelectConversation pins a conversation as the one on screen: it is
// marked read now and stays read while selected, even as new messages merge.
func (s *Server) handleSelectConversation(c *gin.Context) {
	conv, ok := s.inbox.Select(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if !s.inbox.MarkRead(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type sendMessageReq struct {
	Phone string `json:"phone" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// handleSendMessage queues the message in the outbox; the sender loop
// delivers it and the optimistic copy appears in the inbox immediately.
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	if inbox.NormalizePhone(req.Phone) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid phone number"})
		return
	}

	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, req.Phone, req.Body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to queue message"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"client_msg_id": clientMsgID})
}

type makeCallReq struct {
	Phone string `json:"phone" binding:"required"`
}

func (s *Server) handleMakeCall(c *gin.Context) {
	var req makeCallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	sid, err := s.sender.MakeCall(c.Request.Context(), req.Phone, "")
	if err != nil {
		s.logger.Error("failed to place call", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"message": "failed to place call"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"call_sid": sid})
}

func (s *Server) handleListContacts(c *gin.Context) {
	contacts, err := s.db.ListContacts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

type contactReq struct {
	ID    int64  `json:"id"`
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

func (s *Server) handleSaveContact(c *gin.Context) {
	var req contactReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	contact := &store.Contact{ID: req.ID, Name: req.Name, Phone: req.Phone, Email: req.Email, Notes: req.Notes}
	if err := s.db.UpsertContact(contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to save contact", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (s *Server) handleDeleteContact(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid contact id"})
		return
	}
	if err := s.db.DeleteContact(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete contact"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListTemplates(c *gin.Context) {
	templates, err := s.db.ListTemplates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

type templateReq struct {
	ID    int64  `json:"id"`
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

func (s *Server) handleSaveTemplate(c *gin.Context) {
	var req templateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	tpl := &store.Template{ID: req.ID, Title: req.Title, Body: req.Body}
	if err := s.db.SaveTemplate(tpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save template"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid template id"})
		return
	}
	if err := s.db.DeleteTemplate(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete template"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListFilters(c *gin.Context) {
	filters, err := s.db.ListFilters()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list filters"})
		return
	}
	c.JSON(http.StatusOK, filters)
}

type filterReq struct {
	Name  string `json:"name" binding:"required"`
	Query string `json:"query" binding:"required"`
}

func (s *Server) handleSaveFilter(c *gin.Context) {
	var req filterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	f := &store.Filter{Name: req.Name, Query: req.Query}
	if err := s.db.SaveFilter(f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save filter"})
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) handleDeleteFilter(c *gin.Context) {
	if err := s.db.DeleteFilter(c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete filter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
