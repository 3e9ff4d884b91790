// Package outbox drains the persisted send queue through the provider.
// Queued messages survive restarts; the drain loop shows each one in the
// inbox optimistically before the provider acknowledges it.
package outbox

import (
	"context"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/store"
	"go.uber.org/zap"
)

// TextSender is the interface for sending text messages via the provider.
type TextSender interface {
	SendMessage(ctx context.Context, to, body, statusCallback string) (sid string, err error)
}

// Sender drains the outbox and sends messages via the provider client.
type Sender struct {
	db     *store.DB
	inbox  *inbox.Store
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, ib *inbox.Store, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		inbox:  ib,
		sender: sender,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages. Entries stranded
// in 'sending' by a previous crash are requeued first.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.RequeueStuckSending(); err != nil {
		s.logger.Error("failed to requeue stuck outbox entries", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued stuck outbox entries", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic insert: show the message in the inbox immediately.
		// The provider's copy arrives on a later poll and deduplicates
		// against this one.
		s.inbox.Append(entry.Phone, inbox.Message{
			ID:        entry.ClientMsgID,
			Content:   entry.Body,
			Sender:    inbox.SenderSelf,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Type:      inbox.TypeText,
			Read:      true,
		})

		sid, err := s.sender.SendMessage(ctx, entry.Phone, entry.Body, "")
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			s.publish("outbox.send_failed", map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"phone":         entry.Phone,
				"error":         err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, sid); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("provider_sid", sid))
		s.publish("outbox.send_ack", map[string]string{
			"client_msg_id": entry.ClientMsgID,
			"provider_sid":  sid,
		})
	}
}

func (s *Sender) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
