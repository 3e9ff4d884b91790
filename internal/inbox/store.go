package inbox

import (
	"sort"
	"sync"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"go.uber.org/zap"
)

// NewMessageNotice is the bus payload for a counterparty message that
// survived deduplication.
type NewMessageNotice struct {
	Phone   string
	Name    string
	Content string
}

// MissedCallNotice is the bus payload for a newly merged missed call.
type MissedCallNotice struct {
	Phone string
	Name  string
}

// Store owns the canonical conversation set. All mutation goes through
// Merge, Append, Select and MarkRead; readers get deep copies. The poller
// and the stream listener both serialize through the mutex, so a merge is
// never interleaved with another.
type Store struct {
	mu        sync.RWMutex
	clock     Clock
	ownNumber string
	contacts  ContactResolver
	bus       *bus.Bus
	logger    *zap.Logger

	conversations map[string]*Conversation
	selectedID    string
}

// NewStore creates an empty store. ownNumber is the account's configured
// phone number in any formatting; contacts may be nil.
func NewStore(ownNumber string, clock Clock, contacts ContactResolver, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		clock:         clock,
		ownNumber:     NormalizePhone(ownNumber),
		contacts:      contacts,
		bus:           b,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// Merge reconciles a batch of deltas into the canonical set and returns
// the number of conversations that changed. A delta whose messages are all
// duplicates of current state is a no-op for its conversation: no field is
// touched and no event fires for it. Deltas with no usable phone key, the
// operator's own softphone leg and self-conversations are skipped without
// failing the rest of the batch.
func (s *Store) Merge(deltas []Delta) int {
	s.mu.Lock()

	changed := 0
	var notices []bus.Event

	for _, d := range deltas {
		norm := NormalizePhone(d.Phone)
		if norm == "" {
			s.logger.Warn("delta without phone key skipped")
			continue
		}
		if IsDeviceAddress(d.Phone) || norm == s.ownNumber {
			continue
		}

		name := d.Name
		if s.contacts != nil {
			if n, ok := s.contacts.NameByPhone(norm); ok {
				name = n
			}
		}

		existing := s.conversations[norm]
		if existing == nil {
			msgs := s.clock.DeduplicateAndSort(d.Messages)
			if len(msgs) == 0 {
				continue
			}
			conv := &Conversation{
				ID:           norm,
				Name:         name,
				Phone:        d.Phone,
				LastMessage:  d.LastMessage,
				Time:         d.Time,
				Kind:         d.Kind,
				CallStatus:   d.CallStatus,
				CallDuration: d.CallDuration,
				Messages:     msgs,
			}
			if conv.Name == "" {
				conv.Name = d.Phone
			}
			last := msgs[len(msgs)-1]
			if conv.LastMessage == "" {
				conv.LastMessage = preview(last)
			}
			if conv.Time == "" {
				conv.Time = last.Timestamp
			}
			for _, m := range msgs {
				if m.Sender == SenderContact {
					conv.Unread = true
					conv.UnreadCount++
				}
			}
			s.conversations[norm] = conv
			changed++
			notices = append(notices, s.noticesFor(conv, msgs)...)
			continue
		}

		newMsgs := make([]Message, 0, len(d.Messages))
		for _, m := range d.Messages {
			if !s.clock.Exists(existing.Messages, m) {
				newMsgs = append(newMsgs, m)
			}
		}
		if len(newMsgs) == 0 {
			continue
		}

		merged := s.clock.DeduplicateAndSort(append(append([]Message{}, existing.Messages...), newMsgs...))
		existing.Messages = merged
		if name != "" {
			existing.Name = name
		}
		last := merged[len(merged)-1]
		existing.LastMessage = preview(last)
		existing.Time = last.Timestamp
		if d.Kind != "" {
			existing.Kind = d.Kind
		}
		if d.CallStatus != "" {
			existing.CallStatus = d.CallStatus
		}
		if d.CallDuration != "" {
			existing.CallDuration = d.CallDuration
		}

		if s.selectedID == existing.ID {
			existing.Unread = false
			existing.UnreadCount = 0
			for i := range existing.Messages {
				existing.Messages[i].Read = true
			}
		} else {
			inbound := 0
			for _, m := range newMsgs {
				if m.Sender == SenderContact {
					inbound++
				}
			}
			if inbound > 0 {
				existing.Unread = true
				existing.UnreadCount += inbound
			}
		}
		changed++
		notices = append(notices, s.noticesFor(existing, newMsgs)...)
	}

	s.mu.Unlock()

	if changed > 0 && s.bus != nil {
		s.bus.Publish(bus.Event{Kind: "inbox.updated", Timestamp: time.Now(), Payload: changed})
		for _, n := range notices {
			s.bus.Publish(n)
		}
	}
	return changed
}

// noticesFor builds notification events for inbound content among msgs.
// Caller holds the lock; events are published after it is released.
func (s *Store) noticesFor(conv *Conversation, msgs []Message) []bus.Event {
	var out []bus.Event
	now := time.Now()
	for _, m := range msgs {
		switch {
		case m.Sender == SenderContact && m.Type == TypeText:
			out = append(out, bus.Event{
				Kind:      "inbox.new_message",
				Timestamp: now,
				Payload:   NewMessageNotice{Phone: conv.Phone, Name: conv.Name, Content: m.Content},
			})
		case m.Type == TypeCallLog && m.CallType == CallMissed:
			out = append(out, bus.Event{
				Kind:      "inbox.missed_call",
				Timestamp: now,
				Payload:   MissedCallNotice{Phone: conv.Phone, Name: conv.Name},
			})
		}
	}
	return out
}

// Append adds a single locally produced message (an optimistic outbox
// insert or a compose action) to the conversation for phone, creating the
// conversation when needed. Duplicate messages are ignored.
func (s *Store) Append(phoneNumber string, msg Message) bool {
	norm := NormalizePhone(phoneNumber)
	if norm == "" || norm == s.ownNumber {
		return false
	}

	s.mu.Lock()
	conv := s.conversations[norm]
	if conv == nil {
		name := phoneNumber
		if s.contacts != nil {
			if n, ok := s.contacts.NameByPhone(norm); ok {
				name = n
			}
		}
		conv = &Conversation{
			ID:    norm,
			Name:  name,
			Phone: phoneNumber,
			Kind:  KindMessage,
		}
		s.conversations[norm] = conv
	}
	if s.clock.Exists(conv.Messages, msg) {
		s.mu.Unlock()
		return false
	}
	conv.Messages = s.clock.DeduplicateAndSort(append(conv.Messages, msg))
	conv.LastMessage = preview(msg)
	conv.Time = msg.Timestamp
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: "inbox.updated", Timestamp: time.Now(), Payload: 1})
	}
	return true
}

// Select marks the conversation read and pins it as the active one; new
// inbound messages merged while it stays selected arrive already read.
// An empty id clears the selection.
func (s *Store) Select(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.selectedID = ""
		return Conversation{}, false
	}
	// Unknown ids leave the current selection alone; otherwise a bad
	// select would both drop a valid pin and pre-pin an id that gets
	// force-read the moment that conversation appears.
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	s.selectedID = id
	conv.Unread = false
	conv.UnreadCount = 0
	for i := range conv.Messages {
		conv.Messages[i].Read = true
	}
	return copyConversation(conv), true
}

// SelectedID returns the id of the currently selected conversation.
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// MarkRead clears the unread state of one conversation without selecting it.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return false
	}
	conv.Unread = false
	conv.UnreadCount = 0
	for i := range conv.Messages {
		conv.Messages[i].Read = true
	}
	return true
}

// Get returns a copy of one conversation.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(conv), true
}

// Snapshot returns deep copies of every conversation, newest activity
// first. Callers may mutate the result freely.
func (s *Store) Snapshot() []Conversation {
	s.mu.RLock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, copyConversation(conv))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return s.clock.Epoch(out[i].Time) > s.clock.Epoch(out[j].Time)
	})
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func preview(m Message) string {
	if m.Content != "" {
		return m.Content
	}
	switch m.Type {
	case TypeCallRecording:
		return "Call Recording"
	case TypeCallLog:
		return "Call"
	default:
		return ""
	}
}
