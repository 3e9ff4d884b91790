// Package inbox owns the canonical in-memory conversation set and the
// reconciliation pipeline that merges poller snapshots and stream events
// into it. Exactly one conversation exists per normalized counterparty
// phone number; readers only ever receive copies.
package inbox

// Sender identifies which side of a conversation produced a message.
type Sender string

const (
	SenderSelf    Sender = "user"
	SenderContact Sender = "contact"
)

// MessageType tags a message as text, a call-log marker or a recording marker.
type MessageType string

const (
	TypeText          MessageType = "text"
	TypeCallLog       MessageType = "call_log"
	TypeCallRecording MessageType = "call_recording"
)

// CallStatus is the outcome of a voice call.
type CallStatus string

const (
	CallIncoming CallStatus = "incoming"
	CallOutgoing CallStatus = "outgoing"
	CallMissed   CallStatus = "missed"
)

// ConversationKind distinguishes message-only threads from ones with calls.
type ConversationKind string

const (
	KindMessage ConversationKind = "message"
	KindCall    ConversationKind = "call"
)

// Message is a single unit of conversation content. Immutable once created
// except for the Read flag.
type Message struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	Sender       Sender      `json:"sender"`
	Timestamp    string      `json:"timestamp"`
	Type         MessageType `json:"type"`
	RecordingURL string      `json:"recordingUrl,omitempty"`
	Duration     string      `json:"duration,omitempty"`
	CallType     CallStatus  `json:"callType,omitempty"`
	Read         bool        `json:"isRead"`
}

// Conversation is all interaction history with one counterparty.
type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone"`
	Avatar       string           `json:"avatar,omitempty"`
	LastMessage  string           `json:"lastMessage"`
	Time         string           `json:"time"`
	Unread       bool             `json:"unread"`
	UnreadCount  int              `json:"unreadCount"`
	Kind         ConversationKind `json:"type"`
	CallStatus   CallStatus       `json:"callStatus,omitempty"`
	CallDuration string           `json:"callDuration,omitempty"`
	ContactID    string           `json:"contactId,omitempty"`
	Messages     []Message        `json:"messages"`
}

// Delta is an incremental or snapshot batch of messages for one
// counterparty, produced by a sync or push source and not yet merged.
type Delta struct {
	Phone        string
	Name         string
	Kind         ConversationKind
	CallStatus   CallStatus
	CallDuration string
	LastMessage  string
	Time         string
	Messages     []Message
}

// ContactResolver maps a normalized phone number to a saved contact name.
// Saved contacts are the name-of-record and override delta-provided names.
type ContactResolver interface {
	NameByPhone(normalized string) (string, bool)
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
