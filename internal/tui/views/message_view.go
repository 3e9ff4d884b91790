package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/timefmt"
)

// MessageView displays the message thread for one conversation.
type MessageView struct {
	*tview.TextView
	contactName string
	loc         *time.Location
}

// NewMessageView creates a new message view.
func NewMessageView(loc *time.Location) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv, loc: loc}
}

// SetContactName updates the title with the counterparty's name.
func (mv *MessageView) SetContactName(name string) {
	mv.contactName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the view with the conversation's messages, oldest first.
func (mv *MessageView) Update(conv *inbox.Conversation) {
	mv.Clear()
	if conv == nil {
		return
	}

	now := time.Now()
	for _, m := range conv.Messages {
		sender := mv.contactName
		if m.Sender == inbox.SenderSelf {
			sender = "You"
		}

		ts := timefmt.ParseAndFormat(m.Timestamp, now, mv.loc)
		body := m.Content
		switch m.Type {
		case inbox.TypeCallLog:
			body = callLogLine(m)
		case inbox.TypeCallRecording:
			body = "Call recording: " + m.RecordingURL
			if m.Duration != "" {
				body += " (" + m.Duration + ")"
			}
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", sender, ts, body)
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}

func callLogLine(m inbox.Message) string {
	line := callPreview(m.CallType, m.Duration)
	if m.Content != "" {
		line = m.Content
	}
	return line
}
